// Package symbols converts between the canonical engine notation (BTC/USDT)
// and the exchange market notation (BTC_USDC_PERP). The exchange trades
// USDC-margined perpetuals, so the quote asset is substituted both ways.
package symbols

import "strings"

// ToExchange converts a canonical symbol to the exchange perpetual notation:
// BTC/USDT -> BTC_USDC_PERP.
func ToExchange(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "_")
	if strings.HasSuffix(s, "_USDT") {
		s = strings.TrimSuffix(s, "_USDT") + "_USDC"
	}
	return s + "_PERP"
}

// FromExchange converts an exchange market symbol back to canonical form:
// BTC_USDC_PERP -> BTC/USDT. Round-trips with ToExchange for every canonical
// USDT-quoted symbol.
func FromExchange(symbol string) string {
	s := strings.TrimSuffix(symbol, "_PERP")
	s = strings.ReplaceAll(s, "_", "/")
	if strings.HasSuffix(s, "/USDC") {
		s = strings.TrimSuffix(s, "/USDC") + "/USDT"
	}
	return s
}

// NormalizeStream converts a symbol as it appears in websocket stream events.
// The substitution runs before the separator swap and the /PERP suffix is
// stripped afterwards, matching the exchange's stream naming.
func NormalizeStream(symbol string) string {
	s := strings.ReplaceAll(symbol, "_USDC", "_USDT")
	s = strings.ReplaceAll(s, "_", "/")
	return strings.TrimSuffix(s, "/PERP")
}
