package backpack

import (
	"context"
	"net/http"

	"backpackflow/internal/rest"
	"backpackflow/models"
)

// FetchMarkets retrieves the exchange's market metadata. The endpoint is
// public and unsigned.
func FetchMarkets(ctx context.Context, gateway *rest.Gateway) ([]models.MarketInfo, error) {
	var markets []models.MarketInfo
	if err := gateway.DoUnsigned(ctx, http.MethodGet, "/markets", &markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// PerpSymbols filters markets down to the perpetual contracts quoted in
// USDC or USDT and returns their exchange symbols in listing order.
func PerpSymbols(markets []models.MarketInfo) []string {
	var symbols []string
	for _, m := range markets {
		if m.MarketType != "PERP" {
			continue
		}
		if m.QuoteSymbol != "USDC" && m.QuoteSymbol != "USDT" {
			continue
		}
		symbols = append(symbols, m.Symbol)
	}
	return symbols
}
