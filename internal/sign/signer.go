// Package sign implements the exchange's ED25519 request signing scheme.
// Every private REST call and the private websocket auth frame carry a
// base64 signature over a canonical string the exchange reconstructs
// server-side, so parameter ordering and instruction tagging must match
// byte for byte.
package sign

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"backpackflow/internal/exerr"
)

// WindowMs is the fixed signature validity window in milliseconds.
const WindowMs int64 = 5000

// Credentials holds the base64-encoded ED25519 key pair and the REST base
// URL. Immutable after construction.
type Credentials struct {
	PrivateKey string
	PublicKey  string
	BaseURL    string
}

// Signer produces signatures for REST and websocket authentication requests.
type Signer struct {
	priv      ed25519.PrivateKey
	publicKey string
	baseURL   string
}

// NewSigner validates the key pair and builds a Signer. The public key is
// re-derived from the private key; a mismatch is a fatal configuration error
// and the connector must not start.
func NewSigner(creds Credentials) (*Signer, error) {
	seed, err := base64.StdEncoding.DecodeString(creds.PrivateKey)
	if err != nil {
		return nil, exerr.Wrap(exerr.KindAuthentication, err, "invalid private key format")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, exerr.Authentication("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	derived := base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey))
	if derived != creds.PublicKey {
		return nil, exerr.Authentication("public key does not match private key")
	}

	return &Signer{priv: priv, publicKey: creds.PublicKey, baseURL: creds.BaseURL}, nil
}

// PublicKey returns the base64 public key used as the API key header.
func (s *Signer) PublicKey() string { return s.publicKey }

// BaseURL returns the REST base URL the credentials were issued for.
func (s *Signer) BaseURL() string { return s.baseURL }

// Sign builds the canonical signing string for the given instruction and
// parameters and returns the base64 signature. Parameters are sorted
// lexicographically by key; timestamp and window are appended last,
// unsorted.
func (s *Signer) Sign(instruction string, params map[string]string, timestamp, window int64) string {
	parts := make([]string, 0, len(params)+3)
	parts = append(parts, "instruction="+instruction)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}

	parts = append(parts, fmt.Sprintf("timestamp=%d", timestamp))
	parts = append(parts, fmt.Sprintf("window=%d", window))

	message := strings.Join(parts, "&")
	sig := ed25519.Sign(s.priv, []byte(message))
	return base64.StdEncoding.EncodeToString(sig)
}

// SignSubscribe signs the private websocket authentication frame.
func (s *Signer) SignSubscribe(timestamp, window int64) string {
	return s.Sign("subscribe", nil, timestamp, window)
}

// SignRequest derives the instruction from the endpoint path and method,
// collects the query and scalar body parameters and returns the signature.
// Paths include the query string but not the base URL, e.g.
// "/api/v1/orders?symbol=BTC_USDC_PERP".
func (s *Signer) SignRequest(method, path string, body []byte, timestamp, window int64) (string, error) {
	instruction, err := instructionFor(method, path)
	if err != nil {
		return "", err
	}

	params := make(map[string]string)
	if idx := strings.Index(path, "?"); idx >= 0 {
		for _, pair := range strings.Split(path[idx+1:], "&") {
			if key, value, ok := strings.Cut(pair, "="); ok {
				params[key] = value
			}
		}
	}

	if len(bytes.TrimSpace(body)) > 0 && method != http.MethodGet {
		if err := collectBodyParams(body, params); err != nil {
			return "", err
		}
	}

	return s.Sign(instruction, params, timestamp, window), nil
}

// instructionFor maps an endpoint path and HTTP method to the exchange's
// instruction tag. The collateral check must run before the capital check
// because the collateral path nests under /capital.
func instructionFor(method, path string) (string, error) {
	switch {
	case strings.Contains(path, "/capital/collateral"):
		return "collateralQuery", nil
	case strings.Contains(path, "/capital"):
		return "balanceQuery", nil
	case strings.Contains(path, "/fundingRates"):
		return "fundingRatesQuery", nil
	case strings.Contains(path, "/orders") && method == http.MethodPost:
		return "orderExecute", nil
	case strings.Contains(path, "/orders") && method == http.MethodGet:
		return "orderQuery", nil
	case strings.Contains(path, "/orders") && method == http.MethodDelete:
		return "orderCancel", nil
	case strings.Contains(path, "/position"):
		return "positionQuery", nil
	default:
		return "", exerr.Authentication("unsupported endpoint: %s %s", method, path)
	}
}

// collectBodyParams extracts every scalar field from a JSON body into params.
// A batch body (JSON array) suffixes each key with its element index, except
// when the array holds exactly one element, in which case no suffix is
// applied. That single-vs-batch asymmetry is part of the exchange's signing
// contract.
func collectBodyParams(body []byte, params map[string]string) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return exerr.Wrap(exerr.KindAuthentication, err, "invalid JSON body")
	}

	switch v := parsed.(type) {
	case []interface{}:
		for i, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			for key, value := range obj {
				paramKey := key
				if len(v) > 1 {
					paramKey = fmt.Sprintf("%s[%d]", key, i)
				}
				if str, ok := scalarString(value); ok {
					params[paramKey] = str
				}
			}
		}
	case map[string]interface{}:
		for key, value := range v {
			if str, ok := scalarString(value); ok {
				params[key] = str
			}
		}
	}
	return nil
}

// scalarString renders a decoded JSON value for signing. Null and structured
// values are skipped; booleans encode lowercase.
func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
