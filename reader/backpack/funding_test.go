package backpack

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backpackflow/internal/exerr"
	"backpackflow/internal/rest"
	"backpackflow/internal/sign"
)

func newTestGateway(t *testing.T, baseURL string) *rest.Gateway {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	signer, err := sign.NewSigner(sign.Credentials{
		PrivateKey: base64.StdEncoding.EncodeToString(seed),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		BaseURL:    baseURL,
	})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	return rest.NewGateway(signer, time.Second, 100, 100)
}

func TestIntervalTableDefault(t *testing.T) {
	table := NewIntervalTable(8.0)
	if got := table.Get("BTC_USDC_PERP"); got != 8.0 {
		t.Fatalf("untracked symbol interval = %v, want 8.0", got)
	}

	table.Set("BTC_USDC_PERP", 1.0)
	if got := table.Get("BTC_USDC_PERP"); got != 1.0 {
		t.Fatalf("tracked symbol interval = %v, want 1.0", got)
	}
	if got := table.Get("ETH_USDC_PERP"); got != 8.0 {
		t.Fatalf("other symbol interval = %v, want default 8.0", got)
	}
}

func TestFetchIntervalFromRecordSpacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %s, want 2", got)
		}
		w.Write([]byte(`[
			{"symbol":"BTC_USDC_PERP","fundingRate":"0.0001","intervalEndTimestamp":"2026-08-23T08:00:00Z"},
			{"symbol":"BTC_USDC_PERP","fundingRate":"0.0001","intervalEndTimestamp":"2026-08-23T00:00:00Z"}
		]`))
	}))
	defer server.Close()

	tracker := NewFundingTracker(newTestGateway(t, server.URL), NewIntervalTable(8.0), []string{"BTC_USDC_PERP"}, time.Minute)

	hours, err := tracker.fetchInterval(context.Background(), "BTC_USDC_PERP")
	if err != nil {
		t.Fatalf("fetchInterval failed: %v", err)
	}
	if hours != 8.0 {
		t.Fatalf("interval = %v hours, want 8.0", hours)
	}
}

func TestFetchIntervalRequiresTwoRecords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTC_USDC_PERP","fundingRate":"0.0001","intervalEndTimestamp":"2026-08-23T08:00:00Z"}]`))
	}))
	defer server.Close()

	tracker := NewFundingTracker(newTestGateway(t, server.URL), NewIntervalTable(8.0), nil, time.Minute)

	_, err := tracker.fetchInterval(context.Background(), "BTC_USDC_PERP")
	if !exerr.Is(err, exerr.KindTrading) {
		t.Fatalf("expected trading error, got %v", err)
	}
}

func TestFetchIntervalRejectsBadTimestamp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"X","fundingRate":"0","intervalEndTimestamp":"not-a-time"},
			{"symbol":"X","fundingRate":"0","intervalEndTimestamp":"2026-08-23T00:00:00Z"}
		]`))
	}))
	defer server.Close()

	tracker := NewFundingTracker(newTestGateway(t, server.URL), NewIntervalTable(8.0), nil, time.Minute)

	_, err := tracker.fetchInterval(context.Background(), "X")
	if !exerr.Is(err, exerr.KindInvalidData) {
		t.Fatalf("expected invalid_data error, got %v", err)
	}
}

func TestRefreshAllSkipsFailingSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD_USDC_PERP" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[
			{"symbol":"BTC_USDC_PERP","fundingRate":"0.0001","intervalEndTimestamp":"2026-08-23T01:00:00Z"},
			{"symbol":"BTC_USDC_PERP","fundingRate":"0.0001","intervalEndTimestamp":"2026-08-23T00:00:00Z"}
		]`))
	}))
	defer server.Close()

	table := NewIntervalTable(8.0)
	tracker := NewFundingTracker(newTestGateway(t, server.URL), table, []string{"BAD_USDC_PERP", "BTC_USDC_PERP"}, time.Minute)

	tracker.refreshAll(context.Background())

	if got := table.Get("BTC_USDC_PERP"); got != 1.0 {
		t.Fatalf("refreshed interval = %v, want 1.0", got)
	}
	if got := table.Get("BAD_USDC_PERP"); got != 8.0 {
		t.Fatalf("failed symbol interval = %v, want default 8.0", got)
	}
}
