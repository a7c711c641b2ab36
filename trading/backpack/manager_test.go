package backpack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backpackflow/internal/channel"
	"backpackflow/models"
)

func TestExecuteAlwaysProducesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Write([]byte(`[{"id":"ord-1","symbol":"BTC_USDC_PERP","side":"Bid","orderType":"Market","quantity":"0.001","status":"Filled","executedQuantity":"0.001","executedQuoteQuantity":"65","timeInForce":"IOC","createdAt":1}]`))
		case http.MethodDelete:
			w.Write([]byte(`{"id":"ord-2","symbol":"BTC_USDC_PERP","side":"Bid","orderType":"Limit","quantity":"1","status":"Cancelled","executedQuantity":"0","executedQuoteQuantity":"0","timeInForce":"GTC","createdAt":1}`))
		}
	}))
	defer server.Close()

	client := NewTradingClient(newTestGateway(t, server.URL), "Backpack", testMarkets())
	channels := channel.NewChannels(16, 4)
	manager := NewTradingManager(client, channels, nil, time.Minute)

	place := models.NewTradingCommand("Backpack", "BTC/USDT", models.Buy, models.Market, 0.001, nil)
	result := manager.execute(context.Background(), place)
	if !result.Success || result.OrderID != "ord-1" {
		t.Fatalf("unexpected place result %+v", result)
	}
	if result.CommandID != place.CommandID {
		t.Fatalf("command id = %s, want %s", result.CommandID, place.CommandID)
	}

	cancel := models.TradingCommand{
		CommandID: "c-2", Exchange: "Backpack", Action: models.ActionCancel,
		Symbol: "BTC/USDT", OrderID: "ord-2",
	}
	result = manager.execute(context.Background(), cancel)
	if !result.Success || result.OrderID != "ord-2" {
		t.Fatalf("unexpected cancel result %+v", result)
	}

	missing := models.TradingCommand{CommandID: "c-3", Exchange: "Backpack", Action: models.ActionCancel}
	result = manager.execute(context.Background(), missing)
	if result.Success || result.ErrorMessage == "" {
		t.Fatalf("expected failure for cancel without order id, got %+v", result)
	}

	unknown := models.TradingCommand{CommandID: "c-4", Exchange: "Backpack", Action: "modify"}
	result = manager.execute(context.Background(), unknown)
	if result.Success {
		t.Fatalf("expected failure for unsupported action, got %+v", result)
	}
}

func TestExecuteWrapsClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"INVALID_ORDER"}`))
	}))
	defer server.Close()

	client := NewTradingClient(newTestGateway(t, server.URL), "Backpack", testMarkets())
	manager := NewTradingManager(client, channel.NewChannels(16, 4), nil, time.Minute)

	command := models.NewTradingCommand("Backpack", "BTC/USDT", models.Buy, models.Market, 0.001, nil)
	result := manager.execute(context.Background(), command)
	if result.Success {
		t.Fatal("expected failed result")
	}
	if result.ErrorMessage == "" {
		t.Fatal("expected error message on failed result")
	}
}

func TestCommandLoopSkipsOtherExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"ord-9","symbol":"BTC_USDC_PERP","side":"Bid","orderType":"Market","quantity":"0.001","status":"Filled","executedQuantity":"0.001","executedQuoteQuantity":"65","timeInForce":"IOC","createdAt":1}]`))
	}))
	defer server.Close()

	client := NewTradingClient(newTestGateway(t, server.URL), "Backpack", testMarkets())
	channels := channel.NewChannels(16, 4)
	commands := make(chan models.TradingCommand, 2)
	manager := NewTradingManager(client, channels, commands, time.Minute)

	results, cancelSub := channels.TradingResults.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	manager.wg.Add(1)
	go manager.commandLoop(ctx)

	commands <- models.NewTradingCommand("Binance", "BTC/USDT", models.Buy, models.Market, 0.001, nil)
	commands <- models.NewTradingCommand("Backpack", "BTC/USDT", models.Buy, models.Market, 0.001, nil)

	select {
	case result := <-results:
		if result.OrderID != "ord-9" {
			t.Fatalf("unexpected result %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result published")
	}

	select {
	case result := <-results:
		t.Fatalf("unexpected extra result %+v", result)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	manager.wg.Wait()
}
