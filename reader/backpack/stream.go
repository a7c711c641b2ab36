// Package backpack implements the market data side of the connector: the
// mark price websocket streams, the funding interval tracker and the market
// metadata fetch.
package backpack

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"backpackflow/internal/channel"
	"backpackflow/internal/symbols"
	"backpackflow/logger"
	"backpackflow/models"
)

const markPricePrefix = "markPrice."

// subscribeRequest is the frame sent after every (re)connect.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// MarketStream owns one websocket connection carrying the mark price streams
// of up to 200 symbols. It reconnects forever on any failure and publishes
// normalized ticks to the shared market tick broadcaster.
type MarketStream struct {
	name           string
	exchange       string
	wsURL          string
	symbols        []string
	intervals      *IntervalTable
	channels       *channel.Channels
	reconnectDelay time.Duration
	log            *logger.Log
	wg             *sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

// NewMarketStream creates a stream for one chunk of exchange symbols. index
// distinguishes the stream in logs when the symbol universe spans several
// sockets.
func NewMarketStream(index int, exchange, wsURL string, exchangeSymbols []string, intervals *IntervalTable, channels *channel.Channels, reconnectDelay time.Duration) *MarketStream {
	return &MarketStream{
		name:           fmt.Sprintf("market_stream_%d", index),
		exchange:       exchange,
		wsURL:          wsURL,
		symbols:        exchangeSymbols,
		intervals:      intervals,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		log:            logger.GetLogger(),
		wg:             &sync.WaitGroup{},
	}
}

// Start launches the connection loop.
func (ms *MarketStream) Start(ctx context.Context) error {
	ms.mu.Lock()
	if ms.running {
		ms.mu.Unlock()
		return fmt.Errorf("%s already running", ms.name)
	}
	ms.running = true
	ms.mu.Unlock()

	ms.log.WithComponent(ms.name).WithFields(logger.Fields{
		"symbols": len(ms.symbols),
		"url":     ms.wsURL,
	}).Info("starting market stream")

	ms.wg.Add(1)
	go ms.run(ctx)
	return nil
}

// Stop waits for the connection loop to exit. Cancel the context passed to
// Start first.
func (ms *MarketStream) Stop() {
	ms.mu.Lock()
	ms.running = false
	ms.mu.Unlock()
	ms.wg.Wait()
}

func (ms *MarketStream) isRunning() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.running
}

func (ms *MarketStream) run(ctx context.Context) {
	defer ms.wg.Done()
	log := ms.log.WithComponent(ms.name)

	for ms.isRunning() && ctx.Err() == nil {
		if err := ms.connectAndConsume(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("market stream disconnected, reconnecting")
		}
		if ctx.Err() != nil {
			return
		}
		logger.IncrementWsReconnect()
		select {
		case <-time.After(ms.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndConsume dials the public websocket, subscribes this stream's
// symbols and consumes frames until the connection drops or the context is
// cancelled. Latency smoothing restarts from scratch on every connection.
func (ms *MarketStream) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ms.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", ms.wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	params := make([]string, 0, len(ms.symbols))
	for _, symbol := range ms.symbols {
		params = append(params, markPricePrefix+symbol)
	}
	if err := conn.WriteJSON(subscribeRequest{Method: "SUBSCRIBE", Params: params}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ms.log.WithComponent(ms.name).WithFields(logger.Fields{"streams": len(params)}).Info("subscribed to mark price streams")

	smoother := NewSmoother()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.IncrementWsFrame()
		ms.handleFrame(message, smoother)
	}
}

func (ms *MarketStream) handleFrame(message []byte, smoother *Smoother) {
	log := ms.log.WithComponent(ms.name)

	var envelope models.StreamEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		log.WithError(err).Debug("skipping unparseable frame")
		return
	}
	if !strings.HasPrefix(envelope.Stream, markPricePrefix) {
		// Subscription acks and unknown streams pass through silently.
		return
	}

	var event models.MarkPriceEvent
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		log.WithError(err).Warn("bad mark price payload")
		return
	}

	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"symbol": event.Symbol}).Warn("bad mark price value")
		return
	}
	fundingRate, err := strconv.ParseFloat(event.FundingRate, 64)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"symbol": event.Symbol}).Warn("bad funding rate value")
		return
	}

	// Event time arrives in microseconds; the latency sample compares
	// milliseconds and a clock skew between hosts can push it negative.
	sample := time.Now().UnixMilli() - event.EventTime/1_000
	if sample < 0 {
		sample = 0
	}
	canonical := symbols.NormalizeStream(event.Symbol)

	tick := models.MarketTick{
		Exchange:       ms.exchange,
		Symbol:         canonical,
		Price:          price,
		FundingRate:    fundingRate,
		FundingHours:   ms.intervals.Get(event.Symbol),
		EventTimestamp: event.EventTime / 1_000_000,
		LatencyMs:      smoother.Update(canonical, sample),
	}

	ms.channels.MarketTicks.Publish(tick)
	logger.IncrementTickPublished()
}
