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
	"backpackflow/internal/sign"
	"backpackflow/internal/symbols"
	"backpackflow/logger"
	"backpackflow/models"
)

const (
	orderUpdatePrefix    = "account.orderUpdate"
	positionUpdatePrefix = "account.positionUpdate"
)

// authRequest is the signed frame that authenticates the private socket.
type authRequest struct {
	Method string     `json:"method"`
	Params authParams `json:"params"`
}

type authParams struct {
	APIKey    string `json:"apiKey"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
	Window    string `json:"window"`
}

type accountSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// orderUpdateEvent is the payload of an account.orderUpdate frame.
type orderUpdateEvent struct {
	OrderID          string  `json:"id"`
	ClientID         *string `json:"clientId"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	OrderType        string  `json:"orderType"`
	Quantity         string  `json:"quantity"`
	Price            *string `json:"price"`
	Status           string  `json:"status"`
	ExecutedQuantity string  `json:"executedQuantity"`
	ExecutedPrice    *string `json:"executedPrice"`
	Timestamp        int64   `json:"timestamp"`
}

// positionUpdateEvent is the payload of an account.positionUpdate frame.
type positionUpdateEvent struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	EntryPrice    string `json:"entryPrice"`
	Leverage      string `json:"leverage"`
	Timestamp     int64  `json:"timestamp"`
}

// AccountStream maintains the authenticated websocket delivering order and
// position updates. It reconnects forever; the trading manager's poll loop
// covers any gap.
type AccountStream struct {
	signer         *sign.Signer
	wsURL          string
	exchange       string
	channels       *channel.Channels
	reconnectDelay time.Duration
	log            *logger.Log
	wg             *sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

// NewAccountStream creates the private update stream.
func NewAccountStream(signer *sign.Signer, wsURL, exchange string, channels *channel.Channels, reconnectDelay time.Duration) *AccountStream {
	return &AccountStream{
		signer:         signer,
		wsURL:          wsURL,
		exchange:       exchange,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		log:            logger.GetLogger(),
		wg:             &sync.WaitGroup{},
	}
}

// Start launches the connection loop.
func (as *AccountStream) Start(ctx context.Context) error {
	as.mu.Lock()
	if as.running {
		as.mu.Unlock()
		return fmt.Errorf("account stream already running")
	}
	as.running = true
	as.mu.Unlock()

	as.log.WithComponent("account_stream").WithFields(logger.Fields{"url": as.wsURL}).Info("starting account stream")

	as.wg.Add(1)
	go as.run(ctx)
	return nil
}

// Stop waits for the connection loop to exit.
func (as *AccountStream) Stop() {
	as.mu.Lock()
	as.running = false
	as.mu.Unlock()
	as.wg.Wait()
}

func (as *AccountStream) isRunning() bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.running
}

func (as *AccountStream) run(ctx context.Context) {
	defer as.wg.Done()
	log := as.log.WithComponent("account_stream")

	for as.isRunning() && ctx.Err() == nil {
		if err := as.connectAndConsume(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("account stream disconnected, reconnecting")
		}
		if ctx.Err() != nil {
			return
		}
		logger.IncrementWsReconnect()
		select {
		case <-time.After(as.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (as *AccountStream) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, as.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", as.wsURL, err)
	}
	defer conn.Close()

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

	timestamp := time.Now().UnixMilli()
	auth := authRequest{
		Method: "subscribe",
		Params: authParams{
			APIKey:    as.signer.PublicKey(),
			Signature: as.signer.SignSubscribe(timestamp, sign.WindowMs),
			Timestamp: strconv.FormatInt(timestamp, 10),
			Window:    strconv.FormatInt(sign.WindowMs, 10),
		},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	subscribe := accountSubscribeRequest{
		Method: "subscribe",
		Params: []string{orderUpdatePrefix + ".*", positionUpdatePrefix + ".*"},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	as.log.WithComponent("account_stream").Info("subscribed to account updates")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.IncrementWsFrame()
		as.handleFrame(message)
	}
}

func (as *AccountStream) handleFrame(message []byte) {
	log := as.log.WithComponent("account_stream")

	var envelope models.StreamEnvelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		log.WithError(err).Debug("skipping unparseable frame")
		return
	}

	switch {
	case strings.HasPrefix(envelope.Stream, orderUpdatePrefix):
		var event orderUpdateEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			log.WithError(err).Warn("bad order update payload")
			return
		}
		order, err := as.convertOrderUpdate(event)
		if err != nil {
			log.WithError(err).Warn("unusable order update")
			return
		}
		as.channels.OrderUpdates.Publish(order)
	case strings.HasPrefix(envelope.Stream, positionUpdatePrefix):
		var event positionUpdateEvent
		if err := json.Unmarshal(envelope.Data, &event); err != nil {
			log.WithError(err).Warn("bad position update payload")
			return
		}
		as.channels.Positions.Publish([]models.Position{as.convertPositionUpdate(event)})
	}
}

// convertOrderUpdate maps a push event to canonical form. Push parsing is
// lenient where the REST path is strict: unknown order types degrade to
// Limit and unknown statuses to Live, so a new exchange vocabulary word
// never silences the stream.
func (as *AccountStream) convertOrderUpdate(event orderUpdateEvent) (models.Order, error) {
	side, err := sideFromExchange(event.Side)
	if err != nil {
		return models.Order{}, err
	}

	orderType := models.Limit
	if event.OrderType == "Market" {
		orderType = models.Market
	}

	status := models.Live
	switch event.Status {
	case "PartiallyFilled":
		status = models.PartiallyFilled
	case "Filled":
		status = models.Filled
	case "Cancelled":
		status = models.Canceled
	}

	var clientOrderID string
	if event.ClientID != nil {
		clientOrderID = *event.ClientID
	}
	var price *float64
	if event.Price != nil {
		if p, err := strconv.ParseFloat(*event.Price, 64); err == nil {
			price = &p
		}
	}
	var avgPrice *float64
	if event.ExecutedPrice != nil {
		if p, err := strconv.ParseFloat(*event.ExecutedPrice, 64); err == nil {
			avgPrice = &p
		}
	}

	return models.Order{
		OrderID:       event.OrderID,
		ClientOrderID: clientOrderID,
		Exchange:      as.exchange,
		Symbol:        symbols.FromExchange(event.Symbol),
		Side:          side,
		Type:          orderType,
		Size:          parseFloatOr(event.Quantity, 0),
		Price:         price,
		FilledSize:    parseFloatOr(event.ExecutedQuantity, 0),
		AvgPrice:      avgPrice,
		Status:        status,
		CreatedTime:   event.Timestamp,
		UpdatedTime:   event.Timestamp,
	}, nil
}

func (as *AccountStream) convertPositionUpdate(event positionUpdateEvent) models.Position {
	return models.Position{
		Exchange:      as.exchange,
		Symbol:        symbols.FromExchange(event.Symbol),
		Side:          event.Side,
		Size:          parseFloatOr(event.Size, 0),
		AvgPrice:      parseFloatOr(event.EntryPrice, 0),
		UnrealizedPnl: parseFloatOr(event.UnrealizedPnl, 0),
		Leverage:      parseFloatOr(event.Leverage, 1),
		UpdatedTime:   event.Timestamp,
	}
}
