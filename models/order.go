package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "Buy"
	Sell OrderSide = "Sell"
)

// OrderType represents the execution style requested for an order.
type OrderType string

const (
	Market            OrderType = "Market"
	Limit             OrderType = "Limit"
	PostOnly          OrderType = "PostOnly"
	FillOrKill        OrderType = "FillOrKill"
	ImmediateOrCancel OrderType = "ImmediateOrCancel"
)

// OrderStatus represents the lifecycle state reported by the exchange. The
// connector republishes whatever the exchange sends and does not enforce the
// transition graph itself.
type OrderStatus string

const (
	Live            OrderStatus = "Live"
	PartiallyFilled OrderStatus = "PartiallyFilled"
	Filled          OrderStatus = "Filled"
	Canceled        OrderStatus = "Canceled"
)

// Order represents one order in canonical form, produced by both the REST
// query path and the websocket update path.
type Order struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Exchange      string      `json:"exchange"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	Size          float64     `json:"size"`
	Price         *float64    `json:"price,omitempty"`
	FilledSize    float64     `json:"filled_size"`
	AvgPrice      *float64    `json:"avg_price,omitempty"`
	Status        OrderStatus `json:"status"`
	CreatedTime   int64       `json:"created_time"`
	UpdatedTime   int64       `json:"updated_time"`
}

// CommandAction selects the operation a TradingCommand requests.
type CommandAction string

const (
	ActionPlace  CommandAction = "place"
	ActionCancel CommandAction = "cancel"
)

// TradingCommand represents one inbound instruction from the embedding
// engine. OrderID is only set for cancel commands.
type TradingCommand struct {
	CommandID string        `json:"command_id"`
	Exchange  string        `json:"exchange"`
	Action    CommandAction `json:"action"`
	Symbol    string        `json:"symbol"`
	Side      OrderSide     `json:"side"`
	Type      OrderType     `json:"type"`
	Size      float64       `json:"size"`
	Price     *float64      `json:"price,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
}

// NewTradingCommand builds a place command with a fresh command id.
func NewTradingCommand(exchange, symbol string, side OrderSide, orderType OrderType, size float64, price *float64) TradingCommand {
	return TradingCommand{
		CommandID: uuid.NewString(),
		Exchange:  exchange,
		Action:    ActionPlace,
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Size:      size,
		Price:     price,
	}
}

// TradingResult represents the outcome of one TradingCommand. A result is
// always produced, success or failure.
type TradingResult struct {
	CommandID    string `json:"command_id"`
	Success      bool   `json:"success"`
	OrderID      string `json:"order_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Timestamp    int64  `json:"timestamp"` // milliseconds
}

// FailedResult builds an unsuccessful TradingResult for the given command.
func FailedResult(commandID, message string) TradingResult {
	return TradingResult{
		CommandID:    commandID,
		Success:      false,
		ErrorMessage: message,
		Timestamp:    time.Now().UnixMilli(),
	}
}
