// Package backpack implements the trading side of the connector: the REST
// trading client, the command-processing manager and the private account
// update stream.
package backpack

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"backpackflow/internal/exerr"
	"backpackflow/internal/rest"
	"backpackflow/internal/symbols"
	"backpackflow/logger"
	"backpackflow/models"
)

// orderRequest is the exchange-side order placement body. The API expects a
// batch array even for a single order.
type orderRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	OrderType   string  `json:"orderType"`
	TimeInForce string  `json:"timeInForce"`
	Quantity    string  `json:"quantity"`
	Price       *string `json:"price,omitempty"`
	ClientID    *uint32 `json:"clientId,omitempty"`
	PostOnly    *bool   `json:"postOnly,omitempty"`
	ReduceOnly  *bool   `json:"reduceOnly,omitempty"`
}

type orderResponse struct {
	ID                    string  `json:"id"`
	ClientID              *uint32 `json:"clientId"`
	Symbol                string  `json:"symbol"`
	Side                  string  `json:"side"`
	OrderType             string  `json:"orderType"`
	Quantity              string  `json:"quantity"`
	Price                 *string `json:"price"`
	Status                string  `json:"status"`
	ExecutedQuantity      string  `json:"executedQuantity"`
	ExecutedQuoteQuantity string  `json:"executedQuoteQuantity"`
	TimeInForce           string  `json:"timeInForce"`
	CreatedAt             int64   `json:"createdAt"`
}

type cancelRequest struct {
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
}

type positionRow struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	EntryPrice    string `json:"entryPrice"`
	Leverage      string `json:"leverage"`
}

type collateralResponse struct {
	AssetsValue        string  `json:"assetsValue"`
	MarginFraction     *string `json:"marginFraction"`
	NetEquity          string  `json:"netEquity"`
	NetEquityAvailable string  `json:"netEquityAvailable"`
}

type balanceRow struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Staked    string `json:"staked"`
}

// TradingClient issues order, position and balance operations against the
// exchange. It is safe for concurrent use; the market table is immutable
// after construction.
type TradingClient struct {
	gateway  *rest.Gateway
	exchange string
	markets  map[string]models.MarketInfo
	log      *logger.Log
}

// NewTradingClient builds a client over the markets discovered at startup,
// keyed by exchange symbol.
func NewTradingClient(gateway *rest.Gateway, exchange string, markets []models.MarketInfo) *TradingClient {
	table := make(map[string]models.MarketInfo, len(markets))
	for _, m := range markets {
		table[m.Symbol] = m
	}
	return &TradingClient{
		gateway:  gateway,
		exchange: exchange,
		markets:  table,
		log:      logger.GetLogger(),
	}
}

func (c *TradingClient) marketFor(exchangeSymbol string) (models.MarketInfo, error) {
	market, ok := c.markets[exchangeSymbol]
	if !ok {
		return models.MarketInfo{}, exerr.Trading("market %s not found", exchangeSymbol)
	}
	return market, nil
}

// ValidateQuantity adjusts a requested quantity to the market's rules: raise
// to the minimum, round to the nearest step multiple, and raise again if the
// rounding fell below the minimum.
func (c *TradingClient) ValidateQuantity(exchangeSymbol string, quantity float64) (float64, error) {
	market, err := c.marketFor(exchangeSymbol)
	if err != nil {
		return 0, err
	}

	minQty, err := strconv.ParseFloat(market.Filters.Quantity.MinQuantity, 64)
	if err != nil {
		return 0, exerr.Trading("failed to parse min quantity for %s: %v", exchangeSymbol, err)
	}
	stepSize, err := strconv.ParseFloat(market.Filters.Quantity.StepSize, 64)
	if err != nil {
		return 0, exerr.Trading("failed to parse step size for %s: %v", exchangeSymbol, err)
	}

	adjusted := math.Max(quantity, minQty)
	final := math.Round(adjusted/stepSize) * stepSize
	if final < minQty {
		return minQty, nil
	}
	return final, nil
}

// orderTypeParams maps a canonical order type to the exchange's orderType,
// timeInForce and postOnly trio.
func orderTypeParams(orderType models.OrderType) (string, string, *bool, error) {
	truth := true
	switch orderType {
	case models.Market:
		return "Market", "IOC", nil, nil
	case models.Limit:
		return "Limit", "GTC", nil, nil
	case models.PostOnly:
		return "Limit", "GTC", &truth, nil
	case models.FillOrKill:
		return "Limit", "FOK", nil, nil
	case models.ImmediateOrCancel:
		return "Limit", "IOC", nil, nil
	default:
		return "", "", nil, exerr.Trading("unsupported order type: %s", orderType)
	}
}

func sideToExchange(side models.OrderSide) (string, error) {
	switch side {
	case models.Buy:
		return "Bid", nil
	case models.Sell:
		return "Ask", nil
	default:
		return "", exerr.Trading("unsupported order side: %s", side)
	}
}

func sideFromExchange(side string) (models.OrderSide, error) {
	switch side {
	case "Bid":
		return models.Buy, nil
	case "Ask":
		return models.Sell, nil
	default:
		return "", exerr.InvalidData("invalid order side: %s", side)
	}
}

// PlaceOrder submits a place command and returns the exchange order id. The
// quantity is validated against the market rules before submission.
func (c *TradingClient) PlaceOrder(ctx context.Context, command models.TradingCommand) (string, error) {
	exchangeSymbol := symbols.ToExchange(command.Symbol)

	quantity, err := c.ValidateQuantity(exchangeSymbol, command.Size)
	if err != nil {
		return "", err
	}
	if quantity != command.Size {
		c.log.WithComponent("trading_client").WithFields(logger.Fields{
			"symbol":    command.Symbol,
			"requested": command.Size,
			"adjusted":  quantity,
		}).Info("order quantity adjusted to market rules")
	}

	orderType, timeInForce, postOnly, err := orderTypeParams(command.Type)
	if err != nil {
		return "", err
	}
	side, err := sideToExchange(command.Side)
	if err != nil {
		return "", err
	}

	// The exchange's client id is a u32; fold the millisecond timestamp
	// into range.
	clientID := uint32(time.Now().UnixMilli() % int64(math.MaxUint32))

	request := orderRequest{
		Symbol:      exchangeSymbol,
		Side:        side,
		OrderType:   orderType,
		TimeInForce: timeInForce,
		Quantity:    strconv.FormatFloat(quantity, 'f', -1, 64),
		ClientID:    &clientID,
		PostOnly:    postOnly,
	}
	if command.Price != nil {
		price := strconv.FormatFloat(*command.Price, 'f', -1, 64)
		request.Price = &price
	}

	body, err := json.Marshal([]orderRequest{request})
	if err != nil {
		return "", exerr.Wrap(exerr.KindTrading, err, "failed to serialize order request")
	}

	var responses []orderResponse
	if err := c.gateway.Do(ctx, http.MethodPost, "/orders", body, &responses); err != nil {
		return "", err
	}
	if len(responses) == 0 {
		return "", exerr.Trading("empty response array")
	}
	return responses[0].ID, nil
}

// GetOrder fetches one order by id and converts it to canonical form. Unknown
// sides, types or statuses are rejected as invalid data.
func (c *TradingClient) GetOrder(ctx context.Context, orderID, symbol string) (models.Order, error) {
	exchangeSymbol := symbols.ToExchange(symbol)
	endpoint := "/orders?orderId=" + orderID + "&symbol=" + exchangeSymbol

	var response orderResponse
	if err := c.gateway.Do(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return models.Order{}, err
	}
	return c.convertOrder(response)
}

func (c *TradingClient) convertOrder(response orderResponse) (models.Order, error) {
	side, err := sideFromExchange(response.Side)
	if err != nil {
		return models.Order{}, err
	}

	var orderType models.OrderType
	switch response.OrderType {
	case "Market":
		orderType = models.Market
	case "Limit":
		switch response.TimeInForce {
		case "GTC":
			orderType = models.Limit
		case "FOK":
			orderType = models.FillOrKill
		default:
			orderType = models.ImmediateOrCancel
		}
	default:
		return models.Order{}, exerr.InvalidData("invalid order type: %s", response.OrderType)
	}

	var status models.OrderStatus
	switch response.Status {
	case "New", "Pending":
		status = models.Live
	case "PartiallyFilled":
		status = models.PartiallyFilled
	case "Filled":
		status = models.Filled
	case "Cancelled":
		status = models.Canceled
	default:
		return models.Order{}, exerr.InvalidData("invalid order status: %s", response.Status)
	}

	executedQty := parseFloatOr(response.ExecutedQuantity, 0)
	executedQuote := parseFloatOr(response.ExecutedQuoteQuantity, 0)
	var avgPrice *float64
	if executedQty > 0 && executedQuote > 0 {
		avg := executedQuote / executedQty
		avgPrice = &avg
	}

	var clientOrderID string
	if response.ClientID != nil {
		clientOrderID = strconv.FormatUint(uint64(*response.ClientID), 10)
	}
	var price *float64
	if response.Price != nil {
		if p, err := strconv.ParseFloat(*response.Price, 64); err == nil {
			price = &p
		}
	}

	return models.Order{
		OrderID:       response.ID,
		ClientOrderID: clientOrderID,
		Exchange:      c.exchange,
		Symbol:        symbols.FromExchange(response.Symbol),
		Side:          side,
		Type:          orderType,
		Size:          parseFloatOr(response.Quantity, 0),
		Price:         price,
		FilledSize:    executedQty,
		AvgPrice:      avgPrice,
		Status:        status,
		CreatedTime:   response.CreatedAt,
		UpdatedTime:   response.CreatedAt,
	}, nil
}

// CancelOrder cancels one order by id.
func (c *TradingClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	body, err := json.Marshal(cancelRequest{
		OrderID: orderID,
		Symbol:  symbols.ToExchange(symbol),
	})
	if err != nil {
		return exerr.Wrap(exerr.KindTrading, err, "failed to serialize cancel request")
	}

	var response orderResponse
	return c.gateway.Do(ctx, http.MethodDelete, "/orders", body, &response)
}

// GetPositions fetches all open positions. Zero-size rows are dropped.
func (c *TradingClient) GetPositions(ctx context.Context) ([]models.Position, error) {
	var rows []positionRow
	if err := c.gateway.Do(ctx, http.MethodGet, "/position", nil, &rows); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	positions := make([]models.Position, 0, len(rows))
	for _, row := range rows {
		size := parseFloatOr(row.Size, 0)
		if size == 0 {
			continue
		}
		positions = append(positions, models.Position{
			Exchange:      c.exchange,
			Symbol:        symbols.FromExchange(row.Symbol),
			Side:          row.Side,
			Size:          size,
			AvgPrice:      parseFloatOr(row.EntryPrice, 0),
			UnrealizedPnl: parseFloatOr(row.UnrealizedPnl, 0),
			Leverage:      parseFloatOr(row.Leverage, 1),
			UpdatedTime:   now,
		})
	}
	return positions, nil
}

func (c *TradingClient) getCollateral(ctx context.Context) (*collateralResponse, error) {
	var response collateralResponse
	if err := c.gateway.Do(ctx, http.MethodGet, "/capital/collateral", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetAccountBalance combines the balance map and the collateral summary. When
// collateral data is available a synthetic USD row carrying the net equity
// and margin fraction leads the slice. Zero-total currencies are dropped. A
// nil margin ratio means the account reports no margin fraction.
func (c *TradingClient) GetAccountBalance(ctx context.Context) ([]models.AccountBalance, error) {
	var balanceMap map[string]balanceRow
	if err := c.gateway.Do(ctx, http.MethodGet, "/capital", nil, &balanceMap); err != nil {
		return nil, err
	}

	collateral, err := c.getCollateral(ctx)
	if err != nil {
		c.log.WithComponent("trading_client").WithError(err).Warn("collateral fetch failed, omitting summary row")
		collateral = nil
	}

	var marginRatio *float64
	if collateral != nil && collateral.MarginFraction != nil {
		if ratio, err := strconv.ParseFloat(*collateral.MarginFraction, 64); err == nil {
			marginRatio = &ratio
		}
	}

	now := time.Now().UnixMilli()
	var balances []models.AccountBalance

	if collateral != nil {
		netEquity := parseFloatOr(collateral.NetEquity, 0)
		balances = append(balances, models.AccountBalance{
			Exchange:         c.exchange,
			Currency:         "USD",
			TotalBalance:     netEquity,
			AvailableBalance: netEquity,
			Equity:           netEquity,
			MarginRatio:      marginRatio,
			UpdatedTime:      now,
		})
	}

	for currency, row := range balanceMap {
		available := parseFloatOr(row.Available, 0)
		locked := parseFloatOr(row.Locked, 0)
		staked := parseFloatOr(row.Staked, 0)
		total := available + locked + staked
		if total == 0 {
			continue
		}
		balances = append(balances, models.AccountBalance{
			Exchange:         c.exchange,
			Currency:         currency,
			TotalBalance:     total,
			AvailableBalance: available,
			FrozenBalance:    locked + staked,
			Equity:           total,
			MarginRatio:      marginRatio,
			UpdatedTime:      now,
		})
	}
	return balances, nil
}

func parseFloatOr(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}
