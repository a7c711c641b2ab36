package models

import "encoding/json"

// MarketTick represents one normalized mark-price event published to the
// market data channel. Symbols use the canonical engine notation (BTC/USDT).
type MarketTick struct {
	Exchange       string  `json:"exchange"`
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	FundingRate    float64 `json:"funding_rate"`
	FundingHours   float64 `json:"funding_hours"`
	EventTimestamp int64   `json:"event_timestamp"` // seconds
	LatencyMs      int64   `json:"latency_ms"`
}

// MarketInfo represents the exchange-side metadata for one market, including
// the order filters used for quantity validation.
type MarketInfo struct {
	Symbol      string        `json:"symbol"`
	BaseSymbol  string        `json:"baseSymbol"`
	QuoteSymbol string        `json:"quoteSymbol"`
	MarketType  string        `json:"marketType"`
	Filters     MarketFilters `json:"filters"`
}

// MarketFilters groups the per-market order validation rules.
type MarketFilters struct {
	Price    PriceFilter    `json:"price"`
	Quantity QuantityFilter `json:"quantity"`
}

// PriceFilter holds the price granularity rules for a market.
type PriceFilter struct {
	MinPrice string `json:"minPrice"`
	MaxPrice string `json:"maxPrice"`
	TickSize string `json:"tickSize"`
}

// QuantityFilter holds the quantity granularity rules for a market.
type QuantityFilter struct {
	MinQuantity string `json:"minQuantity"`
	MaxQuantity string `json:"maxQuantity"`
	StepSize    string `json:"stepSize"`
}

// FundingRateRecord represents one historical funding rate entry from the
// exchange. IntervalEndTimestamp is RFC3339.
type FundingRateRecord struct {
	Symbol               string `json:"symbol"`
	FundingRate          string `json:"fundingRate"`
	IntervalEndTimestamp string `json:"intervalEndTimestamp"`
}

// StreamEnvelope represents the wrapper around every inbound websocket frame.
type StreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// MarkPriceEvent represents the payload of a markPrice stream frame. The
// exchange uses single-letter field names; E is the event time in
// microseconds.
type MarkPriceEvent struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Price       string `json:"p"`
	FundingRate string `json:"f"`
	NextFunding int64  `json:"n"`
}
