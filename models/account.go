package models

// Position represents one open perpetual position in canonical form.
// Zero-size positions are filtered out before publication.
type Position struct {
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Size          float64 `json:"size"`
	AvgPrice      float64 `json:"avg_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	Margin        float64 `json:"margin"`
	Leverage      float64 `json:"leverage"`
	UpdatedTime   int64   `json:"updated_time"` // milliseconds
}

// AccountBalance represents one currency row of the account balance. The
// synthetic "USD" summary row carries the net equity from the collateral
// endpoint. MarginRatio is nil when the exchange reports no margin fraction,
// which is distinct from a zero ratio.
type AccountBalance struct {
	Exchange         string   `json:"exchange"`
	Currency         string   `json:"currency"`
	TotalBalance     float64  `json:"total_balance"`
	AvailableBalance float64  `json:"available_balance"`
	FrozenBalance    float64  `json:"frozen_balance"`
	Equity           float64  `json:"equity"`
	MarginRatio      *float64 `json:"margin_ratio,omitempty"`
	UpdatedTime      int64    `json:"updated_time"` // milliseconds
}
