// Package channel provides the connector's output distribution layer: one
// broadcaster per data stream, fire-and-forget with a drop-new overflow
// policy.
package channel

import (
	"backpackflow/logger"
	"backpackflow/models"
)

// Channels bundles the connector's output broadcasters. Market ticks, order
// updates and position/balance snapshots are independently time-ordered
// within their own producer but not globally synchronized; the push path and
// the backup poll loop both write to Positions and Balances, so consumers
// must tolerate duplicate updates.
type Channels struct {
	MarketTicks    *Broadcaster[models.MarketTick]
	TradingResults *Broadcaster[models.TradingResult]
	Positions      *Broadcaster[[]models.Position]
	Balances       *Broadcaster[[]models.AccountBalance]
	OrderUpdates   *Broadcaster[models.Order]

	log *logger.Log
}

// NewChannels creates the output channel set. tickBuffer sizes the market
// tick subscribers; stateBuffer sizes everything else.
func NewChannels(tickBuffer, stateBuffer int) *Channels {
	c := &Channels{
		MarketTicks:    NewBroadcaster[models.MarketTick](tickBuffer),
		TradingResults: NewBroadcaster[models.TradingResult](stateBuffer),
		Positions:      NewBroadcaster[[]models.Position](stateBuffer),
		Balances:       NewBroadcaster[[]models.AccountBalance](stateBuffer),
		OrderUpdates:   NewBroadcaster[models.Order](stateBuffer),
	}
	c.log = logger.GetLogger()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"tick_buffer":  tickBuffer,
		"state_buffer": stateBuffer,
	}).Info("output channels initialized")

	return c
}

// LogStats emits one summary line with the publish/drop counters of every
// broadcaster.
func (c *Channels) LogStats() {
	ticksPub, ticksDrop := c.MarketTicks.Stats()
	resultsPub, resultsDrop := c.TradingResults.Stats()
	posPub, posDrop := c.Positions.Stats()
	balPub, balDrop := c.Balances.Stats()
	ordPub, ordDrop := c.OrderUpdates.Stats()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"ticks_published":   ticksPub,
		"ticks_dropped":     ticksDrop,
		"results_published": resultsPub,
		"results_dropped":   resultsDrop,
		"positions":         posPub,
		"positions_dropped": posDrop,
		"balances":          balPub,
		"balances_dropped":  balDrop,
		"orders":            ordPub,
		"orders_dropped":    ordDrop,
	}).Info("channel statistics")
}
