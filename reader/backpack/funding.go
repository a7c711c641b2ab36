package backpack

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backpackflow/internal/exerr"
	"backpackflow/internal/rest"
	"backpackflow/logger"
	"backpackflow/models"
)

// IntervalTable holds the funding interval length in hours per exchange
// symbol. It is read concurrently by every market stream and written only
// by the funding tracker loop.
type IntervalTable struct {
	mu           sync.RWMutex
	hours        map[string]float64
	defaultHours float64
}

// NewIntervalTable creates a table that answers defaultHours for untracked
// symbols.
func NewIntervalTable(defaultHours float64) *IntervalTable {
	return &IntervalTable{
		hours:        make(map[string]float64),
		defaultHours: defaultHours,
	}
}

// Get returns the funding interval for symbol, or the default when the
// symbol has not been refreshed yet.
func (t *IntervalTable) Get(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if hours, ok := t.hours[symbol]; ok {
		return hours
	}
	return t.defaultHours
}

// Set stores the funding interval for symbol.
func (t *IntervalTable) Set(symbol string, hours float64) {
	t.mu.Lock()
	t.hours[symbol] = hours
	t.mu.Unlock()
}

// FundingTracker periodically refreshes the funding interval of every
// tracked symbol from the exchange's funding rate history. A fetch failure
// for one symbol is logged and skipped, never aborts the cycle.
type FundingTracker struct {
	gateway  *rest.Gateway
	table    *IntervalTable
	symbols  []string
	interval time.Duration
	log      *logger.Log
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewFundingTracker creates a tracker refreshing the given exchange symbols
// every interval.
func NewFundingTracker(gateway *rest.Gateway, table *IntervalTable, symbols []string, interval time.Duration) *FundingTracker {
	return &FundingTracker{
		gateway:  gateway,
		table:    table,
		symbols:  symbols,
		interval: interval,
		log:      logger.GetLogger(),
		wg:       &sync.WaitGroup{},
	}
}

// Start launches the refresh loop. The first cycle runs immediately.
func (ft *FundingTracker) Start(ctx context.Context) error {
	ft.mu.Lock()
	if ft.running {
		ft.mu.Unlock()
		return fmt.Errorf("funding tracker already running")
	}
	ft.running = true
	ft.mu.Unlock()

	ft.log.WithComponent("funding_tracker").WithFields(logger.Fields{
		"symbols":  len(ft.symbols),
		"interval": ft.interval,
	}).Info("starting funding tracker")

	ft.wg.Add(1)
	go ft.loop(ctx)
	return nil
}

// Stop waits for the refresh loop to exit.
func (ft *FundingTracker) Stop() {
	ft.mu.Lock()
	ft.running = false
	ft.mu.Unlock()
	ft.wg.Wait()
}

func (ft *FundingTracker) loop(ctx context.Context) {
	defer ft.wg.Done()
	for {
		ft.refreshAll(ctx)
		select {
		case <-time.After(ft.interval):
		case <-ctx.Done():
			return
		}
	}
}

func (ft *FundingTracker) refreshAll(ctx context.Context) {
	log := ft.log.WithComponent("funding_tracker")
	updated := 0
	for _, symbol := range ft.symbols {
		if ctx.Err() != nil {
			return
		}
		hours, err := ft.fetchInterval(ctx, symbol)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("failed to refresh funding interval")
			continue
		}
		ft.table.Set(symbol, hours)
		updated++
	}
	log.WithFields(logger.Fields{"updated": updated, "tracked": len(ft.symbols)}).Info("funding intervals refreshed")
}

// fetchInterval derives the interval length from the two most recent funding
// rate records: the distance between their interval end timestamps.
func (ft *FundingTracker) fetchInterval(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("/fundingRates?symbol=%s&limit=2", symbol)

	var records []models.FundingRateRecord
	if err := ft.gateway.Do(ctx, "GET", endpoint, nil, &records); err != nil {
		return 0, err
	}
	if len(records) < 2 {
		return 0, exerr.Trading("insufficient funding rate data for %s: got %d records", symbol, len(records))
	}

	t0, err := time.Parse(time.RFC3339, records[0].IntervalEndTimestamp)
	if err != nil {
		return 0, exerr.Wrap(exerr.KindInvalidData, err, "bad interval end timestamp %q", records[0].IntervalEndTimestamp)
	}
	t1, err := time.Parse(time.RFC3339, records[1].IntervalEndTimestamp)
	if err != nil {
		return 0, exerr.Wrap(exerr.KindInvalidData, err, "bad interval end timestamp %q", records[1].IntervalEndTimestamp)
	}

	return float64(t0.UnixMilli()-t1.UnixMilli()) / 3_600_000.0, nil
}
