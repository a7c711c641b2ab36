package backpack

// Smoother maintains an exponentially weighted latency estimate per symbol
// using integer arithmetic, matching the exchange's tick resolution. It is
// owned by a single stream goroutine and re-initialized on every reconnect,
// so it needs no synchronization.
type Smoother struct {
	prev map[string]int64
}

// NewSmoother creates an empty smoother.
func NewSmoother() *Smoother {
	return &Smoother{prev: make(map[string]int64)}
}

// Update folds a new latency sample into the estimate for symbol and returns
// the smoothed value: (3*previous + sample) / 4, truncated. The first sample
// for a symbol passes through unchanged.
func (s *Smoother) Update(symbol string, sample int64) int64 {
	prev, ok := s.prev[symbol]
	if !ok {
		prev = sample
	}
	smoothed := (prev*3 + sample) / 4
	s.prev[symbol] = smoothed
	return smoothed
}
