package backpack

import "testing"

func TestSmootherFirstSamplePassesThrough(t *testing.T) {
	s := NewSmoother()
	if got := s.Update("BTC/USDT", 100); got != 100 {
		t.Fatalf("first sample = %d, want 100", got)
	}
}

func TestSmootherWeightsHistory(t *testing.T) {
	s := NewSmoother()
	s.Update("BTC/USDT", 100)
	// (100*3 + 500) / 4
	if got := s.Update("BTC/USDT", 500); got != 200 {
		t.Fatalf("second sample = %d, want 200", got)
	}
}

func TestSmootherTracksSymbolsIndependently(t *testing.T) {
	s := NewSmoother()
	s.Update("BTC/USDT", 100)
	if got := s.Update("ETH/USDT", 40); got != 40 {
		t.Fatalf("independent symbol first sample = %d, want 40", got)
	}
}

func TestSmootherConvergesUnderConstantInput(t *testing.T) {
	s := NewSmoother()
	var got int64
	for i := 0; i < 50; i++ {
		got = s.Update("BTC/USDT", 80)
	}
	if got != 80 {
		t.Fatalf("steady state = %d, want 80", got)
	}
}
