package indicator

import (
	"fmt"
	"testing"
)

func TestSMA_Correctness_Period3(t *testing.T) {
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, fmt.Sprintf("SMA(3) bar %d", i), sma.Value(), expected[i], 1e-9)
		}
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	// EMA(3): seed (10+11+12)/3 = 11, k = 0.5, then 11+0.5*(13-11) = 12
	ema := NewEMA(3)
	for _, p := range []float64{10, 11, 12} {
		ema.Update(p)
	}
	if !ema.Ready() {
		t.Fatal("EMA(3) not ready after 3 values")
	}
	assertClose(t, "seed", ema.Value(), 11, 1e-12)
	ema.Update(13)
	assertClose(t, "step", ema.Value(), 12, 1e-12)
}

func TestSMMA_WilderSmoothing(t *testing.T) {
	s := NewSMMA(2)
	s.Update(4)
	s.Update(6)
	assertClose(t, "seed", s.Value(), 5, 1e-12)
	s.Update(9)
	assertClose(t, "smoothed", s.Value(), 7, 1e-12)
}

func TestRSI_AllGainsIs100(t *testing.T) {
	r := NewRSI(3)
	for _, p := range []float64{1, 2, 3, 4, 5} {
		r.Update(p)
	}
	if !r.Ready() {
		t.Fatal("RSI(3) not ready after 5 prices")
	}
	assertClose(t, "RSI", r.Value(), 100, 1e-12)
}

func TestPeek_DoesNotMutate(t *testing.T) {
	streams := []Streamer{NewSMA(3), NewEMA(3), NewSMMA(3), NewRSI(3)}
	for _, s := range streams {
		for _, p := range []float64{10, 12, 11, 13, 12} {
			s.Update(p)
		}
		before := s.Value()
		peek := s.Peek(20)
		if s.Value() != before {
			t.Errorf("%s: Peek mutated state", s.Name())
		}
		s.Update(20)
		assertClose(t, s.Name()+" peek", peek, s.Value(), 1e-9)
	}
}

func TestReset_ClearsState(t *testing.T) {
	for _, s := range []Streamer{NewSMA(2), NewEMA(2), NewSMMA(2), NewRSI(2)} {
		for _, p := range []float64{1, 2, 3, 4} {
			s.Update(p)
		}
		s.Reset()
		if s.Ready() {
			t.Errorf("%s: ready after Reset", s.Name())
		}
	}
}
