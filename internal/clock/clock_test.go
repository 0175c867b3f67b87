package clock

import (
	"testing"
	"time"
)

func TestRealClockNowMovesForward(t *testing.T) {
	c := RealClock{}
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Fatalf("expected non-decreasing time, got %v then %v", a, b)
	}
}

func TestManualAdvance(t *testing.T) {
	start := time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)
	if !m.Now().Equal(start) {
		t.Fatalf("expected %v got %v", start, m.Now())
	}
	got := m.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !got.Equal(want) || !m.Now().Equal(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
}
