package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("got %v, want %v", c.Now(), start)
	}
	c.Advance(time.Hour)
	if !c.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("got %v, want %v", c.Now(), start.Add(time.Hour))
	}
}

func TestRealClockAdvancesWithWallTime(t *testing.T) {
	c := RealClock()
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	if !b.After(a) {
		t.Fatal("expected RealClock.Now() to advance")
	}
}
