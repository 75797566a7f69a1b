package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	if now := c.Now(); now.Before(before) {
		t.Errorf("Now() = %v before %v", now, before)
	}
	if d := c.Since(before.Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}

	ticker := c.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClockAdvanceFiresTicker(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	ticker := c.NewTicker(30 * time.Minute)

	c.Advance(10 * time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(20 * time.Minute)
	select {
	case got := <-ticker.C():
		if want := start.Add(30 * time.Minute); !got.Equal(want) {
			t.Errorf("tick = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	if got := c.Since(start); got != 30*time.Minute {
		t.Errorf("Since = %v", got)
	}
	if c.Tickers() != 1 {
		t.Errorf("Tickers = %d", c.Tickers())
	}
}

func TestMockTickerStopAndTrigger(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second).(*MockTicker)
	ticker.Stop()
	c.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	ticker.Trigger(c.Now())
	ticker.Trigger(c.Now())
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("second trigger should have been dropped")
	default:
	}
}
