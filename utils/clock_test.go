package utils

import (
	"testing"
	"time"
)

func TestFakeClockFiresWaitersInOrder(t *testing.T) {
	start := time.Date(2026, time.March, 11, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	early := c.After(time.Minute)
	late := c.After(time.Hour)
	if c.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", c.Pending())
	}

	c.Advance(30 * time.Second)
	select {
	case <-early:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-early:
		if !got.Equal(start.Add(time.Minute)) {
			t.Fatalf("fired at %v", got)
		}
	default:
		t.Fatal("waiter did not fire at deadline")
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}

	c.Set(start.Add(2 * time.Hour))
	<-late
	if c.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", c.Pending())
	}
	if !c.Now().Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("now = %v", c.Now())
	}
}

func TestFakeClockNonPositiveDurationFiresImmediately(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should be ready")
	}
	if c.Pending() != 0 {
		t.Fatalf("pending = %d", c.Pending())
	}
}

func TestRealClockLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	if got := NewRealClock(loc).Now().Location(); got != loc {
		t.Fatalf("location = %v", got)
	}
	if got := NewRealClock(nil).Now().Location(); got != time.Local {
		t.Fatalf("nil location = %v, want Local", got)
	}
}
