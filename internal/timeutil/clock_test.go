package timeutil

import (
	"testing"
	"time"
)

func TestMockClockNowAndAdvance(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(5 * time.Minute)
	want := start.Add(5 * time.Minute)
	if !c.Now().Equal(want) {
		t.Fatalf("Now() after advance = %v, want %v", c.Now(), want)
	}
}

func TestMockClockAfterFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	ch := c.After(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired too early")
	default:
	}

	c.Advance(1 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire once the deadline passed")
	}
}

func TestMockClockAfterZeroFiresImmediately(t *testing.T) {
	c := NewMockClock(time.Now())
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestRealClockNow(t *testing.T) {
	var c Clock = RealClock{}
	before := time.Now()
	got := c.Now()
	if got.Before(before.Add(-time.Second)) {
		t.Fatalf("RealClock.Now() = %v, too far behind %v", got, before)
	}
}
