package mergeable

import (
	"testing"
	"time"
)

func TestStampCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Stamp
		want int
	}{
		{"millis dominate", Stamp{Millis: 1}, Stamp{Millis: 2}, -1},
		{"counter breaks millis tie", Stamp{Millis: 1, Counter: 2}, Stamp{Millis: 1, Counter: 1}, 1},
		{"node breaks full tie", Stamp{Millis: 1, Node: "a"}, Stamp{Millis: 1, Node: "b"}, -1},
		{"equal", Stamp{Millis: 1, Counter: 1, Node: "a"}, Stamp{Millis: 1, Counter: 1, Node: "a"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compare(tt.b); got != tt.want {
				t.Errorf("Compare = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClockMonotonic(t *testing.T) {
	c := NewClock("n1")
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		next := c.Now()
		if !prev.Less(next) {
			t.Fatalf("stamp %v not after %v", next, prev)
		}
		prev = next
	}
}

func TestClockStuckWallClock(t *testing.T) {
	frozen := time.UnixMilli(1000)
	c := NewClock("n1")
	c.nowFn = func() time.Time { return frozen }

	a := c.Now()
	b := c.Now()
	if a.Millis != 1000 || b.Millis != 1000 {
		t.Fatalf("millis = %d, %d, want 1000", a.Millis, b.Millis)
	}
	if b.Counter <= a.Counter {
		t.Errorf("counter did not advance under a stuck wall clock")
	}
}

func TestClockObserve(t *testing.T) {
	c := NewClock("n1")
	c.nowFn = func() time.Time { return time.UnixMilli(1000) }

	// A remote stamp far ahead of the local wall clock.
	remote := Stamp{Millis: 5000, Counter: 3, Node: "n2"}
	c.Observe(remote)
	local := c.Now()
	if !remote.Less(local) {
		t.Errorf("local stamp %v does not order after observed %v", local, remote)
	}

	// Observing the past changes nothing.
	c.Observe(Stamp{Millis: 1, Node: "n3"})
	next := c.Now()
	if !local.Less(next) {
		t.Errorf("stamp %v regressed after observing an old stamp", next)
	}
}

func TestStampIsZero(t *testing.T) {
	if !(Stamp{}).IsZero() {
		t.Error("zero stamp not reported zero")
	}
	if (Stamp{Millis: 1}).IsZero() {
		t.Error("nonzero stamp reported zero")
	}
}
