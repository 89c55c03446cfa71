// Package mergeable layers a mergeable state representation over a store:
// every cell write and row delete carries a hybrid logical clock stamp, and
// two peers' states merge deterministically with last-writer-wins per cell.
// The merge is commutative, associative, and idempotent, so peers converge
// regardless of exchange order; conflicts are never surfaced as errors.
package mergeable

import (
	"sync"
	"time"
)

// Stamp is a hybrid logical clock reading: physical milliseconds, a logical
// counter for same-millisecond events, and the originating node id as the
// final tiebreak. Stamps are totally ordered.
type Stamp struct {
	Millis  int64  `json:"m"`
	Counter uint32 `json:"c"`
	Node    string `json:"n"`
}

// IsZero reports whether the stamp is the zero value (no event observed).
func (s Stamp) IsZero() bool { return s.Millis == 0 && s.Counter == 0 && s.Node == "" }

// Compare orders two stamps: negative when s is earlier than o.
func (s Stamp) Compare(o Stamp) int {
	switch {
	case s.Millis != o.Millis:
		if s.Millis < o.Millis {
			return -1
		}
		return 1
	case s.Counter != o.Counter:
		if s.Counter < o.Counter {
			return -1
		}
		return 1
	case s.Node != o.Node:
		if s.Node < o.Node {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether s is earlier than o.
func (s Stamp) Less(o Stamp) bool { return s.Compare(o) < 0 }

func maxStamp(a, b Stamp) Stamp {
	if a.Less(b) {
		return b
	}
	return a
}

// Clock issues monotonically increasing stamps for one node and folds in
// remote stamps so local events always order after everything observed.
type Clock struct {
	mu      sync.Mutex
	node    string
	millis  int64
	counter uint32
	nowFn   func() time.Time
}

// NewClock creates a clock for the given node id.
func NewClock(node string) *Clock {
	return &Clock{node: node, nowFn: time.Now}
}

// Node returns the clock's node id.
func (c *Clock) Node() string { return c.node }

// Now returns the next stamp, strictly greater than every stamp this clock
// has issued or observed.
func (c *Clock) Now() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	wall := c.nowFn().UnixMilli()
	if wall > c.millis {
		c.millis = wall
		c.counter = 0
	} else {
		c.counter++
	}
	return Stamp{Millis: c.millis, Counter: c.counter, Node: c.node}
}

// Observe folds a remote stamp into the clock so subsequent local stamps
// order after it even under clock skew.
func (c *Clock) Observe(s Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Millis > c.millis {
		c.millis = s.Millis
		c.counter = s.Counter
	} else if s.Millis == c.millis && s.Counter > c.counter {
		c.counter = s.Counter
	}
}
