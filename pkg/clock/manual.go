package clock

import (
	"fmt"
	"sync"

	"github.com/pixperk/leasebook/pkg/types"
)

// settable clock for tests and for nodes running in manual mode
// time stands still until Set or Advance is called
type Manual struct {
	mu  sync.Mutex
	now types.Timestamp
}

func NewManual(initial types.Timestamp) *Manual {
	return &Manual{now: initial}
}

func (c *Manual) Now() types.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// moves the clock to t; the clock is monotonic so t must not be in the past
func (c *Manual) Set(t types.Timestamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t < c.now {
		return fmt.Errorf("clock: cannot move back from %d to %d", c.now, t)
	}
	c.now = t
	return nil
}

// moves the clock forward by d and returns the new time
func (c *Manual) Advance(d types.Timestamp) types.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d > 0 {
		c.now += d
	}
	return c.now
}
