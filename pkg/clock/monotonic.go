package clock

import (
	"time"

	"github.com/pixperk/leasebook/pkg/types"
)

// supplies the current time to the engine
// the engine never reads time any other way, so every derived value is a
// function of (Now(), ledger)
type Clock interface {
	Now() types.Timestamp
}

// production clock
// the wall clock is read once at construction and then advanced with
// time.Since, which uses the monotonic reading under the hood, so Now never
// goes backwards if the system time is changed
type Monotonic struct {
	startTime time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{
		startTime: time.Now(),
	}
}

func (c *Monotonic) Now() types.Timestamp {
	elapsed := time.Since(c.startTime)
	return types.Timestamp(c.startTime.Unix() + int64(elapsed/time.Second))
}
