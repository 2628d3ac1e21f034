package relay

import (
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// DeviceClock returns a Clock counting milliseconds since start. now should
// carry a monotonic reading (time.Now does), so wall-clock steps do not move
// the tick.
func DeviceClock(start time.Time, now func() time.Time) logic.Clock {
	return func() logic.Timestamp {
		return logic.Timestamp(uint32(now().Sub(start).Milliseconds()))
	}
}
