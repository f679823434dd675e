package pipeline

import "time"

// SetClockForTest pins the clock used for log names and durations.
func (o *Orchestrator) SetClockForTest(now func() time.Time) {
	o.now = now
}
