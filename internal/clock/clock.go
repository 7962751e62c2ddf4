package clock

import "time"

// Clock abstracts wall time so training timestamps and version labels are testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
