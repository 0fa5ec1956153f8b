package clock

import "time"

// Clock abstracts wall time so sync cooldowns and month ranges can be tested.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
