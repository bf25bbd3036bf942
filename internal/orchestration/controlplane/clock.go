package controlplane

import "time"

// Clock interface for time operations (allows testing).
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the real time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
