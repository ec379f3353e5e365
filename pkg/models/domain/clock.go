package domain

import "time"

type Clock interface {
	Now() time.Time
}

// SystemClock is the canonical process clock; it always reports UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
