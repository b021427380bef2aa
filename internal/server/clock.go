package server

import "time"

// Clock abstracts wall time and timer scheduling so expiration can be driven
// by virtual time in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

// TimerHandle is a cancellable scheduled call.
type TimerHandle interface {
	Stop() bool
}

type realClock struct{}

// NewRealClock returns a Clock backed by the time package.
func NewRealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}
