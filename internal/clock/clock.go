package clock

import "time"

// Clock abstracts time for billing-period arithmetic so tests can pin it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() Clock { return SystemClock{} }

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
