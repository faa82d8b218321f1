package clock

import "time"

// Clock stamps outgoing envelopes with wall-clock time.
type Clock struct{}

// NowUnix returns current unix seconds.
func (Clock) NowUnix() int64 {
	return time.Now().Unix()
}

// Fixed always returns the same instant. Used by tests that compare
// encoded envelopes.
type Fixed int64

// NowUnix returns the fixed instant.
func (f Fixed) NowUnix() int64 {
	return int64(f)
}
