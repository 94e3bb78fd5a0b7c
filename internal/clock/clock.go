// Package clock provides time sources that can be swapped in tests.
package clock

import "time"

// System returns the real wall-clock time.
type System struct{}

// NewSystem constructs a System clock.
func NewSystem() System { return System{} }

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed always returns the same instant; intended for tests.
type Fixed struct {
	T time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.T }
