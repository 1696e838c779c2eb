package embargo

import (
	"fmt"
	"time"
)

// Clock supplies "now" to the engine
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock always returns t
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// IsEmbargoed reports whether data referenced at reference is still under an
// embargo of length period at now, i.e. now < reference + period. A zero period
// never embargoes. A zero reference or a negative period is a *DataIntegrityError.
func IsEmbargoed(reference time.Time, period time.Duration, now time.Time) (bool, error) {
	if reference.IsZero() {
		return false, &DataIntegrityError{Field: "reference timestamp", Reason: "is null"}
	}
	if period < 0 {
		return false, &DataIntegrityError{Field: "embargo period", Reason: fmt.Sprintf("is negative (%s)", period)}
	}
	if period == 0 {
		return false, nil
	}
	return now.Before(reference.Add(period)), nil
}

