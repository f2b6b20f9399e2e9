package expiry

import (
	"math"
	"time"
)

// Never is the expiration timestamp of an entry that does not expire.
const Never int64 = math.MaxInt64

// Duration is a time-to-live that can also be zero or eternal.
// The zero value is Zero.
type Duration struct {
	length  time.Duration
	eternal bool
}

var (
	// Zero expires an entry immediately.
	Zero = Duration{}

	// Eternal never expires an entry.
	Eternal = Duration{eternal: true}
)

// After returns a finite Duration. A non-positive d returns Zero.
func After(d time.Duration) Duration {
	if d <= 0 {
		return Zero
	}
	return Duration{length: d}
}

// IsZero reports whether the duration expires entries immediately.
func (d Duration) IsZero() bool {
	return !d.eternal && d.length <= 0
}

// IsEternal reports whether the duration never expires entries.
func (d Duration) IsEternal() bool {
	return d.eternal
}

// Length returns the finite length of the duration.
// It returns 0 for Zero and math.MaxInt64 for Eternal.
func (d Duration) Length() time.Duration {
	if d.eternal {
		return math.MaxInt64
	}
	return d.length
}

// ExpiresAt returns the expiration timestamp in Unix nanoseconds for an entry
// stamped at now. The result saturates at Never.
func (d Duration) ExpiresAt(now int64) int64 {
	switch {
	case d.eternal:
		return Never
	case d.length <= 0:
		return now
	case now > Never-int64(d.length):
		return Never
	default:
		return now + int64(d.length)
	}
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	switch {
	case d.eternal:
		return "eternal"
	case d.length <= 0:
		return "zero"
	default:
		return d.length.String()
	}
}
