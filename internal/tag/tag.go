// Package tag implements the logical-time values exchanged between the
// RTI and its federates.
//
// A Tag orders events across the federation: it is a nanosecond instant
// paired with a microstep that breaks ties between events scheduled for
// the same instant. Comparison is lexicographic on (Time, Microstep).
package tag

import (
	"fmt"
	"math"
)

// Time is a signed 64-bit nanosecond instant relative to the federation's
// logical start time.
type Time int64

// NeverTime is the smallest representable Time, used as the sentinel for
// "no event is known to be pending."
const NeverTime Time = math.MinInt64

// Tag is a totally ordered pair naming a logical instant.
type Tag struct {
	Time      Time
	Microstep uint32
}

// Never is the tag a federate reports when it has no known future event.
var Never = Tag{Time: NeverTime, Microstep: 0}

// Zero is the tag of the federation's logical start.
var Zero = Tag{Time: 0, Microstep: 0}

// New constructs a Tag from a time and microstep.
func New(t Time, microstep uint32) Tag {
	return Tag{Time: t, Microstep: microstep}
}

// IsNever reports whether t is the Never sentinel.
func (t Tag) IsNever() bool {
	return t.Time == NeverTime
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than
// other, ordering lexicographically on (Time, Microstep).
func (t Tag) Compare(other Tag) int {
	switch {
	case t.Time < other.Time:
		return -1
	case t.Time > other.Time:
		return 1
	case t.Microstep < other.Microstep:
		return -1
	case t.Microstep > other.Microstep:
		return 1
	default:
		return 0
	}
}

// Less reports whether t orders strictly before other.
func (t Tag) Less(other Tag) bool { return t.Compare(other) < 0 }

// LessEqual reports whether t orders at or before other.
func (t Tag) LessEqual(other Tag) bool { return t.Compare(other) <= 0 }

// Greater reports whether t orders strictly after other.
func (t Tag) Greater(other Tag) bool { return t.Compare(other) > 0 }

// GreaterEqual reports whether t orders at or after other.
func (t Tag) GreaterEqual(other Tag) bool { return t.Compare(other) >= 0 }

// Equal reports whether t and other name the same instant.
func (t Tag) Equal(other Tag) bool { return t.Compare(other) == 0 }

// Max returns the later of t and other.
func Max(t, other Tag) Tag {
	if t.Greater(other) {
		return t
	}
	return other
}

// Min returns the earlier of t and other.
func Min(t, other Tag) Tag {
	if t.Less(other) {
		return t
	}
	return other
}

// Delay adds a non-negative interval to t. A zero (or negative) delay
// returns t unchanged, microstep included; a positive delay resets the
// microstep to zero,
// since a positive interval always lands on a fresh physical instant.
// Never is absorbing: Never.Delay(d) == Never for any d, because a
// federate that will never produce another event cannot be made to
// produce one by shifting the bound forward.
func (t Tag) Delay(d Time) Tag {
	if t.IsNever() {
		return Never
	}
	if d <= 0 {
		return t
	}
	return Tag{Time: t.Time + d, Microstep: 0}
}

// String renders t as "(time, microstep)", or "NEVER" for the sentinel.
func (t Tag) String() string {
	if t.IsNever() {
		return "NEVER"
	}
	return fmt.Sprintf("(%d, %d)", t.Time, t.Microstep)
}
