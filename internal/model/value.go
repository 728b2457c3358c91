package model

import "strconv"

// Val is a metric value for one refresh cycle. A zero Val is unknown:
// the backing file was absent, unreadable, or there was no prior sample
// to compute a rate from.
type Val struct {
	N     int64
	Known bool
}

// Known wraps n as a known value.
func Known(n int64) Val { return Val{N: n, Known: true} }

// Unknown is the zero Val, named for readability at call sites.
var Unknown = Val{}

func (v Val) String() string {
	if !v.Known {
		return "-"
	}
	return strconv.FormatInt(v.N, 10)
}

// Less orders unknown strictly below any known value.
func (v Val) Less(o Val) bool {
	if v.Known != o.Known {
		return !v.Known
	}
	return v.N < o.N
}

// Percent converts num/den into a whole percentage. The same rule backs
// usage%, share-of-total% and weight-ratio% so they round identically:
// unknown denominator propagates, a zero denominator yields 0, num >= den
// saturates at 100, and everything else rounds half away from zero.
func Percent(num, den uint64, denKnown bool) Val {
	if !denKnown {
		return Unknown
	}
	if den == 0 {
		return Known(0)
	}
	if num >= den {
		return Known(100)
	}
	return Known(int64((num*100 + den/2) / den))
}
