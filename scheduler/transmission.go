package scheduler

import "github.com/kosekmi/maple-core/bus"

// Transmission is one scheduler entry: a frame awaiting its turn on the
// wire, plus the bookkeeping the admission policy and auto-repeat cadence
// need. Duration is computed once at Add time from the frame's payload
// length and (if a response is expected) the expected response length, so
// it never has to be recomputed while the entry sits in the queue.
type Transmission struct {
	ID       uint64
	Priority uint8

	// NextTxTimeUS is the absolute microsecond time at or after which
	// this entry becomes eligible for PopNext.
	NextTxTimeUS uint64

	Frame bus.Frame

	ExpectResponse        bool
	ExpectedResponseWords uint8

	// AutoRepeatUS is the re-arm period; 0 means one-shot.
	AutoRepeatUS uint64

	ReadTimeoutUS uint64

	// DurationUS is the on-wire occupation estimate: [NextTxTimeUS,
	// NextTxTimeUS+DurationUS) is this entry's window.
	DurationUS uint64
}

func (t *Transmission) windowEnd() uint64 {
	return t.NextTxTimeUS + t.DurationUS
}

// overlapsWindow reports whether the window [start, start+dur) intersects
// other's window. Used by insertBefore with a cursor that can differ from
// t.NextTxTimeUS once t has been pushed behind an equal-priority entry it
// overlaps (spec.md §4.2 rule 3: "the later-starting entry is pushed to
// immediately after the earlier entry").
func overlapsWindow(start, dur uint64, other *Transmission) bool {
	return start < other.windowEnd() && other.NextTxTimeUS < start+dur
}
