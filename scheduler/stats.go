package scheduler

import "sync/atomic"

// Stats holds running counters for one Scheduler instance, in the same
// spirit as the bus package's counters and ultimately kcp-go's
// DefaultSnmp: plain fields mutated with atomic.AddUint64.
type Stats struct {
	Added    uint64
	Popped   uint64
	Canceled uint64
}

func (s *Stats) incAdded()          { atomic.AddUint64(&s.Added, 1) }
func (s *Stats) incPopped()         { atomic.AddUint64(&s.Popped, 1) }
func (s *Stats) incCanceled(n int)  { atomic.AddUint64(&s.Canceled, uint64(n)) }

// Snapshot returns a copy of the counters safe to read concurrently with
// further increments.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Added:    atomic.LoadUint64(&s.Added),
		Popped:   atomic.LoadUint64(&s.Popped),
		Canceled: atomic.LoadUint64(&s.Canceled),
	}
}
