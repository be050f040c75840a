package flashcache

import "sync/atomic"

// Stats holds running counters for one Cache instance, in the same spirit
// as the bus and scheduler packages' counters.
type Stats struct {
	MarkedDirty uint64
	Programmed  uint64
}

func (s *Stats) incMarkedDirty() { atomic.AddUint64(&s.MarkedDirty, 1) }
func (s *Stats) incProgrammed()  { atomic.AddUint64(&s.Programmed, 1) }

// Snapshot returns a copy of the counters safe to read concurrently with
// further increments.
func (s *Stats) Snapshot() Stats {
	return Stats{
		MarkedDirty: atomic.LoadUint64(&s.MarkedDirty),
		Programmed:  atomic.LoadUint64(&s.Programmed),
	}
}
