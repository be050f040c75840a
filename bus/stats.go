package bus

import "sync/atomic"

// Stats holds running counters for one Bus instance, in the same spirit
// as kcp-go's DefaultSnmp: plain uint64 fields mutated with
// atomic.AddUint64 so a client can poll them without taking a lock. These
// are read-only instrumentation; nothing in the engine branches on them.
type Stats struct {
	FramesSent    uint64
	BusyRejected  uint64
	LineNotIdle   uint64
	Timeouts      uint64
	CrcErrors     uint64
	MalformedRecv uint64
	FramesRecv    uint64
}

func (s *Stats) incFramesSent()    { atomic.AddUint64(&s.FramesSent, 1) }
func (s *Stats) incBusyRejected()  { atomic.AddUint64(&s.BusyRejected, 1) }
func (s *Stats) incLineNotIdle()   { atomic.AddUint64(&s.LineNotIdle, 1) }
func (s *Stats) incTimeouts()      { atomic.AddUint64(&s.Timeouts, 1) }
func (s *Stats) incCrcErrors()     { atomic.AddUint64(&s.CrcErrors, 1) }
func (s *Stats) incMalformedRecv() { atomic.AddUint64(&s.MalformedRecv, 1) }
func (s *Stats) incFramesRecv()    { atomic.AddUint64(&s.FramesRecv, 1) }

// Snapshot returns a copy of the counters safe to read concurrently with
// further increments.
func (s *Stats) Snapshot() Stats {
	return Stats{
		FramesSent:    atomic.LoadUint64(&s.FramesSent),
		BusyRejected:  atomic.LoadUint64(&s.BusyRejected),
		LineNotIdle:   atomic.LoadUint64(&s.LineNotIdle),
		Timeouts:      atomic.LoadUint64(&s.Timeouts),
		CrcErrors:     atomic.LoadUint64(&s.CrcErrors),
		MalformedRecv: atomic.LoadUint64(&s.MalformedRecv),
		FramesRecv:    atomic.LoadUint64(&s.FramesRecv),
	}
}
