package scheduler

import (
	"container/list"
	"sync"

	"github.com/kosekmi/maple-core/bus"
	"github.com/kosekmi/maple-core/primitives"
)

// Scheduler is the single in-memory ordered list of pending
// transmissions. It is a container/list.List rather than a
// container/heap: the admission test needs to find X's exact insertion
// position among existing entries (priority preemption + non-overlap),
// not merely pop the minimum, and a linked list gives O(1) removal from
// the middle for CancelById/CancelByRecipient, which a slice-backed heap
// would not.
//
// All exported methods are safe to call from one goroutine at a time in
// practice (spec treats the scheduler as single-context), but the mutex
// is kept simple and uncontended rather than documented-only, matching
// the conservative-locking style the teacher uses even on its
// single-writer paths.
type Scheduler struct {
	mu     sync.Mutex
	list   *list.List
	nextID uint64
	cfg    primitives.Config

	Stats Stats
}

// NewScheduler returns an empty scheduler using cfg's duration model.
func NewScheduler(cfg primitives.Config) *Scheduler {
	return &Scheduler{
		list: list.New(),
		cfg:  cfg,
	}
}

// Add inserts a new transmission and returns its freshly allocated id.
func (s *Scheduler) Add(priority uint8, nextTxTimeUS uint64, frame bus.Frame, expectResponse bool, expectedResponseWords uint8, autoRepeatUS uint64, readTimeoutUS uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Transmission{
		ID:                    s.nextID,
		Priority:              priority,
		NextTxTimeUS:          nextTxTimeUS,
		Frame:                 frame,
		ExpectResponse:        expectResponse,
		ExpectedResponseWords: expectedResponseWords,
		AutoRepeatUS:          autoRepeatUS,
		ReadTimeoutUS:         readTimeoutUS,
		DurationUS:            primitives.TransactionDuration(s.cfg, uint8(len(frame.Payload)), expectResponse, expectedResponseWords),
	}
	s.nextID++

	s.insertSorted(t)
	s.Stats.incAdded()

	return t.ID
}

// insertSorted places t into the list at the position the admission
// policy dictates: scan from the front comparing t against each existing
// entry E in turn, and insert before the first one where insertBefore
// says t belongs ahead. t's comparison window starts at its own
// next_tx_time and only ever moves later, via cursor: when t loses an
// overlap against an equal-priority E (rule 3's "later-starting entry is
// pushed to immediately after the earlier entry"), its effective window
// for comparison against entries further down the list is advanced to
// E's window end, exactly where t would actually land. Losing to a
// higher-priority E's overlap does not advance the cursor — t simply
// isn't allowed ahead of that particular entry, but its own requested
// time still stands for comparisons against whatever comes after. If no
// E is found where t belongs ahead, t is appended.
func (s *Scheduler) insertSorted(t *Transmission) {
	cursor := t.NextTxTimeUS
	for e := s.list.Front(); e != nil; e = e.Next() {
		existing := e.Value.(*Transmission)
		before, pushCursor := insertBefore(t, cursor, existing)
		if before {
			s.list.InsertBefore(t, e)
			return
		}
		if pushCursor {
			cursor = existing.windowEnd()
		}
	}
	s.list.PushBack(t)
}

// insertBefore decides t's position relative to one existing entry,
// given t's current effective window start (cursor). before reports
// whether t belongs immediately ahead of existing; pushCursor reports
// whether the cursor should advance to existing's window end before the
// next comparison (only ever true for an equal-priority overlap, the one
// case where rule 3 forces t to conceptually occupy the space right
// after existing).
func insertBefore(t *Transmission, cursor uint64, existing *Transmission) (before, pushCursor bool) {
	overlap := overlapsWindow(cursor, t.DurationUS, existing)
	switch {
	case t.Priority < existing.Priority:
		// Higher priority than existing: preempt whenever t's window
		// would overlap existing's, or existing simply starts later.
		return overlap || existing.NextTxTimeUS > cursor, false
	case t.Priority == existing.Priority:
		if cursor < existing.NextTxTimeUS {
			return true, false
		}
		return false, overlap
	default:
		// Lower priority than existing: an overlap is existing's to
		// keep, never t's to preempt. With no overlap, earlier time
		// still wins — there is no conflict for priority to arbitrate.
		if overlap {
			return false, false
		}
		return cursor < existing.NextTxTimeUS, false
	}
}

// PopNext returns the first transmission whose next_tx_time is due at or
// before nowUS, removing it from the queue. If it auto-repeats, a fresh
// copy is re-inserted with next_tx_time advanced by the smallest whole
// number of periods that lands it strictly after nowUS — missed slots are skipped,
// never backlogged. Returns (nil, false) if the head is not yet due.
func (s *Scheduler) PopNext(nowUS uint64) (*Transmission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	front := s.list.Front()
	if front == nil {
		return nil, false
	}

	t := front.Value.(*Transmission)
	if t.NextTxTimeUS > nowUS {
		return nil, false
	}

	s.list.Remove(front)
	s.Stats.incPopped()

	if t.AutoRepeatUS > 0 {
		reload := &Transmission{
			ID:                    t.ID,
			Priority:              t.Priority,
			NextTxTimeUS:          nextRepeatTime(t.NextTxTimeUS, t.AutoRepeatUS, nowUS),
			Frame:                 t.Frame,
			ExpectResponse:        t.ExpectResponse,
			ExpectedResponseWords: t.ExpectedResponseWords,
			AutoRepeatUS:          t.AutoRepeatUS,
			ReadTimeoutUS:         t.ReadTimeoutUS,
			DurationUS:            t.DurationUS,
		}
		s.insertSorted(reload)
	}

	return t, true
}

// nextRepeatTime returns tSched + k*period, the smallest such value
// strictly greater than tPop.
func nextRepeatTime(tSched, period, tPop uint64) uint64 {
	if tPop < tSched {
		return tSched + period
	}
	k := (tPop-tSched)/period + 1
	return tSched + k*period
}

// CancelById removes the entry with the given id, if present, returning
// how many entries were removed (0 or 1).
func (s *Scheduler) CancelById(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.list.Front(); e != nil; e = e.Next() {
		if e.Value.(*Transmission).ID == id {
			s.list.Remove(e)
			s.Stats.incCanceled(1)
			return 1
		}
	}
	return 0
}

// CancelByRecipient removes every entry whose frame recipient equals
// addr, returning the count removed.
func (s *Scheduler) CancelByRecipient(addr uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for e := s.list.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*Transmission).Frame.Recipient == addr {
			s.list.Remove(e)
			count++
		}
		e = next
	}
	s.Stats.incCanceled(count)
	return count
}

// CancelAll empties the queue, returning how many entries were removed.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.list.Len()
	s.list.Init()
	s.Stats.incCanceled(count)
	return count
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Len()
}

// Snapshot returns the pending entries in queue order, for tests and
// diagnostics. The returned slice is a copy; mutating it does not affect
// the scheduler.
func (s *Scheduler) Snapshot() []*Transmission {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Transmission, 0, s.list.Len())
	for e := s.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Transmission))
	}
	return out
}
