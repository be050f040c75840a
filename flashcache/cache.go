// Package flashcache implements the RAM-shadowed, write-back view of a
// flash-backed sector region described in spec.md §4.3: clients get
// synchronous reads/writes against an in-memory shadow, while a
// background Process step serializes the actual erase/program cycles
// against the physical part off the real-time path.
package flashcache

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/kosekmi/maple-core/mperr"
	"github.com/kosekmi/maple-core/primitives"
)

// state is the background programmer's state machine, guarded by Cache.mu.
type state int

const (
	stateIdle state = iota
	stateErasing
	stateDelayingWrite
)

// WriteCoalesceDelayUS is how long process() waits in delaying_write
// before programming a sector, giving a multi-part update a chance to
// land more writes against the same sector before it is burned to flash.
const WriteCoalesceDelayUS = 2000

// Cache is a RAM shadow of a fixed-size flash region plus a dirty-sector
// queue drained by a background Process step. Reads are never mutex
// guarded (the shadow is always consistent with the latest Write); Write
// and Process are serialized by mu except across the blocking erase,
// which mu is dropped for so Write can keep progressing while a sector is
// being erased.
type Cache struct {
	prog       Programmer
	sectorSize int
	numSectors int

	mu      sync.Mutex
	shadow  []byte
	dirty   *primitives.RingBuffer[int]
	st      state
	clock   primitives.Clock
	delayUS uint64
	delayAt uint64 // absolute time the current delaying_write elapses

	Stats Stats
}

// NewCache returns a Cache managing numSectors sectors of sectorSize bytes
// each, backed by prog. The shadow starts zeroed; callers that need to
// recover prior contents should Write them in before relying on reads.
func NewCache(prog Programmer, clock primitives.Clock, sectorSize, numSectors int) *Cache {
	return &Cache{
		prog:       prog,
		sectorSize: sectorSize,
		numSectors: numSectors,
		shadow:     make([]byte, sectorSize*numSectors),
		dirty:      primitives.NewRingBuffer[int](8),
		clock:      clock,
	}
}

// GetMemorySize returns the total size in bytes of the managed region.
func (c *Cache) GetMemorySize() int {
	return len(c.shadow)
}

// Read returns a copy of size bytes from the shadow starting at offset,
// clamped to what remains in the region. Reads are not mutex-guarded: the
// shadow is continuously consistent with the most recent Write.
func (c *Cache) Read(offset, size int) []byte {
	if offset < 0 || offset >= len(c.shadow) {
		return nil
	}
	end := offset + size
	if end > len(c.shadow) {
		end = len(c.shadow)
	}
	out := make([]byte, end-offset)
	copy(out, c.shadow[offset:end])
	return out
}

// Write updates the shadow at offset with data, clamped to the region's
// size, and marks every sector the write touches dirty. Each sector
// already at the head of the dirty queue (i.e. currently being processed)
// has its write-coalescing delay extended; a write that touches a new
// sector clears the delay so progress resumes immediately.
func (c *Cache) Write(offset int, data []byte) (int, error) {
	if offset < 0 || offset >= len(c.shadow) {
		return 0, errors.WithStack(mperr.ErrMalformedFrame)
	}

	end := offset + len(data)
	if end > len(c.shadow) {
		end = len(c.shadow)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(c.shadow[offset:end], data)

	firstSector := offset / c.sectorSize
	lastSector := (end - 1) / c.sectorSize

	headSector, hasHead := c.dirty.Peek()
	touchedHead := false
	touchedNew := false

	for s := firstSector; s <= lastSector; s++ {
		if hasHead && s == headSector {
			touchedHead = true
		}
		if !c.dirty.Contains(s, func(a, b int) bool { return a == b }) {
			c.dirty.Push(s)
			c.Stats.incMarkedDirty()
			touchedNew = true
		}
	}

	switch {
	case touchedHead && c.st != stateIdle:
		// Extend the coalescing window: the sector being programmed was
		// touched again, so push its deadline out instead of letting it
		// burn with a stale mid-update image.
		c.delayAt = c.clock.NowUS() + WriteCoalesceDelayUS
	case touchedNew && c.st != stateIdle:
		// A sector not already queued was touched; the head sector's
		// delay no longer needs to wait for it, let process() pick it up
		// now. A write that only re-touches an already-queued, non-head
		// sector leaves the head's delay alone.
		c.delayAt = c.clock.NowUS()
	}

	return n, nil
}

// Process runs one step of the background programmer state machine. It
// must be called repeatedly from the owning background context. Both
// hardware calls (erase and program) block; Cache drops its mutex only
// across the erase, so Write can keep running concurrently with it.
func (c *Cache) Process() {
	c.mu.Lock()

	switch c.st {
	case stateIdle:
		sector, ok := c.dirty.Peek()
		if !ok {
			c.mu.Unlock()
			return
		}
		c.delayAt = c.clock.NowUS() + WriteCoalesceDelayUS
		c.st = stateErasing
		c.mu.Unlock()

		if err := c.prog.Erase(sector); err != nil {
			mperr.Invariant("flashcache: erase failed: " + err.Error())
		}
		// st stays erasing; the next Process call advances it. The
		// mutex is intentionally not re-acquired here so a Write racing
		// with this erase never blocks behind it.

	case stateErasing:
		// Bookkeeping only: the erase already ran synchronously in the
		// idle branch above. Kept as an explicit state so Process's
		// phases mirror spec.md's three named states one-to-one.
		c.st = stateDelayingWrite
		c.mu.Unlock()

	case stateDelayingWrite:
		if c.clock.NowUS() < c.delayAt {
			c.mu.Unlock()
			return
		}

		sector, ok := c.dirty.Peek()
		if !ok {
			mperr.Invariant("flashcache: dirty queue empty while delaying_write")
		}
		start := sector * c.sectorSize
		data := make([]byte, c.sectorSize)
		copy(data, c.shadow[start:start+c.sectorSize])

		if err := c.prog.Program(sector, data); err != nil {
			mperr.Invariant("flashcache: program failed: " + err.Error())
		}

		if _, ok := c.dirty.Pop(); !ok {
			mperr.Invariant("flashcache: dirty queue head vanished")
		}
		c.st = stateIdle
		c.Stats.incProgrammed()
		c.mu.Unlock()
	}
}
