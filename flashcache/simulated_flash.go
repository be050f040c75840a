package flashcache

import (
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// SimulatedFlash is a Programmer backed by process memory instead of a
// real flash part. Each sector's bytes are kept compressed at rest via
// github.com/golang/snappy, the same library the teacher wraps around a
// net.Conn for its CompStream — here there's no connection, just a
// one-shot compress/decompress per sector, so the block-oriented
// Encode/Decode API is the better fit than the streaming Writer/Reader.
// An erased sector is represented as an absent map entry (read back as
// all 0xFF, matching what erased NOR flash reads as).
type SimulatedFlash struct {
	mu         sync.Mutex
	sectorSize int
	sectors    map[int][]byte // compressed bytes, present only if programmed
}

// NewSimulatedFlash returns a SimulatedFlash for a device with the given
// sector size.
func NewSimulatedFlash(sectorSize int) *SimulatedFlash {
	return &SimulatedFlash{
		sectorSize: sectorSize,
		sectors:    make(map[int][]byte),
	}
}

func (f *SimulatedFlash) Erase(sector int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sectors, sector)
	return nil
}

func (f *SimulatedFlash) Program(sector int, data []byte) error {
	compressed := snappy.Encode(nil, data)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sectors[sector] = compressed
	return nil
}

// Read returns the sector's programmed contents, or all-0xFF if it has
// never been programmed since its last erase. This is only used for
// power-loss recovery or testing; the cache's RAM shadow is the source
// of truth for ordinary reads.
func (f *SimulatedFlash) Read(sector int) ([]byte, error) {
	f.mu.Lock()
	compressed, ok := f.sectors[sector]
	f.mu.Unlock()

	if !ok {
		erased := make([]byte, f.sectorSize)
		for i := range erased {
			erased[i] = 0xFF
		}
		return erased, nil
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}
