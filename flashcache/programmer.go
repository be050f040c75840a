package flashcache

// Programmer abstracts the physical flash part: a blocking sector erase
// and a blocking sector program. Cache.Process calls these from its
// background context; a real board backs this with the flash hardware's
// driver, tests and non-hardware builds with SimulatedFlash.
type Programmer interface {
	// Erase blocks until the sector is fully erased.
	Erase(sector int) error
	// Program blocks until data has been written to the sector. len(data)
	// is always exactly the sector size.
	Program(sector int, data []byte) error
}
