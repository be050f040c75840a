package bus

import "sync"

// SimulatedLine is a HardwareInterface test double standing in for the
// two GPIO pins, PIO state machines, and DMA channels a real board would
// supply. It lets a test drive the bus's ISR-equivalent completions
// directly instead of waiting on real hardware timing, the same role
// SimulatedLine plays for Bus that a net.PacketConn plays for a
// transport-agnostic session.
type SimulatedLine struct {
	mu sync.Mutex

	idle bool

	writeDone chan struct{}
	readDone  chan struct{}

	capture []uint32
}

// NewSimulatedLine returns a SimulatedLine with the bus initially idle.
func NewSimulatedLine() *SimulatedLine {
	return &SimulatedLine{
		idle:      true,
		writeDone: make(chan struct{}, 1),
		readDone:  make(chan struct{}, 1),
	}
}

func (s *SimulatedLine) LineIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// SetIdle lets a test simulate another device pulling a line low.
func (s *SimulatedLine) SetIdle(idle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = idle
}

func (s *SimulatedLine) StartWrite(buf []uint32) {}

func (s *SimulatedLine) StartRead() {}

func (s *SimulatedLine) StopWrite() {}

func (s *SimulatedLine) StopRead() {}

func (s *SimulatedLine) WriteDone() <-chan struct{} { return s.writeDone }

func (s *SimulatedLine) ReadDone() <-chan struct{} { return s.readDone }

func (s *SimulatedLine) Capture() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// FireWriteDone simulates the transmit-FIFO-empty interrupt.
func (s *SimulatedLine) FireWriteDone() {
	s.writeDone <- struct{}{}
}

// FireReadDone simulates the receive-terminated interrupt after loading
// raw into the capture buffer the engine will decode.
func (s *SimulatedLine) FireReadDone(raw []uint32) {
	s.mu.Lock()
	s.capture = raw
	s.mu.Unlock()
	s.readDone <- struct{}{}
}
