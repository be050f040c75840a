package bus

import (
	"testing"
	"time"

	"github.com/kosekmi/maple-core/primitives"
)

func TestBusWriteBusyWhileInProgress(t *testing.T) {
	line := NewSimulatedLine()
	clock := primitives.NewFakeClock(0)
	b := NewBus(line, primitives.DefaultConfig(), clock, 0x00)
	defer b.Close()

	if err := b.Write(0x01, 0x20, nil, false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := b.Write(0x01, 0x20, nil, false); err == nil {
		t.Fatal("expected busy error on second write, got nil")
	}
}

func TestBusWriteLineNotIdle(t *testing.T) {
	line := NewSimulatedLine()
	line.SetIdle(false)
	clock := primitives.NewFakeClock(0)
	b := NewBus(line, primitives.DefaultConfig(), clock, 0x00)
	defer b.Close()

	if err := b.Write(0x01, 0x20, nil, false); err == nil {
		t.Fatal("expected line-not-idle error, got nil")
	}
}

func TestBusProcessEventsForceAbortsOnTimeout(t *testing.T) {
	line := NewSimulatedLine()
	clock := primitives.NewFakeClock(0)
	b := NewBus(line, primitives.DefaultConfig(), clock, 0x00)
	defer b.Close()

	if err := b.Write(0x01, 0x20, nil, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	clock.Advance(1_000_000)
	b.ProcessEvents()

	if b.writeInProgress.Load() {
		t.Fatal("expected write_in_progress cleared after deadline")
	}
	if snap := b.Stats.Snapshot(); snap.Timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", snap.Timeouts)
	}
}

func TestBusWriteThenReadRoundTrip(t *testing.T) {
	line := NewSimulatedLine()
	clock := primitives.NewFakeClock(0)
	b := NewBus(line, primitives.DefaultConfig(), clock, 0x00)
	defer b.Close()

	reply := Frame{Command: 0x07, Recipient: 0x00, Sender: 0x20, Payload: []uint32{0xaabbccdd}}
	raw := make([]uint32, len(reply.Payload)+2)
	raw[0] = reverseBytes(reply.HeaderWord())
	for i, p := range reply.Payload {
		raw[i+1] = reverseBytes(p)
	}
	raw[len(reply.Payload)+1] = reply.Encode()[len(reply.Payload)+2]

	if err := b.Write(0x01, 0x20, nil, true); err != nil {
		t.Fatalf("write: %v", err)
	}

	line.FireWriteDone()
	waitUntil(t, func() bool { return !b.writeInProgress.Load() })
	if !b.readInProgress.Load() {
		t.Fatal("expected read_in_progress after write completion")
	}

	line.FireReadDone(raw)
	waitUntil(t, func() bool { return !b.readInProgress.Load() })

	got, wordLen, isNew := b.GetReadData()
	if !isNew {
		t.Fatal("expected isNew true on first read")
	}
	if wordLen != len(reply.Payload)+1 {
		t.Fatalf("wordLen = %d, want %d", wordLen, len(reply.Payload)+1)
	}
	if got.Command != reply.Command || len(got.Payload) != len(reply.Payload) {
		t.Fatalf("got = %+v, want %+v", got, reply)
	}

	_, _, isNewAgain := b.GetReadData()
	if isNewAgain {
		t.Fatal("expected isNew false on second read of same data")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
