package bus

import "testing"

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{
		Command:   0x01,
		Recipient: 0x20,
		Sender:    0x00,
		Payload:   []uint32{0xdeadbeef, 0x12345678, 0x00000003},
	}

	encoded := f.Encode()
	if len(encoded) != len(f.Payload)+3 {
		t.Fatalf("encoded length = %d, want %d", len(encoded), len(f.Payload)+3)
	}

	if encoded[0] != f.NumBits() {
		t.Fatalf("bit count word = %d, want %d", encoded[0], f.NumBits())
	}

	// Simulate what a receiver captures: the same byte-reversed words,
	// header through trailing CRC word, as were clocked onto the wire.
	raw := make([]uint32, len(f.Payload)+2)
	// What a receiver captures is bit-identical to what the transmitter
	// clocked out: the byte-reversed header (length byte now in the MSB,
	// matching wire order) and byte-reversed payload words.
	raw[0] = reverseBytes(f.HeaderWord())
	for i, p := range f.Payload {
		raw[i+1] = reverseBytes(p)
	}
	raw[len(f.Payload)+1] = encoded[len(f.Payload)+2]

	got, err := DecodeCapture(raw)
	if err != nil {
		t.Fatalf("DecodeCapture: %v", err)
	}
	if got.Command != f.Command || got.Recipient != f.Recipient || got.Sender != f.Sender {
		t.Fatalf("header mismatch: got %+v, want %+v", got, f)
	}
	if len(got.Payload) != len(f.Payload) {
		t.Fatalf("payload length = %d, want %d", len(got.Payload), len(f.Payload))
	}
	for i := range f.Payload {
		if got.Payload[i] != f.Payload[i] {
			t.Fatalf("payload[%d] = %#x, want %#x", i, got.Payload[i], f.Payload[i])
		}
	}
}

func TestDecodeCaptureCrcMismatch(t *testing.T) {
	f := Frame{Command: 1, Recipient: 2, Sender: 3, Payload: []uint32{1, 2}}
	encoded := f.Encode()

	raw := make([]uint32, len(f.Payload)+2)
	raw[0] = reverseBytes(f.HeaderWord())
	for i, p := range f.Payload {
		raw[i+1] = reverseBytes(p)
	}
	raw[len(f.Payload)+1] = encoded[len(f.Payload)+2] ^ 0x01000000

	if _, err := DecodeCapture(raw); err == nil {
		t.Fatal("expected crc mismatch error, got nil")
	}
}

func TestDecodeCaptureZeroCommandMalformed(t *testing.T) {
	f := Frame{Command: 0, Recipient: 0, Sender: 0, Payload: nil}
	encoded := f.Encode()

	raw := make([]uint32, 2)
	raw[0] = 0
	raw[1] = encoded[2]

	if _, err := DecodeCapture(raw); err == nil {
		t.Fatal("expected malformed frame error for zero command, got nil")
	}
}
