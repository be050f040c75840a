package bus

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/templexxx/xorsimd"

	"github.com/kosekmi/maple-core/mperr"
)

// MaxPayloadWords is the largest payload length the wire format can carry;
// the length field is a single byte.
const MaxPayloadWords = 255

// Frame is a single maple bus transaction unit: a header (command,
// recipient, sender, payload length) and that many 32-bit payload words.
// Frame only ever holds the logical, host-endian representation; wire
// byte-reversal happens in Encode/DecodeCapture.
type Frame struct {
	Command   uint8
	Recipient uint8
	Sender    uint8
	Payload   []uint32
}

// HeaderWord packs the header the way it is stored in memory before
// transmission: (command<<24)|(recipient<<16)|(sender<<8)|length.
func (f Frame) HeaderWord() uint32 {
	return uint32(f.Command)<<24 | uint32(f.Recipient)<<16 | uint32(f.Sender)<<8 | uint32(len(f.Payload))
}

// NumBits is the number of bits the line serializer clocks out for this
// frame: (payload_len*4 + 5) * 8, matching the first word the original
// driver prepends to its DMA buffer.
func (f Frame) NumBits() uint32 {
	return (uint32(len(f.Payload))*4 + 5) * 8
}

// reverseBytes swaps a 32-bit word's byte order. The bit serializer shifts
// out MSB-first, but the data needs to leave the wire little-endian, so
// every word is byte-reversed before it's handed to the DMA buffer.
func reverseBytes(w uint32) uint32 {
	return (w>>24)&0xFF | (w>>8)&0xFF00 | (w<<8)&0xFF0000 | (w<<24)&0xFF000000
}

// crcOf XORs every byte of the header word and payload words together,
// using xorsimd.Encode to fold the words in bulk rather than a byte-at-a-
// time loop: each word becomes one of xorsimd's "sources", and the single
// destination slot accumulates their bitwise XOR 4 bytes at a time, which
// is then folded down to the final single byte.
func crcOf(headerWord uint32, payload []uint32) byte {
	words := make([][]byte, 1+len(payload))
	words[0] = wordBytes(headerWord)
	for i, p := range payload {
		words[i+1] = wordBytes(p)
	}

	acc := make([]byte, 4)
	xorsimd.Encode(acc, words)

	return acc[0] ^ acc[1] ^ acc[2] ^ acc[3]
}

func wordBytes(w uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, w)
	return b
}

// Encode serializes f into the exact buffer the DMA engine clocks out:
// word 0 is the bit count, word 1 is the byte-reversed header, words
// 2..len+1 are the byte-reversed payload, and the final word holds the
// CRC left-shifted into its most significant byte.
func (f Frame) Encode() []uint32 {
	buf := make([]uint32, len(f.Payload)+3)
	buf[0] = f.NumBits()

	header := f.HeaderWord()
	crc := crcOf(header, f.Payload)
	buf[1] = reverseBytes(header)
	for i, p := range f.Payload {
		buf[i+2] = reverseBytes(p)
	}
	buf[len(f.Payload)+2] = uint32(crc) << 24

	return buf
}

// DecodeCapture validates a raw capture buffer (as filled by the receive
// DMA channel) and returns the logical Frame it contains. raw[0]'s high
// byte holds the payload word count, read directly (untouched, before any
// byte-reversal) exactly as the original driver does. The remaining
// len+1 words are byte-reversed and CRC-checked against the trailing
// word; a non-zero command is also required for the frame to be valid.
func DecodeCapture(raw []uint32) (Frame, error) {
	if len(raw) < 2 {
		return Frame{}, errors.WithStack(mperr.ErrMalformedFrame)
	}

	length := raw[0] >> 24
	if int(length)+2 > len(raw) {
		return Frame{}, errors.WithStack(mperr.ErrMalformedFrame)
	}

	words := make([]uint32, length+1)
	crc := byte(0)
	headerBytes := make([][]byte, length+1)
	for i := uint32(0); i < length+1; i++ {
		words[i] = reverseBytes(raw[i])
		headerBytes[i] = wordBytes(words[i])
	}
	acc := make([]byte, 4)
	xorsimd.Encode(acc, headerBytes)
	crc = acc[0] ^ acc[1] ^ acc[2] ^ acc[3]

	trailing := byte(raw[length+1] >> 24)
	if crc != trailing {
		return Frame{}, errors.WithStack(mperr.ErrCrcMismatch)
	}

	header := words[0]
	if uint8(header>>24) == 0 {
		return Frame{}, errors.WithStack(mperr.ErrMalformedFrame)
	}

	f := Frame{
		Command:   uint8(header >> 24),
		Recipient: uint8(header >> 16),
		Sender:    uint8(header >> 8),
		Payload:   words[1:],
	}
	return f, nil
}
