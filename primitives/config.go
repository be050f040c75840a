package primitives

// Config holds the compile-time constants that size the bus's bit timing
// and the scheduler's duration estimates. There is no flag parsing or env
// var binding here: instances are built in-process by the embedding
// application, the same way kcp.NewKCP takes its parameters directly
// rather than reading a config file.
type Config struct {
	// CPUFreqKHz is the CPU clock used for timing calculations.
	CPUFreqKHz uint32
	// MinClockPeriodNS is the minimum time between successive edges on
	// the bus.
	MinClockPeriodNS uint32
	// OpenLineCheckTimeUS is how long write() watches the idle bus
	// before taking control of it.
	OpenLineCheckTimeUS uint32
	// WriteTimeoutExtraPercent inflates the computed write deadline.
	WriteTimeoutExtraPercent uint32
	// ReadTimeoutUS bounds how long write() waits for a response after
	// the write itself completes.
	ReadTimeoutUS uint32
}

// DefaultConfig returns the constants the reference hardware uses: a
// 133MHz CPU, 320ns minimum edge spacing (2Mbit/s), a 2us open-line
// check, 20% write-timeout inflation, and a 3ms read timeout.
func DefaultConfig() Config {
	return Config{
		CPUFreqKHz:               133000,
		MinClockPeriodNS:         320,
		OpenLineCheckTimeUS:      2,
		WriteTimeoutExtraPercent: 20,
		ReadTimeoutUS:            3000,
	}
}

// NumBits returns the number of bits the line serializer clocks out for a
// frame with the given payload length in words: (payload*4 + 5) header+CRC
// bytes, 8 bits each.
func NumBits(payloadWords uint8) uint32 {
	return (uint32(payloadWords)*4 + 5) * 8
}

// WriteDurationUS returns the deadline, in microseconds, for a write of
// numBits bits to complete: 1.5 clock periods per bit plus a 20-period
// start/stop allowance, inflated by cfg.WriteTimeoutExtraPercent.
func WriteDurationUS(cfg Config, numBits uint32) uint64 {
	periodNS := uint64(cfg.MinClockPeriodNS)
	totalNS := uint64(numBits) * (periodNS * 3 / 2)
	totalNS += 20 * periodNS
	totalNS += totalNS * uint64(cfg.WriteTimeoutExtraPercent) / 100
	return totalNS / 1000
}

// TransactionDuration estimates the on-wire time, in microseconds, that a
// scheduled transmission with the given payload (and, if it expects a
// reply, response) length will occupy. Each leg uses the same arithmetic
// as WriteDurationUS (the bus's write deadline), minus the inflation
// percentage. The scheduler calls this function; the bus calls
// WriteDurationUS, which repeats that arithmetic rather than sharing it.
func TransactionDuration(cfg Config, payloadWords uint8, expectResponse bool, responseWords uint8) uint64 {
	writeBits := NumBits(payloadWords)
	periodNS := uint64(cfg.MinClockPeriodNS)
	writeNS := uint64(writeBits)*(periodNS*3/2) + 20*periodNS
	total := writeNS / 1000

	if expectResponse {
		readBits := NumBits(responseWords)
		readNS := uint64(readBits)*(periodNS*3/2) + 20*periodNS
		total += readNS / 1000
	}
	return total
}
