// Package spec contains constants for the nter1 protocol.
package spec

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultPort is the default TCP port of the throughput sink.
	DefaultPort = 5000

	// DefaultEchoPort is the default TCP port of the latency echo responder.
	DefaultEchoPort = 5001

	// EndMarkerValue is the numeric value of the end-of-run marker. It is
	// sent on the wire as a 4-byte little-endian integer.
	EndMarkerValue uint32 = math.MaxInt32

	// EndMarkerSize is the size of the end-of-run marker in bytes.
	EndMarkerSize = 4

	// DefaultSendBufferSize is the size of the payload buffer written by the
	// sender.
	DefaultSendBufferSize = 1 << 20

	// DefaultReceiveBufferSize is the size of the buffer used by the receiver
	// for each read.
	DefaultReceiveBufferSize = 64 << 10

	// DefaultIntervalDuration is how long the sender writes before closing a
	// run with the end marker.
	DefaultIntervalDuration = 10 * time.Second

	// DefaultIntervals is the number of runs performed by the sender.
	DefaultIntervals = 6

	// DefaultReportInterval is the receiver's interval sampling cadence.
	DefaultReportInterval = 1 * time.Second

	// DefaultLatencySamples is the number of round trips of a latency measurement.
	DefaultLatencySamples = 100

	// MinMeasureInterval is the minimum interval between kernel snapshots.
	MinMeasureInterval = 100 * time.Millisecond

	// AvgMeasureInterval is the average interval between kernel snapshots.
	AvgMeasureInterval = 250 * time.Millisecond

	// MaxMeasureInterval is the maximum interval between kernel snapshots.
	MaxMeasureInterval = 400 * time.Millisecond

	// ResultPath is the HTTP path serving in-memory connection results.
	ResultPath = "/nter/v1/result"

	// ResultsPath is the HTTP path listing every in-memory result.
	ResultsPath = "/nter/v1/results"
)

// Mode is the behavior of a server listener.
type Mode string

const (
	// ModeThroughput counts received bytes until the end marker.
	ModeThroughput = Mode("throughput")

	// ModeEcho writes back every byte it reads.
	ModeEcho = Mode("echo")
)

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeThroughput, ModeEcho:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode: %q", s)
}

// Unit is a throughput reporting unit.
type Unit string

const (
	// Mbps is megabits per second.
	Mbps = Unit("Mbps")
	// Gbps is gigabits per second.
	Gbps = Unit("Gbps")
)

// ParseUnit returns the Unit named by s.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case Mbps, Gbps:
		return Unit(s), nil
	}
	return "", fmt.Errorf("invalid unit: %q", s)
}

// Scale returns the number of bits per second in one u.
func (u Unit) Scale() float64 {
	if u == Gbps {
		return 1e9
	}
	return 1e6
}

// Convert converts bps (bits per second) to u.
func (u Unit) Convert(bps float64) float64 {
	return bps / u.Scale()
}
