package client

import (
	"time"

	"github.com/m-lab/nter/pkg/nter1/spec"
)

// Config is the configuration for a Client.
type Config struct {
	// Server is the hostname or IP address of the server.
	Server string

	// Port is the server's throughput port.
	Port int

	// BufferSize is the size of each payload write.
	BufferSize int

	// IntervalDuration is the duration of each run.
	IntervalDuration time.Duration

	// Intervals is the number of runs. Zero means until the context is
	// cancelled.
	Intervals int

	// LatencySamples is the number of latency round trips sent after the
	// throughput runs. Zero disables the latency phase.
	LatencySamples int

	// LatencyAddr is the host:port of the server's echo listener. If empty,
	// Server and spec.DefaultEchoPort are used.
	LatencyAddr string

	// Unit is the unit used to print throughput values.
	Unit spec.Unit

	// RateLimit caps the sending rate in bytes per second. Zero means no
	// limit.
	RateLimit int

	// CongestionControl is the congestion control algorithm to use on the
	// client's socket. Empty means the system default.
	CongestionControl string

	// Emitter is the interface used to emit the results of the test. It can be overridden
	// to provide a custom output.
	Emitter Emitter
}

// DefaultConfig returns a Config for server with every other option set to
// its default value.
func DefaultConfig(server string) Config {
	return Config{
		Server:           server,
		Port:             spec.DefaultPort,
		BufferSize:       spec.DefaultSendBufferSize,
		IntervalDuration: spec.DefaultIntervalDuration,
		Intervals:        spec.DefaultIntervals,
		LatencySamples:   spec.DefaultLatencySamples,
		Unit:             spec.Mbps,
		Emitter:          HumanReadable{Unit: spec.Mbps},
	}
}
