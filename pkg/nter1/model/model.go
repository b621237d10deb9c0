// Package model contains the value objects produced by the nter1 engines.
package model

import (
	"time"

	"github.com/m-lab/tcp-info/inetdiag"
	"github.com/m-lab/tcp-info/tcp"
)

// IntervalSample is the number of bytes transferred during one fixed
// wall-clock window.
type IntervalSample struct {
	// Seq is the progressive number of this interval, starting from 1.
	Seq int
	// Start is the offset of the interval from the beginning of the
	// measurement.
	Start time.Duration
	// Elapsed is the interval's duration.
	Elapsed time.Duration
	// Bytes is the number of payload bytes transferred in the interval.
	Bytes int64
	// BitsPerSecond is Bytes*8/Elapsed.
	BitsPerSecond float64
}

// RunSummary is the outcome of a run, i.e. a burst of payload terminated by
// the end marker. On the sending side it covers every run of the
// measurement.
type RunSummary struct {
	// Seq is the progressive number of this run, starting from 1. It is zero
	// for the sender's overall summary.
	Seq int
	// Bytes is the total number of payload bytes. It never includes the end
	// marker.
	Bytes int64
	// Elapsed is the total time of the run.
	Elapsed time.Duration
	// BitsPerSecond is Bytes*8/Elapsed.
	BitsPerSecond float64
	// Complete is false when the run was interrupted by a disconnection,
	// a transport failure or a cancellation.
	Complete bool
}

// LatencySummary is the outcome of a latency measurement.
type LatencySummary struct {
	// Samples contains one round-trip time for each byte echoed, in order.
	Samples []time.Duration
	// Mean is the arithmetic mean of Samples.
	Mean time.Duration
}

// AverageMillis returns the mean round-trip time in milliseconds.
func (s LatencySummary) AverageMillis() float64 {
	return float64(s.Mean) / float64(time.Millisecond)
}

// ByteCounters is a sent/received pair of byte counters.
type ByteCounters struct {
	BytesSent     int64 `json:",omitempty"`
	BytesReceived int64 `json:",omitempty"`
}

// Measurement is a snapshot of the kernel's view of a TCP connection.
type Measurement struct {
	// ElapsedTime is the time elapsed since the start of the connection
	// handling, in microseconds.
	ElapsedTime int64

	// Network contains the byte counters of the socket.
	Network ByteCounters

	// BBRInfo is only present when the connection uses BBR.
	BBRInfo *inetdiag.BBRInfo `json:",omitempty"`

	// TCPInfo is only present where TCP_INFO is supported.
	TCPInfo *tcp.LinuxTCPInfo `json:",omitempty"`
}

// ConnectionResult is the server-side record of a single connection. It is
// kept in memory for a limited time and never written to disk.
type ConnectionResult struct {
	// UUID is the unique identifier of the TCP connection.
	UUID string
	// Mode is the server behavior used for this connection.
	Mode string
	// Client is the client's ip:port pair.
	Client string
	// Server is the server's ip:port pair.
	Server string
	// CC is the congestion control algorithm of the server's socket.
	CC string `json:",omitempty"`
	// StartTime is the connection's accept time.
	StartTime time.Time
	// EndTime is the time the connection was closed.
	EndTime time.Time

	// Runs contains one summary per run received on this connection.
	Runs []RunSummary `json:",omitempty"`
	// TotalBytes is the number of payload bytes received over every run.
	TotalBytes int64
	// RoundTrips is the number of echoed bytes (echo mode only).
	RoundTrips int64 `json:",omitempty"`

	// Measurements are the kernel snapshots taken while the connection was
	// open.
	Measurements []Measurement `json:",omitempty"`

	// Error is the reason the connection terminated abnormally, if any.
	Error string `json:",omitempty"`
}
