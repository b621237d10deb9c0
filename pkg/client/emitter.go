package client

import (
	"fmt"

	"github.com/m-lab/nter/pkg/nter1"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

const (
	mebibyte = 1 << 20
	gibibyte = 1 << 30
)

// Emitter is an interface for emitting results.
type Emitter interface {
	// OnInterval is called at the end of each run, and OnRun once with the
	// overall summary.
	nter1.Reporter

	// OnStart is called before connecting to the server.
	OnStart(server string)
	// OnConnect is called when the TCP connection is established.
	OnConnect(server string)
	// OnLatency is called when the latency measurement completes.
	OnLatency(model.LatencySummary)
	// OnError is called on errors.
	OnError(err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
	// OnSummary is called to print summary information.
	OnSummary(Result)
}

// HumanReadable prints human-readable output to stdout.
// It can be configured to include debug output, too.
type HumanReadable struct {
	Debug bool
	Unit  spec.Unit
}

func (e HumanReadable) unit() spec.Unit {
	if e.Unit == "" {
		return spec.Mbps
	}
	return e.Unit
}

// OnStart is called before connecting and prints the server address.
func (HumanReadable) OnStart(server string) {
	fmt.Printf("Connecting to %s\n", server)
}

// OnConnect is called when the connection to the server is established.
func (HumanReadable) OnConnect(server string) {
	fmt.Printf("Connected to %s\n", server)
}

// OnInterval prints the outcome of a run.
func (e HumanReadable) OnInterval(s model.IntervalSample) {
	fmt.Printf("[%d] time: %.2fs | sent: %.2f MBytes | bandwidth: %.2f %s\n",
		s.Seq, s.Elapsed.Seconds(), float64(s.Bytes)/mebibyte,
		e.unit().Convert(s.BitsPerSecond), e.unit())
}

// OnRun prints the overall outcome of the throughput test.
func (e HumanReadable) OnRun(s model.RunSummary) {
	fmt.Printf("total time: %.2fs | total sent: %.2f GBytes | bandwidth: %.2f %s\n",
		s.Elapsed.Seconds(), float64(s.Bytes)/gibibyte,
		e.unit().Convert(s.BitsPerSecond), e.unit())
}

// OnLatency prints the average round-trip time.
func (HumanReadable) OnLatency(s model.LatencySummary) {
	fmt.Printf("latency: %.3f ms (%d samples)\n", s.AverageMillis(), len(s.Samples))
}

// OnError is called on errors.
func (HumanReadable) OnError(err error) {
	if !nter1.IsClean(err) {
		fmt.Println(err)
	}
}

// OnSummary prints the test results.
func (e HumanReadable) OnSummary(r Result) {
	fmt.Println()
	fmt.Printf("Test results (server: %s):\n", r.Server)
	fmt.Printf("  throughput: %.2f %s, sent: %.2f MBytes in %.2fs, cc: %s\n",
		e.unit().Convert(r.Throughput.BitsPerSecond), e.unit(),
		float64(r.Throughput.Bytes)/mebibyte, r.Throughput.Elapsed.Seconds(),
		r.CongestionControl)
	if r.Latency != nil {
		fmt.Printf("  latency: %.3f ms\n", r.Latency.AverageMillis())
	}
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Printf("DEBUG: %s\n", msg)
	}
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}
