package nter1

import (
	"context"
	"net"
	"time"

	"github.com/m-lab/nter/pkg/nter1/model"
)

// Reporter receives the metrics produced by the sender and receiver engines.
// Methods are called synchronously from the engine's goroutine and should
// not block.
type Reporter interface {
	// OnInterval is called at the end of every interval.
	OnInterval(model.IntervalSample)
	// OnRun is called when a run's summary is final.
	OnRun(model.RunSummary)
}

// nopReporter discards everything.
type nopReporter struct{}

func (nopReporter) OnInterval(model.IntervalSample) {}
func (nopReporter) OnRun(model.RunSummary)          {}

func reporterOrNop(r Reporter) Reporter {
	if r == nil {
		return nopReporter{}
	}
	return r
}

// bitsPerSecond returns the throughput corresponding to n bytes in d.
func bitsPerSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) * 8 / d.Seconds()
}

// abortOnDone makes any blocking I/O on conn return as soon as ctx is done.
// The returned function must be called to release the context hook.
func abortOnDone(ctx context.Context, conn net.Conn) func() bool {
	return context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
}
