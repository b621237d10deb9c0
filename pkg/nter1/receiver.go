package nter1

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

// readStep is the outcome of a single read on the receiving side.
type readStep int

const (
	stepContinue readStep = iota
	stepEndOfRun
	stepDisconnected
	stepFailure
)

// Receiver is the receiving side of a throughput measurement. It counts the
// bytes it reads until the end marker, then waits for the next run or for
// the peer to disconnect.
type Receiver struct {
	// BufferSize is the size of the buffer used for each read.
	BufferSize int
	// ReportInterval is the minimum span of an interval sample. A sample is
	// emitted only after a read returns data, so an idle connection emits
	// nothing until the next byte arrives or the peer disconnects, and that
	// sample covers the idle time. When zero, one interval sample is
	// emitted at the end of each run.
	ReportInterval time.Duration
	// DetectSplitMarker enables recognition of an end marker delivered
	// across two reads. When false, only the last 4 bytes of each read are
	// inspected.
	DetectSplitMarker bool
	// Reporter receives interval samples and run summaries. May be nil.
	Reporter Reporter
}

// NewReceiver returns a Receiver with the default buffer size and report
// interval and split marker detection enabled.
func NewReceiver() *Receiver {
	return &Receiver{
		BufferSize:        spec.DefaultReceiveBufferSize,
		ReportInterval:    spec.DefaultReportInterval,
		DetectSplitMarker: true,
	}
}

// receiveState holds the counters of a single connection. It is owned by
// the goroutine running Handle.
type receiveState struct {
	r        *Receiver
	reporter Reporter
	buf      []byte
	detector *markerDetector

	start time.Time

	intervalSeq   int
	intervalStart time.Time
	intervalBytes int64

	runStart time.Time
	runBytes int64
	inRun    bool
	runs     []model.RunSummary
}

// Handle reads from conn until the peer disconnects, a read fails or ctx is
// done. It returns the summaries of the runs received so far, including a
// partial summary of an interrupted run. A clean disconnection returns a nil
// error. Handle does not close conn.
func (r *Receiver) Handle(ctx context.Context, conn net.Conn) ([]model.RunSummary, error) {
	if r.BufferSize <= 0 {
		return nil, errors.New("invalid receiver configuration")
	}
	now := time.Now()
	st := &receiveState{
		r:             r,
		reporter:      reporterOrNop(r.Reporter),
		buf:           make([]byte, r.BufferSize),
		detector:      newMarkerDetector(r.DetectSplitMarker),
		start:         now,
		intervalStart: now,
		runStart:      now,
	}

	stop := abortOnDone(ctx, conn)
	defer stop()

	for {
		if ctx.Err() != nil {
			st.flush()
			return st.runs, classify(ctx, ctx.Err())
		}
		step, err := st.read(ctx, conn)
		switch step {
		case stepContinue, stepEndOfRun:
			continue
		case stepDisconnected:
			st.flush()
			return st.runs, nil
		case stepFailure:
			st.flush()
			return st.runs, err
		}
	}
}

// read performs one read and updates the counters accordingly.
func (st *receiveState) read(ctx context.Context, conn net.Conn) (readStep, error) {
	n, err := conn.Read(st.buf)
	now := time.Now()
	step := stepContinue
	if n > 0 {
		st.inRun = true
		st.intervalBytes += int64(n)
		st.runBytes += int64(n)
		if st.detector.check(st.buf, n) {
			// The marker is not payload. Only the part of it contained in
			// this read can be removed from the current interval, which
			// may have been reported already.
			st.runBytes -= spec.EndMarkerSize
			st.intervalBytes -= int64(min(n, spec.EndMarkerSize))
			st.endRun(now, true)
			step = stepEndOfRun
		}
		if st.r.ReportInterval > 0 && now.Sub(st.intervalStart) >= st.r.ReportInterval {
			st.emitInterval(now)
		}
	}
	if err != nil {
		err = classify(ctx, err)
		if errors.Is(err, ErrDisconnected) {
			return stepDisconnected, nil
		}
		log.Debug("read failed", "remote", conn.RemoteAddr(), "err", err)
		return stepFailure, err
	}
	return step, nil
}

// endRun finalizes the current run.
func (st *receiveState) endRun(now time.Time, complete bool) {
	elapsed := now.Sub(st.runStart)
	summary := model.RunSummary{
		Seq:           len(st.runs) + 1,
		Bytes:         st.runBytes,
		Elapsed:       elapsed,
		BitsPerSecond: bitsPerSecond(st.runBytes, elapsed),
		Complete:      complete,
	}
	st.runs = append(st.runs, summary)
	st.reporter.OnRun(summary)
	if st.r.ReportInterval <= 0 {
		st.emitInterval(now)
	}
	st.runBytes = 0
	st.runStart = now
	st.inRun = false
}

func (st *receiveState) emitInterval(now time.Time) {
	st.intervalSeq++
	elapsed := now.Sub(st.intervalStart)
	st.reporter.OnInterval(model.IntervalSample{
		Seq:           st.intervalSeq,
		Start:         st.intervalStart.Sub(st.start),
		Elapsed:       elapsed,
		Bytes:         st.intervalBytes,
		BitsPerSecond: bitsPerSecond(st.intervalBytes, elapsed),
	})
	st.intervalBytes = 0
	st.intervalStart = now
}

// flush reports whatever was received since the last run boundary.
func (st *receiveState) flush() {
	now := time.Now()
	if st.inRun {
		st.endRun(now, false)
	}
	if st.intervalBytes > 0 {
		st.emitInterval(now)
	}
}
