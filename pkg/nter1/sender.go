package nter1

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

// Sender is the sending side of a throughput measurement. It writes a
// random payload for IntervalDuration, closes the run with the end marker
// and repeats Intervals times.
type Sender struct {
	// BufferSize is the size of each payload write.
	BufferSize int
	// IntervalDuration is the duration of a single run.
	IntervalDuration time.Duration
	// Intervals is the number of runs. Zero means until the context is done.
	Intervals int
	// Reporter receives interval samples and the final summary. May be nil.
	Reporter Reporter

	rnd *rand.Rand
}

// NewSender returns a Sender with the default buffer size, interval duration
// and number of intervals.
func NewSender() *Sender {
	return &Sender{
		BufferSize:       spec.DefaultSendBufferSize,
		IntervalDuration: spec.DefaultIntervalDuration,
		Intervals:        spec.DefaultIntervals,
		// Seed randomness source with the current time.
		rnd: rand.New(rand.NewSource(time.Now().UnixMilli())),
	}
}

// makePayload returns a buffer of the configured size filled with random
// bytes. The content is irrelevant to the measurement.
func (s *Sender) makePayload() []byte {
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixMilli()))
	}
	data := make([]byte, s.BufferSize)
	s.rnd.Read(data)
	return data
}

// Run sends every run of the measurement over conn and returns the overall
// summary. On failure or cancellation, it returns the partial summary
// accumulated so far along with an error wrapping ErrTransport or
// ErrCancelled. Writes are never retried.
func (s *Sender) Run(ctx context.Context, conn net.Conn) (model.RunSummary, error) {
	if s.BufferSize <= 0 || s.IntervalDuration <= 0 || s.Intervals < 0 {
		return model.RunSummary{}, errors.New("invalid sender configuration")
	}
	reporter := reporterOrNop(s.Reporter)
	payload := s.makePayload()

	stop := abortOnDone(ctx, conn)
	defer stop()

	var total int64
	// The overall timer is started once, so the summary does not accumulate
	// the drift of per-interval timers.
	start := time.Now()
	finish := func(complete bool) model.RunSummary {
		elapsed := time.Since(start)
		summary := model.RunSummary{
			Bytes:         total,
			Elapsed:       elapsed,
			BitsPerSecond: bitsPerSecond(total, elapsed),
			Complete:      complete,
		}
		reporter.OnRun(summary)
		return summary
	}

	for seq := 1; s.Intervals == 0 || seq <= s.Intervals; seq++ {
		var intervalBytes int64
		intervalStart := time.Now()
		for time.Since(intervalStart) < s.IntervalDuration {
			if ctx.Err() != nil {
				return finish(false), classify(ctx, ctx.Err())
			}
			n, err := conn.Write(payload)
			intervalBytes += int64(n)
			total += int64(n)
			if err != nil {
				log.Debug("payload write failed", "seq", seq, "err", err)
				return finish(false), classify(ctx, err)
			}
		}
		if ctx.Err() != nil {
			return finish(false), classify(ctx, ctx.Err())
		}
		if _, err := conn.Write(endMarker); err != nil {
			log.Debug("end marker write failed", "seq", seq, "err", err)
			return finish(false), classify(ctx, err)
		}
		elapsed := time.Since(intervalStart)
		reporter.OnInterval(model.IntervalSample{
			Seq:           seq,
			Start:         intervalStart.Sub(start),
			Elapsed:       elapsed,
			Bytes:         intervalBytes,
			BitsPerSecond: bitsPerSecond(intervalBytes, elapsed),
		})
	}
	return finish(true), nil
}
