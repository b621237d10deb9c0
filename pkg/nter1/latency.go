package nter1

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/m-lab/nter/pkg/nter1/model"
)

// MeasureLatency performs sampleCount synchronous round trips over conn. Each
// round trip writes a single byte and waits for exactly one byte back, so
// the peer must run the echo behavior (see Echo). The summary's Mean is the
// arithmetic mean of the samples, with no outlier rejection.
func MeasureLatency(ctx context.Context, conn net.Conn, sampleCount int) (model.LatencySummary, error) {
	if sampleCount <= 0 {
		return model.LatencySummary{}, errors.New("sample count must be positive")
	}
	stop := abortOnDone(ctx, conn)
	defer stop()

	ping := []byte{0x01}
	reply := make([]byte, 1)
	samples := make([]time.Duration, 0, sampleCount)
	var sum time.Duration
	summarize := func() model.LatencySummary {
		s := model.LatencySummary{Samples: samples}
		if len(samples) > 0 {
			s.Mean = sum / time.Duration(len(samples))
		}
		return s
	}

	for i := 0; i < sampleCount; i++ {
		if ctx.Err() != nil {
			return summarize(), classify(ctx, ctx.Err())
		}
		sendTime := time.Now()
		if _, err := conn.Write(ping); err != nil {
			return summarize(), classify(ctx, err)
		}
		if _, err := io.ReadFull(conn, reply); err != nil {
			return summarize(), classify(ctx, err)
		}
		rtt := time.Since(sendTime)
		samples = append(samples, rtt)
		sum += rtt
	}
	return summarize(), nil
}

// Echo writes back every byte read from conn until the peer disconnects, a
// read or write fails or ctx is done. It returns the number of reads echoed.
// A clean disconnection returns a nil error. Echo does not close conn.
func Echo(ctx context.Context, conn net.Conn) (int64, error) {
	stop := abortOnDone(ctx, conn)
	defer stop()

	// Probes are a single byte, but any read size is echoed in full.
	buf := make([]byte, 512)
	var count int64
	for {
		if ctx.Err() != nil {
			return count, classify(ctx, ctx.Err())
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return count, classify(ctx, werr)
			}
			count++
		}
		if err != nil {
			err = classify(ctx, err)
			if errors.Is(err, ErrDisconnected) {
				return count, nil
			}
			return count, err
		}
	}
}
