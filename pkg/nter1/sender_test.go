package nter1_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/m-lab/nter/pkg/nter1"
	"github.com/m-lab/nter/pkg/nter1/model"
)

// recorder is a Reporter that keeps everything it receives.
type recorder struct {
	mu        sync.Mutex
	intervals []model.IntervalSample
	runs      []model.RunSummary
}

func (r *recorder) OnInterval(s model.IntervalSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intervals = append(r.intervals, s)
}

func (r *recorder) OnRun(s model.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, s)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(math.Abs(a), math.Abs(b))
}

func TestSender_Run(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	// Drain the server side, keeping everything for inspection.
	var wire bytes.Buffer
	drained := make(chan struct{})
	go func() {
		io.Copy(&wire, server)
		close(drained)
	}()

	rec := &recorder{}
	s := nter1.NewSender()
	s.BufferSize = 1024
	s.IntervalDuration = 50 * time.Millisecond
	s.Intervals = 3
	s.Reporter = rec

	summary, err := s.Run(context.Background(), client)
	if err != nil {
		t.Fatalf("Sender.Run() error = %v", err)
	}
	client.Close()
	<-drained

	if !summary.Complete {
		t.Errorf("summary not complete")
	}
	if len(rec.intervals) != 3 {
		t.Fatalf("got %d intervals, want 3", len(rec.intervals))
	}
	var total int64
	for i, iv := range rec.intervals {
		if iv.Seq != i+1 {
			t.Errorf("interval %d has Seq %d", i, iv.Seq)
		}
		if iv.Bytes <= 0 || iv.Bytes%int64(s.BufferSize) != 0 {
			t.Errorf("interval %d has %d bytes", i, iv.Bytes)
		}
		want := float64(iv.Bytes) * 8 / iv.Elapsed.Seconds()
		if !almostEqual(iv.BitsPerSecond, want) {
			t.Errorf("interval %d: BitsPerSecond = %f, want %f", i, iv.BitsPerSecond, want)
		}
		total += iv.Bytes
	}
	if summary.Bytes != total {
		t.Errorf("summary has %d bytes, intervals sum to %d", summary.Bytes, total)
	}
	if !almostEqual(summary.BitsPerSecond, float64(summary.Bytes)*8/summary.Elapsed.Seconds()) {
		t.Errorf("inconsistent summary throughput: %+v", summary)
	}
	if len(rec.runs) != 1 || rec.runs[0] != summary {
		t.Errorf("reporter got runs %+v, want [%+v]", rec.runs, summary)
	}

	// The wire contains the payload plus one marker per interval.
	if int64(wire.Len()) != total+3*4 {
		t.Errorf("wire has %d bytes, want %d", wire.Len(), total+3*4)
	}
	if n := bytes.Count(wire.Bytes(), nter1.EndMarker()); n < 3 {
		t.Errorf("found %d markers on the wire, want at least 3", n)
	}
	if !bytes.HasSuffix(wire.Bytes(), nter1.EndMarker()) {
		t.Errorf("the stream does not end with the marker")
	}
}

func TestSender_WriteFailure(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		io.ReadFull(server, buf)
		server.Close()
	}()

	rec := &recorder{}
	s := nter1.NewSender()
	s.BufferSize = 1024
	s.IntervalDuration = time.Second
	s.Intervals = 1
	s.Reporter = rec

	summary, err := s.Run(context.Background(), client)
	if !errors.Is(err, nter1.ErrTransport) && !errors.Is(err, nter1.ErrDisconnected) {
		t.Fatalf("Sender.Run() error = %v, want a transport failure", err)
	}
	if summary.Complete {
		t.Errorf("partial summary marked complete")
	}
	if summary.Bytes < 4096 {
		t.Errorf("partial summary has %d bytes, want at least 4096", summary.Bytes)
	}
	if len(rec.runs) != 1 {
		t.Errorf("reporter got %d runs, want 1", len(rec.runs))
	}
}

func TestSender_Cancelled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	// Nobody reads: the first write blocks until the context is cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s := nter1.NewSender()
	s.BufferSize = 1024
	s.Intervals = 0

	start := time.Now()
	summary, err := s.Run(ctx, client)
	if !errors.Is(err, nter1.ErrCancelled) {
		t.Fatalf("Sender.Run() error = %v, want ErrCancelled", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Sender.Run() took %v after cancellation", time.Since(start))
	}
	if summary.Complete || summary.Bytes != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestSender_InvalidConfig(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	tests := []struct {
		name string
		s    *nter1.Sender
	}{
		{"zero-buffer", &nter1.Sender{IntervalDuration: time.Second, Intervals: 1}},
		{"zero-duration", &nter1.Sender{BufferSize: 1, Intervals: 1}},
		{"negative-intervals", &nter1.Sender{BufferSize: 1, IntervalDuration: time.Second, Intervals: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.s.Run(context.Background(), client); err == nil {
				t.Errorf("Sender.Run() succeeded with an invalid configuration")
			}
		})
	}
}
