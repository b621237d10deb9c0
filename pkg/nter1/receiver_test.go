package nter1_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/m-lab/nter/pkg/nter1"
	"github.com/m-lab/nter/pkg/nter1/model"
)

type handleResult struct {
	runs []model.RunSummary
	err  error
}

func handleAsync(ctx context.Context, r *nter1.Receiver, conn net.Conn) <-chan handleResult {
	ch := make(chan handleResult, 1)
	go func() {
		runs, err := r.Handle(ctx, conn)
		ch <- handleResult{runs: runs, err: err}
	}()
	return ch
}

func writeAll(t *testing.T, conn net.Conn, chunks ...[]byte) {
	for _, c := range chunks {
		if _, err := conn.Write(c); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func TestReceiver_Handle(t *testing.T) {
	tests := []struct {
		name     string
		writes   int
		size     int
		runs     int
		unclosed bool
		wantRuns int
	}{
		{name: "one-run", writes: 10, size: 1000, runs: 1, wantRuns: 1},
		{name: "three-runs", writes: 5, size: 100 << 10, runs: 3, wantRuns: 3},
		{name: "tiny-writes", writes: 100, size: 1, runs: 2, wantRuns: 2},
		{name: "trailing-partial-run", writes: 4, size: 512, runs: 2, unclosed: true, wantRuns: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer server.Close()

			rec := &recorder{}
			r := nter1.NewReceiver()
			r.Reporter = rec
			done := handleAsync(context.Background(), r, server)

			// Payload of zeros never contains the marker.
			payload := make([]byte, tt.size)
			for run := 0; run < tt.runs; run++ {
				for i := 0; i < tt.writes; i++ {
					writeAll(t, client, payload)
				}
				writeAll(t, client, nter1.EndMarker())
			}
			if tt.unclosed {
				writeAll(t, client, payload)
			}
			client.Close()

			got := <-done
			if got.err != nil {
				t.Fatalf("Receiver.Handle() error = %v", got.err)
			}
			if len(got.runs) != tt.wantRuns {
				t.Fatalf("got %d runs, want %d", len(got.runs), tt.wantRuns)
			}
			for i := 0; i < tt.runs; i++ {
				run := got.runs[i]
				if run.Seq != i+1 || !run.Complete {
					t.Errorf("run %d: unexpected summary %+v", i, run)
				}
				if want := int64(tt.writes * tt.size); run.Bytes != want {
					t.Errorf("run %d: got %d bytes, want %d", i, run.Bytes, want)
				}
			}
			if tt.unclosed {
				last := got.runs[len(got.runs)-1]
				if last.Complete || last.Bytes != int64(tt.size) {
					t.Errorf("unexpected trailing run: %+v", last)
				}
			}
			if len(rec.runs) != len(got.runs) {
				t.Errorf("reporter got %d runs, want %d", len(rec.runs), len(got.runs))
			}
			// The interval samples account for every payload byte.
			var intervalTotal, runTotal int64
			for _, iv := range rec.intervals {
				intervalTotal += iv.Bytes
			}
			for _, run := range got.runs {
				runTotal += run.Bytes
			}
			if intervalTotal != runTotal {
				t.Errorf("intervals sum to %d bytes, runs to %d", intervalTotal, runTotal)
			}
		})
	}
}

func TestReceiver_SplitMarker(t *testing.T) {
	tests := []struct {
		name      string
		split     bool
		wantBytes int64
		complete  bool
	}{
		{name: "detected", split: true, wantBytes: 1000, complete: true},
		{name: "trailing-bytes-only", split: false, wantBytes: 1004, complete: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer server.Close()

			r := nter1.NewReceiver()
			r.DetectSplitMarker = tt.split
			done := handleAsync(context.Background(), r, server)

			marker := nter1.EndMarker()
			writeAll(t, client, make([]byte, 1000), marker[:2], marker[2:])
			client.Close()

			got := <-done
			if got.err != nil {
				t.Fatalf("Receiver.Handle() error = %v", got.err)
			}
			if len(got.runs) != 1 {
				t.Fatalf("got %d runs, want 1", len(got.runs))
			}
			if got.runs[0].Bytes != tt.wantBytes || got.runs[0].Complete != tt.complete {
				t.Errorf("unexpected run: %+v", got.runs[0])
			}
		})
	}
}

func TestReceiver_OneIntervalPerRun(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	rec := &recorder{}
	r := nter1.NewReceiver()
	r.ReportInterval = 0
	r.Reporter = rec
	done := handleAsync(context.Background(), r, server)

	for run := 0; run < 3; run++ {
		writeAll(t, client, make([]byte, 2048), nter1.EndMarker())
	}
	client.Close()
	got := <-done
	if got.err != nil {
		t.Fatalf("Receiver.Handle() error = %v", got.err)
	}
	if len(rec.intervals) != 3 {
		t.Fatalf("got %d intervals, want 3", len(rec.intervals))
	}
	for i, iv := range rec.intervals {
		if iv.Bytes != 2048 {
			t.Errorf("interval %d has %d bytes, want 2048", i, iv.Bytes)
		}
	}
}

func TestReceiver_IdleInterval(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	rec := &recorder{}
	r := nter1.NewReceiver()
	r.ReportInterval = 50 * time.Millisecond
	r.Reporter = rec
	done := handleAsync(context.Background(), r, server)

	writeAll(t, client, make([]byte, 100))
	time.Sleep(300 * time.Millisecond)
	rec.mu.Lock()
	idle := len(rec.intervals)
	rec.mu.Unlock()
	if idle != 0 {
		t.Errorf("got %d interval samples while idle, want 0", idle)
	}
	writeAll(t, client, make([]byte, 100))
	client.Close()
	if got := <-done; got.err != nil {
		t.Fatalf("Receiver.Handle() error = %v", got.err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.intervals) != 1 {
		t.Fatalf("got %d interval samples, want 1", len(rec.intervals))
	}
	iv := rec.intervals[0]
	if iv.Bytes != 200 || iv.Elapsed < 300*time.Millisecond {
		t.Errorf("unexpected interval sample: %+v", iv)
	}
}

// failingConn returns data on the first read and an error afterwards.
type failingConn struct {
	net.Conn
	reads int
}

func (c *failingConn) Read(b []byte) (int, error) {
	c.reads++
	if c.reads == 1 {
		return copy(b, make([]byte, 500)), nil
	}
	return 0, errors.New("connection reset")
}

func TestReceiver_ReadFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rec := &recorder{}
	r := nter1.NewReceiver()
	r.Reporter = rec
	runs, err := r.Handle(context.Background(), &failingConn{Conn: server})
	if !errors.Is(err, nter1.ErrTransport) {
		t.Fatalf("Receiver.Handle() error = %v, want ErrTransport", err)
	}
	if len(runs) != 1 || runs[0].Complete || runs[0].Bytes != 500 {
		t.Errorf("unexpected partial runs: %+v", runs)
	}
	if len(rec.runs) != 1 {
		t.Errorf("the partial summary was not reported")
	}
}

func TestReceiver_Cancelled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := nter1.NewReceiver()
	done := handleAsync(ctx, r, server)
	writeAll(t, client, make([]byte, 300))
	cancel()

	select {
	case got := <-done:
		if !errors.Is(got.err, nter1.ErrCancelled) {
			t.Errorf("Receiver.Handle() error = %v, want ErrCancelled", got.err)
		}
		if len(got.runs) != 1 || got.runs[0].Bytes != 300 {
			t.Errorf("unexpected runs: %+v", got.runs)
		}
	case <-time.After(time.Second):
		t.Fatalf("Receiver.Handle() did not return after cancellation")
	}
}
