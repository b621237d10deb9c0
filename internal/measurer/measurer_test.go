package measurer_test

import (
	"context"
	"io"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/m-lab/nter/internal/measurer"
	"github.com/m-lab/nter/internal/netx"
)

func newLoopbackConn(t *testing.T) *netx.Conn {
	tcpl, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	rtx.Must(err, "cannot listen")
	ln := netx.NewListener(tcpl)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return
		}
		c.Write([]byte("test"))
		buf := make([]byte, 1)
		c.Read(buf)
		c.Close()
	}()
	conn, err := ln.AcceptConn()
	rtx.Must(err, "cannot accept")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMeasurer_Start(t *testing.T) {
	conn := newLoopbackConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := measurer.New()
	mchan := m.Start(ctx, conn)
	select {
	case got := <-mchan:
		if got.ElapsedTime <= 0 {
			t.Errorf("invalid elapsed time: %d", got.ElapsedTime)
		}
		if runtime.GOOS == "linux" && got.TCPInfo == nil {
			t.Errorf("missing TCPInfo")
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("did not receive any measurement")
	}

	// The channel must be closed after the context is done.
	cancel()
	timeout := time.After(1 * time.Second)
	for {
		select {
		case _, ok := <-mchan:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("measurement channel not closed after cancel")
		}
	}
}

func TestMeasurer_Measure(t *testing.T) {
	conn := newLoopbackConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := measurer.New()
	m.Start(ctx, conn)
	buf := make([]byte, 4)
	_, err := io.ReadFull(conn, buf)
	rtx.Must(err, "cannot read")

	got := m.Measure(ctx)
	if got.Network.BytesReceived != 4 {
		t.Errorf("BytesReceived = %d, want 4", got.Network.BytesReceived)
	}
	if got.Network.BytesSent != 0 {
		t.Errorf("BytesSent = %d, want 0", got.Network.BytesSent)
	}
}
