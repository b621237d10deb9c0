// Package session establishes, accepts and tears down nter1 connections.
//
// Every connection returned or served by this package is a *netx.Conn and
// is closed exactly once. Cancellation of the context passed to Serve stops
// the accept loop and every running handler.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/nter/internal/netx"
	"github.com/m-lab/nter/pkg/nter1"
)

// DefaultDialTimeout is the connection establishment timeout used when
// Options.DialTimeout is zero.
const DefaultDialTimeout = 10 * time.Second

// Options configures dialed and accepted connections.
type Options struct {
	// WriteLimit and ReadLimit cap the connection's rate in bytes per
	// second. Zero means no limit.
	WriteLimit int
	ReadLimit  int

	// CongestionControl is the congestion control algorithm to set on the
	// socket. Empty means the system default. Failures are logged and
	// otherwise ignored.
	CongestionControl string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
}

// Handler handles a single accepted connection. ServeConn must return
// once ctx is done. The connection is closed after ServeConn returns.
type Handler interface {
	ServeConn(ctx context.Context, conn *netx.Conn)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn *netx.Conn)

// ServeConn calls f(ctx, conn).
func (f HandlerFunc) ServeConn(ctx context.Context, conn *netx.Conn) {
	f(ctx, conn)
}

// Dial connects to addr over TCP. Any failure is wrapped in
// nter1.ErrConnect.
func Dial(ctx context.Context, addr string, opts Options) (*netx.Conn, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", nter1.ErrCancelled, err)
		}
		return nil, fmt.Errorf("%w: %w", nter1.ErrConnect, err)
	}
	conn, err := netx.FromTCPConn(c.(*net.TCPConn))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %w", nter1.ErrConnect, err)
	}
	conn.Limit(opts.WriteLimit, opts.ReadLimit)
	SetCC(conn, opts.CongestionControl)
	return conn, nil
}

// Listen binds and listens on addr. Accepted connections are rate-limited
// according to opts.
func Listen(ctx context.Context, addr string, opts Options) (*netx.Listener, error) {
	lc := net.ListenConfig{}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	ln := netx.NewListener(l.(*net.TCPListener))
	ln.WriteLimit = opts.WriteLimit
	ln.ReadLimit = opts.ReadLimit
	return ln, nil
}

// Serve accepts connections on ln and runs h for each of them in its own
// goroutine. It returns when ctx is done, after every running handler has
// returned, or when ln fails permanently. ln is closed when ctx is done.
func Serve(ctx context.Context, ln *netx.Listener, h Handler) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := ln.AcceptConn()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// Errors such as EMFILE are not fatal to the listener.
			log.Warn("accept failed", "addr", ln.Addr(), "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log.Debug("connection accepted", "client", conn.RemoteAddr(),
			"uuid", conn.UUID())
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if err := conn.Close(); err != nil {
					log.Debug("close failed", "uuid", conn.UUID(), "err", err)
				}
				log.Debug("connection closed", "client", conn.RemoteAddr(),
					"uuid", conn.UUID())
			}()
			h.ServeConn(ctx, conn)
		}()
	}
}

// SetCC sets the congestion control algorithm cc on conn. Failures are
// logged and the connection keeps the default algorithm. An empty cc does
// nothing.
func SetCC(conn *netx.Conn, cc string) {
	if cc == "" {
		return
	}
	if err := conn.SetCC(cc); err != nil {
		log.Warn("failed to set cc", "cc", cc, "err", err)
	}
}
