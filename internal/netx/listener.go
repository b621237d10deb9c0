package netx

import (
	"net"
	"time"
)

// Listener is a TCPListener. Connections accepted by this listener provide
// extra methods to interact with the connection's underlying socket.
type Listener struct {
	*net.TCPListener

	// WriteLimit and ReadLimit cap the rate of each accepted connection, in
	// bytes per second. Zero means no limit.
	WriteLimit int
	ReadLimit  int
}

// NewListener returns a netx.Listener.
func NewListener(l *net.TCPListener) *Listener {
	return &Listener{
		TCPListener: l,
	}
}

// Accept accepts a connection and returns a *netx.Conn which includes the
// connection's "accept time" and provides operations on the underlying
// socket.
func (ln *Listener) Accept() (net.Conn, error) {
	return ln.AcceptConn()
}

// AcceptConn is like Accept but returns the concrete *Conn.
func (ln *Listener) AcceptConn() (*Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	// The "accept time" is recorded immediately after AcceptTCP. This is the
	// closest thing we can get to a reference "start time" for TCPInfo metrics
	// since the TCP_INFO struct does not include time fields.
	acceptTime := time.Now()
	mc, err := FromTCPConn(tc)
	if err != nil {
		tc.Close()
		return nil, err
	}
	mc.acceptTime = acceptTime
	mc.Limit(ln.WriteLimit, ln.ReadLimit)
	return mc, nil
}
