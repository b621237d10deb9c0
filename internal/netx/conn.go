package netx

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/conduitio/bwlimit"
	guuid "github.com/google/uuid"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/nter/internal/congestion"
	"github.com/m-lab/tcp-info/inetdiag"
	"github.com/m-lab/tcp-info/tcp"
	"github.com/m-lab/uuid"
)

// ErrNoSupport is returned when the connection does not give access to the
// underlying socket, or the platform lacks the requested socket option.
var ErrNoSupport = errors.New("socket option not supported")

// ConnInfo provides operations on a net.Conn's underlying socket.
type ConnInfo interface {
	ByteCounters() (uint64, uint64)
	Info() (inetdiag.BBRInfo, tcp.LinuxTCPInfo, error)
	AcceptTime() time.Time
	UUID() string
	CC() (string, error)
	SetCC(string) error
}

// ToConnInfo is a helper function to convert a net.Conn into a netx.ConnInfo.
// It panics if netConn is not a *Conn.
func ToConnInfo(netConn net.Conn) ConnInfo {
	switch t := netConn.(type) {
	case *Conn:
		return t
	default:
		panic(fmt.Sprintf("unsupported connection type: %T", t))
	}
}

// Conn is an extended net.Conn that stores its accept (or connect) time, a
// handle on the underlying socket, and counters for read/written bytes.
// Close is idempotent: only the first call closes the underlying net.Conn.
type Conn struct {
	net.Conn

	raw          syscall.RawConn
	acceptTime   time.Time
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64

	// writeChunk and readChunk bound the size of each I/O call on a
	// rate-limited connection. Zero means no bound.
	writeChunk int
	readChunk  int

	uuidOnce  sync.Once
	uuid      string
	closeOnce sync.Once
}

// limitChunksPerSecond is the number of pieces one second's worth of bytes
// is split into on a rate-limited connection. A deadline set during a
// limiter wait is only seen when the next piece starts.
const limitChunksPerSecond = 100

// FromTCPConn wraps tcpConn in a Conn. The socket is accessed through
// syscall.RawConn, so the connection stays in non-blocking mode and its
// deadlines keep working.
func FromTCPConn(tcpConn *net.TCPConn) (*Conn, error) {
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return nil, err
	}
	return &Conn{
		Conn:       tcpConn,
		raw:        raw,
		acceptTime: time.Now(),
	}, nil
}

// NewConn wraps an arbitrary net.Conn. Socket-level operations on the
// returned Conn fail with ErrNoSupport.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		Conn:       conn,
		acceptTime: time.Now(),
	}
}

// Limit caps the write and read rates of this connection, in bytes per
// second. Zero means no limit. It must be called before any I/O.
func (c *Conn) Limit(writeLimit, readLimit int) {
	if writeLimit <= 0 && readLimit <= 0 {
		return
	}
	c.Conn = bwlimit.NewConn(c.Conn, bwlimit.Byte(writeLimit), bwlimit.Byte(readLimit))
	c.writeChunk = chunkSize(writeLimit)
	c.readChunk = chunkSize(readLimit)
}

func chunkSize(limit int) int {
	if limit <= 0 {
		return 0
	}
	return max(limit/limitChunksPerSecond, 1)
}

// Read reads from the underlying net.Conn and updates the read bytes counter.
// On a rate-limited connection a single Read returns at most one chunk.
func (c *Conn) Read(b []byte) (int, error) {
	if c.readChunk > 0 && len(b) > c.readChunk {
		b = b[:c.readChunk]
	}
	n, err := c.Conn.Read(b)
	c.bytesRead.Add(uint64(n))
	return n, err
}

// Write writes to the underlying net.Conn and updates the written bytes counter.
// On a rate-limited connection b is written one chunk at a time.
func (c *Conn) Write(b []byte) (int, error) {
	if c.writeChunk <= 0 {
		n, err := c.Conn.Write(b)
		c.bytesWritten.Add(uint64(n))
		return n, err
	}
	var total int
	for len(b) > 0 {
		piece := b[:min(len(b), c.writeChunk)]
		n, err := c.Conn.Write(piece)
		c.bytesWritten.Add(uint64(n))
		total += n
		if err != nil {
			return total, err
		}
		b = b[n:]
	}
	return total, nil
}

// ByteCounters returns the read and written byte counters, in this order.
func (c *Conn) ByteCounters() (uint64, uint64) {
	return c.bytesRead.Load(), c.bytesWritten.Load()
}

// Close closes the underlying net.Conn. Subsequent calls do nothing and
// return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
	})
	return err
}

// SetCC sets the congestion control algorithm on the underlying socket.
func (c *Conn) SetCC(cc string) error {
	if c.raw == nil {
		return ErrNoSupport
	}
	return congestion.Set(c.raw, cc)
}

// CC returns the current congestion control algorithm of the underlying
// socket.
func (c *Conn) CC() (string, error) {
	if c.raw == nil {
		return "", ErrNoSupport
	}
	return congestion.Get(c.raw)
}

// Info returns the BBRInfo and TCPInfo structs associated with the underlying
// socket. It returns an error if TCPInfo cannot be read.
func (c *Conn) Info() (inetdiag.BBRInfo, tcp.LinuxTCPInfo, error) {
	if c.raw == nil {
		return inetdiag.BBRInfo{}, tcp.LinuxTCPInfo{}, ErrNoSupport
	}
	// This is expected to fail if this connection isn't set to use BBR.
	bbrInfo, _ := congestion.GetBBRInfo(c.raw)
	tcpInfo, err := getTCPInfo(c.raw)
	return bbrInfo, tcpInfo, err
}

// AcceptTime returns this connection's accept time.
func (c *Conn) AcceptTime() time.Time {
	return c.acceptTime
}

// UUID returns an M-Lab UUID derived from the socket cookie. On platforms
// not supporting SO_COOKIE, it returns a google/uuid as a fallback. If the
// fallback fails, it panics. The value is computed once.
func (c *Conn) UUID() string {
	c.uuidOnce.Do(func() {
		if c.raw != nil {
			if cookie, err := getCookie(c.raw); err == nil {
				c.uuid = uuid.FromCookie(cookie)
				return
			}
		}
		// fallback: use google/uuid if the platform does not support SO_COOKIE.
		gid, err := guuid.NewUUID()
		// NOTE: this could only fail when guuid.GetTime() fails.
		rtx.Must(err, "unable to fallback to uuid")
		c.uuid = gid.String()
	})
	return c.uuid
}
