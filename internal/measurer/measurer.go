// Package measurer periodically snapshots the kernel's view of a TCP
// connection while a measurement is running.
package measurer

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/nter/internal/netx"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

// Measurer reads BBRInfo, TCPInfo and byte counters of a connection.
type Measurer struct {
	connInfo  netx.ConnInfo
	startTime time.Time

	bytesReadAtStart    uint64
	bytesWrittenAtStart uint64

	dstChan chan model.Measurement
}

// New returns a new Measurer.
func New() *Measurer {
	return &Measurer{}
}

// Start starts a measurer goroutine that periodically reads the tcp_info and
// bbr_info kernel structs for the connection, if available, and sends them
// wrapped in a Measurement over the returned channel. The channel is closed
// when ctx is done.
//
// The context determines the measurer goroutine's lifetime. conn must be a
// *netx.Conn.
func (m *Measurer) Start(ctx context.Context, conn net.Conn) <-chan model.Measurement {
	// Implementation note: this channel must be buffered to account for slow
	// readers. The buffer size corresponds to at least 10 seconds:
	//
	// 10000ms / 100 ms/snapshot = 100 snapshots
	m.dstChan = make(chan model.Measurement, 100)
	m.connInfo = netx.ToConnInfo(conn)
	m.bytesReadAtStart, m.bytesWrittenAtStart = m.connInfo.ByteCounters()
	m.startTime = time.Now()

	t, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      spec.MinMeasureInterval,
		Expected: spec.AvgMeasureInterval,
		Max:      spec.MaxMeasureInterval,
	})
	// This can only error if min/expected/max above are set to invalid
	// values. Since they are constants, we panic here.
	rtx.PanicOnError(err, "ticker creation failed (this should never happen)")

	go m.loop(ctx, t)
	return m.dstChan
}

func (m *Measurer) loop(ctx context.Context, t *memoryless.Ticker) {
	log.Debug("measurer: start", "uuid", m.connInfo.UUID())
	defer log.Debug("measurer: stop", "uuid", m.connInfo.UUID())
	defer close(m.dstChan)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			measurement := m.Measure(ctx)
			select {
			case <-ctx.Done():
				return
			case m.dstChan <- measurement:
			}
		}
	}
}

// Measure collects a single Measurement. Start must have been called first.
func (m *Measurer) Measure(ctx context.Context) model.Measurement {
	bbrInfo, tcpInfo, err := m.connInfo.Info()
	read, written := m.connInfo.ByteCounters()
	measurement := model.Measurement{
		ElapsedTime: time.Since(m.startTime).Microseconds(),
		Network: model.ByteCounters{
			BytesReceived: int64(read - m.bytesReadAtStart),
			BytesSent:     int64(written - m.bytesWrittenAtStart),
		},
	}
	if err != nil {
		if !errors.Is(err, netx.ErrNoSupport) {
			log.Warn("cannot get tcpInfo", "uuid", m.connInfo.UUID(), "err", err)
		}
		return measurement
	}
	measurement.TCPInfo = &tcpInfo
	// BW is zero when the connection is not using BBR.
	if bbrInfo.BW != 0 {
		measurement.BBRInfo = &bbrInfo
	}
	return measurement
}
