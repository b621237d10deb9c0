// Package client implements the client side of an nter1 measurement: a
// throughput phase followed by an optional latency phase.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/m-lab/nter/internal/session"
	"github.com/m-lab/nter/pkg/nter1"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
	"github.com/m-lab/nter/pkg/version"
)

// ErrInvalidConfig is returned when the configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Result contains the aggregate metrics collected during the test.
type Result struct {
	// Server is the address of the throughput server.
	Server string
	// CongestionControl is the algorithm used by the client's socket.
	CongestionControl string
	// Throughput is the overall summary of the throughput phase.
	Throughput model.RunSummary
	// Latency is the outcome of the latency phase, if it ran.
	Latency *model.LatencySummary
}

// Client runs measurements against a single server.
type Client struct {
	config Config
}

// New returns a new Client with the provided config. Zero values in config
// are replaced with defaults, except Intervals and LatencySamples.
func New(config Config) *Client {
	if config.Port == 0 {
		config.Port = spec.DefaultPort
	}
	if config.BufferSize == 0 {
		config.BufferSize = spec.DefaultSendBufferSize
	}
	if config.IntervalDuration == 0 {
		config.IntervalDuration = spec.DefaultIntervalDuration
	}
	if config.Unit == "" {
		config.Unit = spec.Mbps
	}
	if config.Emitter == nil {
		config.Emitter = HumanReadable{Unit: config.Unit}
	}
	return &Client{config: config}
}

func (c *Client) serverAddr() string {
	return net.JoinHostPort(c.config.Server, strconv.Itoa(c.config.Port))
}

func (c *Client) latencyAddr() string {
	if c.config.LatencyAddr != "" {
		return c.config.LatencyAddr
	}
	return net.JoinHostPort(c.config.Server, strconv.Itoa(spec.DefaultEchoPort))
}

// Run runs the throughput phase and then, if enabled, the latency phase.
// Cancellation of ctx is a clean termination: the partial result is
// returned with a nil error. Any other failure is returned along with the
// partial result.
func (c *Client) Run(ctx context.Context) (*Result, error) {
	em := c.config.Emitter
	if c.config.Server == "" {
		err := fmt.Errorf("%w: empty server", ErrInvalidConfig)
		em.OnError(err)
		return nil, err
	}
	em.OnDebug(fmt.Sprintf("nter client %s", version.Version))

	addr := c.serverAddr()
	result := &Result{Server: addr}
	em.OnStart(addr)
	conn, err := session.Dial(ctx, addr, session.Options{
		WriteLimit:        c.config.RateLimit,
		CongestionControl: c.config.CongestionControl,
	})
	if errors.Is(err, nter1.ErrCancelled) {
		return c.stop(result, err)
	}
	if err != nil {
		em.OnError(err)
		return nil, err
	}
	em.OnConnect(addr)
	if cc, err := conn.CC(); err == nil {
		result.CongestionControl = cc
	}

	sender := nter1.NewSender()
	sender.BufferSize = c.config.BufferSize
	sender.IntervalDuration = c.config.IntervalDuration
	sender.Intervals = c.config.Intervals
	sender.Reporter = em
	result.Throughput, err = sender.Run(ctx, conn)
	conn.Close()
	if err != nil {
		return c.stop(result, err)
	}

	if c.config.LatencySamples > 0 {
		var err error
		result.Latency, err = c.measureLatency(ctx)
		if err != nil {
			return c.stop(result, err)
		}
	}
	em.OnSummary(*result)
	return result, nil
}

// stop ends the measurement early because of err.
func (c *Client) stop(result *Result, err error) (*Result, error) {
	em := c.config.Emitter
	if errors.Is(err, nter1.ErrCancelled) {
		em.OnDebug("measurement cancelled")
		em.OnSummary(*result)
		return result, nil
	}
	em.OnError(err)
	return result, err
}

func (c *Client) measureLatency(ctx context.Context) (*model.LatencySummary, error) {
	em := c.config.Emitter
	addr := c.latencyAddr()
	em.OnDebug(fmt.Sprintf("measuring latency against %s", addr))
	conn, err := session.Dial(ctx, addr, session.Options{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	summary, err := nter1.MeasureLatency(ctx, conn, c.config.LatencySamples)
	if err != nil {
		return &summary, err
	}
	em.OnLatency(summary)
	return &summary, nil
}
