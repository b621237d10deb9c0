// Package handler implements the server side of nter1 connections.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/nter/internal/measurer"
	"github.com/m-lab/nter/internal/metrics"
	"github.com/m-lab/nter/internal/netx"
	"github.com/m-lab/nter/internal/session"
	"github.com/m-lab/nter/pkg/nter1"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

// Config is the configuration of a Handler.
type Config struct {
	// BufferSize is the receiver's read buffer size.
	BufferSize int
	// ReportInterval is the receiver's interval sampling cadence. Zero means
	// one interval per run.
	ReportInterval time.Duration
	// DetectSplitMarker enables recognition of end markers split across
	// reads.
	DetectSplitMarker bool
	// CongestionControl is set on every accepted socket when not empty.
	CongestionControl string
	// Unit is the unit used when logging throughput.
	Unit spec.Unit
}

// Handler runs the server behavior of each accepted connection and keeps
// its result in a Registry.
type Handler struct {
	config   Config
	registry *Registry
}

// New returns a new Handler storing results into registry.
func New(config Config, registry *Registry) *Handler {
	if config.BufferSize <= 0 {
		config.BufferSize = spec.DefaultReceiveBufferSize
	}
	if config.Unit == "" {
		config.Unit = spec.Gbps
	}
	return &Handler{
		config:   config,
		registry: registry,
	}
}

// ForMode returns the session.Handler implementing mode.
func (h *Handler) ForMode(mode spec.Mode) session.Handler {
	if mode == spec.ModeEcho {
		return session.HandlerFunc(h.Echo)
	}
	return session.HandlerFunc(h.Throughput)
}

// Throughput counts the bytes sent by the client until it disconnects,
// splitting them into runs at each end marker. Kernel snapshots are taken
// while the connection is open.
func (h *Handler) Throughput(ctx context.Context, conn *netx.Conn) {
	result := h.start(conn, spec.ModeThroughput)

	mctx, cancel := context.WithCancel(ctx)
	measurements := collect(measurer.New().Start(mctx, conn))

	r := &nter1.Receiver{
		BufferSize:        h.config.BufferSize,
		ReportInterval:    h.config.ReportInterval,
		DetectSplitMarker: h.config.DetectSplitMarker,
		Reporter:          &logReporter{uuid: result.UUID, unit: h.config.Unit},
	}
	runs, err := r.Handle(ctx, conn)
	cancel()

	result.Runs = runs
	for _, run := range runs {
		result.TotalBytes += run.Bytes
	}
	result.Measurements = <-measurements
	h.finish(result, err)
}

// Echo writes back every byte sent by the client.
func (h *Handler) Echo(ctx context.Context, conn *netx.Conn) {
	result := h.start(conn, spec.ModeEcho)
	count, err := nter1.Echo(ctx, conn)
	metrics.EchoRoundTrips.Add(float64(count))
	result.RoundTrips = count
	h.finish(result, err)
}

func (h *Handler) start(conn *netx.Conn, mode spec.Mode) *model.ConnectionResult {
	metrics.ConnectionsAccepted.WithLabelValues(string(mode)).Inc()
	metrics.ActiveConnections.WithLabelValues(string(mode)).Inc()

	session.SetCC(conn, h.config.CongestionControl)
	result := &model.ConnectionResult{
		UUID:      conn.UUID(),
		Mode:      string(mode),
		Client:    conn.RemoteAddr().String(),
		Server:    conn.LocalAddr().String(),
		StartTime: conn.AcceptTime(),
	}
	if cc, err := conn.CC(); err == nil {
		result.CC = cc
	}
	log.Info("connection started", "uuid", result.UUID, "mode", mode,
		"client", result.Client, "cc", result.CC)
	return result
}

func (h *Handler) finish(result *model.ConnectionResult, err error) {
	result.EndTime = time.Now()
	metrics.ActiveConnections.WithLabelValues(result.Mode).Dec()

	outcome := "ok"
	switch {
	case errors.Is(err, nter1.ErrCancelled):
		outcome = "cancelled"
	case !nter1.IsClean(err):
		outcome = "error"
		result.Error = err.Error()
	}
	metrics.ConnectionResults.WithLabelValues(result.Mode, outcome).Inc()

	elapsed := result.EndTime.Sub(result.StartTime)
	if outcome == "error" {
		// Print what was received before the failure.
		log.Warn("connection failed", "uuid", result.UUID,
			"client", result.Client, "runs", len(result.Runs),
			"bytes", result.TotalBytes, "round_trips", result.RoundTrips,
			"elapsed", elapsed, "err", err)
	} else {
		log.Info("connection complete", "uuid", result.UUID,
			"client", result.Client, "runs", len(result.Runs),
			"bytes", result.TotalBytes, "round_trips", result.RoundTrips,
			"elapsed", elapsed, "result", outcome)
	}
	if h.registry != nil {
		h.registry.Store(result)
	}
}

// collect accumulates measurements until ch is closed, then sends them over
// the returned channel.
func collect(ch <-chan model.Measurement) <-chan []model.Measurement {
	out := make(chan []model.Measurement, 1)
	go func() {
		var all []model.Measurement
		for m := range ch {
			all = append(all, m)
		}
		out <- all
	}()
	return out
}

// Result returns the result for a given connection UUID. Possible status
// codes are:
// - 400 if the request does not contain a uuid
// - 404 if the uuid is not found in the registry
// - 500 if the result JSON cannot be marshalled
func (h *Handler) Result(rw http.ResponseWriter, req *http.Request) {
	uuid := req.URL.Query().Get("uuid")
	if uuid == "" {
		log.Info("Received request without uuid", "source", req.RemoteAddr)
		rw.Header().Set("Connection", "Close")
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	var result *model.ConnectionResult
	if h.registry != nil {
		result = h.registry.Get(uuid)
	}
	if result == nil {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	b, err := json.Marshal(result)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, err = rw.Write(b)
	if err != nil {
		log.Debug("failed to write result", "uuid", uuid, "err", err)
	}
}

// Results returns every result currently in the registry, without kernel
// snapshots, as a JSON array.
func (h *Handler) Results(rw http.ResponseWriter, req *http.Request) {
	summaries := []model.ConnectionResult{}
	if h.registry != nil {
		for _, r := range h.registry.All() {
			s := *r
			s.Measurements = nil
			summaries = append(summaries, s)
		}
	}
	b, err := json.Marshal(summaries)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, err = rw.Write(b)
	if err != nil {
		log.Debug("failed to write results", "err", err)
	}
}
