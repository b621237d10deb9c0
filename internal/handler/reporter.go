package handler

import (
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/m-lab/nter/internal/metrics"
	"github.com/m-lab/nter/pkg/nter1/model"
	"github.com/m-lab/nter/pkg/nter1/spec"
)

// logReporter logs the receiver's interval samples and run summaries and
// updates the server metrics.
type logReporter struct {
	uuid string
	unit spec.Unit
}

func (r *logReporter) OnInterval(s model.IntervalSample) {
	log.Debug("interval", "uuid", r.uuid, "seq", s.Seq,
		"bytes", s.Bytes, string(r.unit), r.format(s.BitsPerSecond))
}

func (r *logReporter) OnRun(s model.RunSummary) {
	metrics.RunsCompleted.WithLabelValues(strconv.FormatBool(s.Complete)).Inc()
	metrics.BytesReceived.Add(float64(s.Bytes))
	if s.Complete {
		metrics.RunThroughput.Observe(spec.Mbps.Convert(s.BitsPerSecond))
	}
	log.Info("run", "uuid", r.uuid, "seq", s.Seq, "bytes", s.Bytes,
		"elapsed", s.Elapsed, string(r.unit), r.format(s.BitsPerSecond),
		"complete", s.Complete)
}

func (r *logReporter) format(bps float64) string {
	return strconv.FormatFloat(r.unit.Convert(bps), 'f', 3, 64)
}
