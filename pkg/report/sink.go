package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/metrics"
)

// Sink publishes run summaries somewhere.
type Sink interface {
	// Name identifies the sink in metrics and logs.
	Name() string

	// Publish delivers one summary.
	Publish(ctx context.Context, s Summary) error
}

// Format selects a WriterSink's output.
type Format int

const (
	// FormatText renders the lipgloss report.
	FormatText Format = iota
	// FormatJSON writes the summary as indented JSON.
	FormatJSON
)

// WriterSink renders summaries to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
}

// NewWriterSink creates a sink writing to w in the given format.
func NewWriterSink(w io.Writer, format Format) *WriterSink {
	return &WriterSink{w: w, format: format}
}

func (s *WriterSink) Name() string {
	if s.format == FormatJSON {
		return "writer-json"
	}
	return "writer"
}

// Publish writes sum to the underlying writer.
func (s *WriterSink) Publish(_ context.Context, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format == FormatJSON {
		enc := json.NewEncoder(s.w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	return Render(s.w, sum)
}

// Publisher fans a summary out to several sinks and counts the outcomes.
type Publisher struct {
	sinks   []Sink
	metrics *metrics.Registry
}

// NewPublisher creates a Publisher. registry may be nil.
func NewPublisher(registry *metrics.Registry, sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, metrics: registry}
}

// Publish delivers sum to every sink, continuing past failures. The
// returned error joins every sink's error.
func (p *Publisher) Publish(ctx context.Context, sum Summary) error {
	var errs []error
	for _, sink := range p.sinks {
		outcome := "success"
		if err := sink.Publish(ctx, sum); err != nil {
			outcome = "error"
			errs = append(errs, sferrors.NewOperationError("report", "Publish", err).WithContext(sink.Name()))
		}
		if p.metrics != nil {
			p.metrics.ReportsPublished.WithLabelValues(sink.Name(), outcome).Inc()
		}
	}
	return errors.Join(errs...)
}
