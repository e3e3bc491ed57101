package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/lagren/healthguard/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var sinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "healthguard_report_sink_failures_total",
	Help: "Batches a sink failed to accept",
}, []string{"sink"})

// Sink is a destination for reported batches.
type Sink interface {
	Name() string
	Send(ctx context.Context, b *Batch) error
}

type Reporter struct {
	sinks []Sink
}

func NewReporter(sinks ...Sink) *Reporter {
	return &Reporter{sinks: sinks}
}

func (r *Reporter) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Dispatch hands the batch to every sink. A failing sink does not prevent the
// others from running; all failures are returned together.
func (r *Reporter) Dispatch(ctx context.Context, b *Batch) error {
	var errs []error

	for _, s := range r.sinks {
		if err := s.Send(ctx, b); err != nil {
			sinkFailures.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}

		logrus.WithFields(logrus.Fields{"sink": s.Name(), "batch": b.ID}).Debug("Batch delivered")
	}

	return errors.Join(errs...)
}

type recordSaver interface {
	SaveLocalRecords(ctx context.Context, records []persistence.LocalCheckRecord) error
}

// LocalSink stores one flat record per result.
type LocalSink struct {
	store recordSaver
}

func NewLocalSink(store recordSaver) *LocalSink {
	return &LocalSink{store: store}
}

func (s *LocalSink) Name() string {
	return "local"
}

func (s *LocalSink) Send(ctx context.Context, b *Batch) error {
	records := make([]persistence.LocalCheckRecord, 0, len(b.Results))
	for _, r := range b.Results {
		records = append(records, persistence.LocalCheckRecord{
			Name:    r.Name,
			Status:  int(r.Status),
			Message: r.Message,
		})
	}

	if err := s.store.SaveLocalRecords(ctx, records); err != nil {
		return fmt.Errorf("could not save local records: %w", err)
	}

	return nil
}
