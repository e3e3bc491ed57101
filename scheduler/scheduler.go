package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lagren/healthguard/check"
	"github.com/lagren/healthguard/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// ErrChecksFailing is returned in run-once mode when a check is down.
var ErrChecksFailing = errors.New("one or more checks are failing")

var (
	mCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthguard_scheduler_cycles_total", Help: "Completed scheduling cycles",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthguard_scheduler_errors_total", Help: "Cycles whose batch could not be fully reported",
	})
	mResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthguard_check_results_total", Help: "Check results by check name and status",
	}, []string{"check", "status"})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "healthguard_scheduler_cycle_duration_seconds", Help: "Scheduling cycle duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Runner interface {
	RunAll(ctx context.Context) []check.Result
}

type Dispatcher interface {
	Dispatch(ctx context.Context, b *report.Batch) error
}

// Scheduler runs every registered check on a fixed interval and reports each
// batch. Cycles never overlap: a slow cycle delays the next tick.
type Scheduler struct {
	runner   Runner
	reporter Dispatcher
	interval time.Duration
	once     bool
}

func New(runner Runner, reporter Dispatcher, interval time.Duration, once bool) *Scheduler {
	return &Scheduler{
		runner:   runner,
		reporter: reporter,
		interval: interval,
		once:     once,
	}
}

// Cycle runs the checks once and dispatches the resulting batch. The batch is
// returned even when dispatching fails.
func (s *Scheduler) Cycle(ctx context.Context) (*report.Batch, error) {
	start := time.Now()

	b := report.NewBatch(s.runner.RunAll(ctx))

	for _, r := range b.Results {
		mResults.WithLabelValues(r.Name, r.Status.String()).Inc()

		entry := logrus.WithFields(logrus.Fields{"batch": b.ID, "check": r.Name})
		if r.Status == check.Up {
			entry.Infof("%s ... %s", r.Name, r.Message)
		} else {
			entry.Warnf("%s ... %s %s", r.Name, r.Status, r.Message)
		}
	}

	err := s.reporter.Dispatch(ctx, b)
	if err != nil {
		mErr.Inc()
	}

	mCycles.Inc()
	elapsed := time.Since(start)
	mLoopDur.Observe(elapsed.Seconds())

	logrus.WithField("batch", b.ID).Debugf("Cycle with %d check(s) finished in %s", len(b.Results), humanize.SIWithDigits(elapsed.Seconds(), 2, "s"))

	return b, err
}

// Run executes a cycle immediately and then one per interval until ctx is done.
// In run-once mode it returns after the first cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	b, err := s.Cycle(ctx)

	if s.once {
		if check.Failing(b.Results) {
			return errors.Join(ErrChecksFailing, err)
		}
		return err
	}

	if err != nil {
		logrus.Errorf("Could not report batch %s: %s", b.ID, err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if b, err := s.Cycle(ctx); err != nil {
				logrus.Errorf("Could not report batch %s: %s", b.ID, err)
			}
		}
	}
}
