package workerpresentation

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/cafeshop/internal/application"
	apporder "github.com/Zhima-Mochi/cafeshop/internal/application/order"
	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/Zhima-Mochi/cafeshop/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultSweepInterval = 10 * time.Minute

type Sweeper = application.UseCase[apporder.SweepInput, *apporder.SweepResult]

// SweepScheduler triggers the delivery promotion sweep on a fixed interval.
type SweepScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      observability.Logger
	tel      observability.Observability
}

func NewSweepScheduler(sweeper Sweeper, interval time.Duration, tel observability.Observability) *SweepScheduler {
	if tel == nil {
		tel = observability.Nop()
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      tel.Logger().With(observability.F("component", "sweep_scheduler")),
		tel:      tel,
	}
}

// Run blocks until ctx is done, sweeping once per interval.
func (s *SweepScheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("sweep_scheduler_started", observability.F("interval", s.interval.String()))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweep_scheduler_stopped")
			return nil
		case <-t.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("sweep_failed", observability.Err(err))
			}
		}
	}
}

// RunOnce executes a single sweep under a fresh run id.
func (s *SweepScheduler) RunOnce(ctx context.Context) (*apporder.SweepResult, error) {
	runID := uuid.NewString()
	ctx, span := s.tel.Tracer().Start(ctx, "Job.DeliverySweep", attribute.String("run_id", runID))
	defer span.End()
	ctx = WithJobContext(ctx, s.log, runID, map[string]string{"job": "delivery_sweep"})
	res, err := s.sweeper.Execute(ctx, apporder.SweepInput{RunID: runID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.Int("promoted", res.Promoted))
	logctx.FromOr(ctx, s.log).Debug("sweep_done",
		observability.F("promoted", res.Promoted),
		observability.F("conflicts", res.Conflicts),
	)
	return res, nil
}
