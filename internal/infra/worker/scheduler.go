package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"catchup-feed/internal/domain/entity"
)

// CycleRunner is the subset of the pipeline orchestrator the scheduler
// depends on: run one complete cycle for a named cadence.
type CycleRunner interface {
	Run(ctx context.Context, cycleKind entity.CycleKind, runKind entity.PipelineRunKind) error
}

// Scheduler drives the pipeline orchestrator on the five named cadences
// (spec.md §4.2, §5 "Scheduling model"). It holds several recurring jobs,
// each firing its own cycle independently; cycles may overlap in time, but
// a given cycle kind runs at most one copy at a time
// (cron.SkipIfStillRunning gives the "per-job replace-existing" semantics).
// The scheduler's lifecycle binds to the host process: Start at boot, Stop
// at shutdown.
type Scheduler struct {
	cron    *cron.Cron
	runner  CycleRunner
	metrics *WorkerMetrics
	logger  *slog.Logger
}

// NewScheduler builds a scheduler wired to run every named cadence in cfg
// against runner. timezone selects the cron engine's clock (matches the
// legacy single-cadence worker's WORKER_TIMEZONE convention).
func NewScheduler(cfg PipelineConfig, runner CycleRunner, metrics *WorkerMetrics, logger *slog.Logger, location *time.Location) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if location == nil {
		location = time.UTC
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(location), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		runner:  runner,
		metrics: metrics,
		logger:  logger,
	}

	s.addCadence(entity.CycleMain, cfg.MainPollInterval)
	s.addCadence(entity.CycleWeather, cfg.WeatherPollInterval)
	s.addCadence(entity.CycleDeepScrape, cfg.DeepScrapeInterval)
	s.addCadence(entity.CycleSocial, cfg.SocialPollInterval)
	s.addCadence(entity.CycleTips, cfg.TipPollInterval)

	return s
}

// addCadence registers one recurring job for cycleKind at the given
// interval. Intervals below a minute are rejected by cron's @every parser,
// so callers must keep cadences at minute granularity or coarser.
func (s *Scheduler) addCadence(cycleKind entity.CycleKind, interval time.Duration) {
	spec := "@every " + interval.String()
	_, err := s.cron.AddFunc(spec, func() { s.runCycle(cycleKind) })
	if err != nil {
		s.logger.Error("failed to register cadence", slog.String("cycle", string(cycleKind)), slog.Any("error", err))
		return
	}
	s.logger.Info("cadence registered", slog.String("cycle", string(cycleKind)), slog.Duration("interval", interval))
}

// runCycle executes one cycle and records its outcome. A cycle-level
// failure is logged and swallowed here: the pipeline orchestrator has
// already marked the run row failed (spec.md §7), and the scheduler's job
// is only to ensure the next cadence still fires (spec.md §5
// "Cancellation / timeouts").
func (s *Scheduler) runCycle(cycleKind entity.CycleKind) {
	start := time.Now()
	ctx := context.Background()

	err := s.runner.Run(ctx, cycleKind, entity.RunKindScheduled)

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordJobDuration(duration.Seconds())
	}

	if err != nil {
		s.logger.Error("pipeline cycle failed", slog.String("cycle", string(cycleKind)), slog.Any("error", err), slog.Duration("duration", duration))
		if s.metrics != nil {
			s.metrics.RecordJobRun("failure")
		}
		return
	}

	s.logger.Info("pipeline cycle completed", slog.String("cycle", string(cycleKind)), slog.Duration("duration", duration))
	if s.metrics != nil {
		s.metrics.RecordJobRun("success")
		s.metrics.RecordLastSuccess()
	}
}

// Start begins dispatching every registered cadence. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop drains in-flight cycles and stops dispatching new ones, blocking
// until the context passed to Stop's internal wait is done or every running
// job has returned (spec.md §5 "stopped gracefully at shutdown").
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow triggers an out-of-band cycle immediately (manual trigger), bypassing
// the cadence schedule. Used by the admin surface's "run now" operation.
func (s *Scheduler) RunNow(ctx context.Context, cycleKind entity.CycleKind) error {
	return s.runner.Run(ctx, cycleKind, entity.RunKindManual)
}
