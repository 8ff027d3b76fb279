// Package pipeline wires the per-cycle stage table (spec.md §9: "model as a
// static stage table plus explicit conditional-router entries") into a
// single orchestrated run: collect -> dedup+classify -> breaking-detect ->
// enrich -> quality-gate -> emit -> archive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/infra/store"
	"catchup-feed/internal/observability/logging"
	"catchup-feed/internal/observability/tracing"
	"catchup-feed/internal/usecase/breaking"
	"catchup-feed/internal/usecase/collect"
	"catchup-feed/internal/usecase/dedup"
	"catchup-feed/internal/usecase/emit"
	"catchup-feed/internal/usecase/enrich"
	"catchup-feed/internal/usecase/qualitygate"
	"catchup-feed/internal/usecase/reliability"
)

// virtualTipSourceID is the synthesized source used when a tips cycle finds
// no configured tip source rows (spec.md §4.2 "synthesizes a single virtual
// source so the tip collector still runs").
const virtualTipSourceID = "virtual-tip-source"

// Pipeline orchestrates one cycle at a time across the wired stages. It
// holds no per-run state itself; Run builds a fresh entity.PipelineState and
// emit.Emitter for every invocation.
type Pipeline struct {
	store       store.Store
	registry    *collect.Registry
	dedupStage  *dedup.Stage
	breaking    *breaking.Detector
	enrichStage *enrich.Stage
	gate        *qualitygate.Gate
	scorer      *reliability.Scorer
	thresholds  *reliability.ThresholdCache
	logger      *slog.Logger
}

// New wires every stage into an orchestrated pipeline.
func New(
	st store.Store,
	registry *collect.Registry,
	dedupStage *dedup.Stage,
	breakingDetector *breaking.Detector,
	enrichStage *enrich.Stage,
	gate *qualitygate.Gate,
	scorer *reliability.Scorer,
	thresholds *reliability.ThresholdCache,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store: st, registry: registry, dedupStage: dedupStage, breaking: breakingDetector,
		enrichStage: enrichStage, gate: gate, scorer: scorer, thresholds: thresholds, logger: logger,
	}
}

// Run executes one complete cycle for cycleKind, started with runKind
// (scheduled/manual/breaking). A stage-level failure marks the run row
// failed and returns the error; the caller (the scheduler) must not let
// this error prevent the next cadence from firing (spec.md §7
// "cycle-level failure ... exception propagates to scheduler, next cadence
// still fires").
func (p *Pipeline) Run(ctx context.Context, cycleKind entity.CycleKind, runKind entity.PipelineRunKind) (err error) {
	runID := uuid.New().String()
	state := entity.NewPipelineState(runID, runKind, cycleKind)
	logger := logging.WithFields(p.logger, map[string]interface{}{
		"run_id": runID,
		"cycle":  string(cycleKind),
		"kind":   string(runKind),
	})

	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.run."+string(cycleKind))
	span.SetAttributes(
		attribute.String("pipeline.run_id", runID),
		attribute.String("pipeline.cycle", string(cycleKind)),
		attribute.String("pipeline.kind", string(runKind)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// spec.md §4.2: refresh adaptive thresholds asynchronously at the start
	// of every cycle; never block classification on it.
	p.thresholds.RefreshAsync(ctx)

	if err := p.store.InsertRunning(ctx, entity.PipelineRunRecord{
		ID: runID, Kind: runKind, CycleKind: cycleKind,
		Status: entity.RunStatusRunning, StartedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}

	defer func() {
		if err != nil {
			if failErr := p.store.Fail(ctx, runID, err.Error()); failErr != nil {
				logger.Error("failed to mark pipeline run failed", slog.Any("error", failErr))
			}
			return
		}
		if completeErr := p.store.Complete(ctx, runID, state.Stats, state.SourceNames); completeErr != nil {
			logger.Error("failed to mark pipeline run completed", slog.Any("error", completeErr))
		}
	}()

	sources, err := p.resolveSources(ctx, cycleKind)
	if err != nil {
		return fmt.Errorf("resolve sources: %w", err)
	}
	state.SetSources(sources)

	sourcesByKind := map[entity.SourceKind][]entity.SourceFeed{}
	for _, s := range sources {
		sourcesByKind[s.Kind] = append(sourcesByKind[s.Kind], s)
	}

	raw, collectErrs := p.registry.CollectAll(ctx, sourcesByKind)
	state.Raw = raw
	state.Errors = collectErrs
	state.Stats["raw"] = int64(len(raw))
	state.Stats["collect_errors"] = int64(len(collectErrs))
	for _, ce := range collectErrs {
		logger.Warn("collector error", slog.String("source", ce.SourceName), slog.String("message", ce.Message))
	}

	if len(raw) == 0 {
		return nil // nothing survived collection; nothing to archive either
	}

	classified, classifyRejected := p.dedupStage.Run(ctx, raw)
	state.Classified = classified
	state.Rejected = classifyRejected
	state.Stats["classified"] = int64(len(classified))
	state.Stats["rejected_pre_enrich"] = int64(len(classifyRejected))

	emitter := emit.New(p.store, p.store, p.store, p.scorer, runID, p.logger)
	emitter.ArchiveClassified(ctx, classifyRejected)

	if len(classified) == 0 {
		return nil // spec.md §4.7 "After classify, if nothing survived, skip directly to archive."
	}

	p.breaking.Scan(ctx, classified)

	enriched := p.enrichStage.Run(ctx, classified)
	state.Enriched = enriched

	approved, flagged, qualityRejected := p.gate.RouteAll(enriched)
	state.Approved = approved
	state.Flagged = flagged
	state.Stats["approved"] = int64(len(approved))
	state.Stats["flagged"] = int64(len(flagged))
	state.Stats["rejected_quality"] = int64(len(qualityRejected))

	emitter.EmitApproved(ctx, approved)
	emitter.EmitFlagged(ctx, flagged)
	emitter.Archive(ctx, qualityRejected) // always invoked, even with zero rejects

	return nil
}

// resolveSources queries active sources for every source kind the cycle
// polls (spec.md §4.2), synthesizing a virtual tip source when a tips cycle
// finds none configured.
func (p *Pipeline) resolveSources(ctx context.Context, cycleKind entity.CycleKind) ([]entity.SourceFeed, error) {
	kinds, ok := entity.CycleSourceKinds[cycleKind]
	if !ok {
		return nil, fmt.Errorf("unknown cycle kind %q", cycleKind)
	}

	var sources []entity.SourceFeed
	for _, kind := range kinds {
		active, err := p.store.ListActive(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list active %s sources: %w", kind, err)
		}
		sources = append(sources, active...)
	}

	if cycleKind == entity.CycleTips && len(sources) == 0 {
		sources = append(sources, entity.SourceFeed{
			ID:              virtualTipSourceID,
			DisplayName:     "Reader Tips",
			Kind:            entity.SourceKindTip,
			Active:          true,
			ReliabilityTier: entity.TierStandard,
			PollCadence:     entity.CycleTips,
		})
	}

	return sources, nil
}
