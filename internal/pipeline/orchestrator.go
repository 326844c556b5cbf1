// Package pipeline runs the fetch, parse, normalize, reconcile and upsert stages for each
// requested action type and reports the outcome as a RunSummary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/supertypeai/sectors-corporate-actions/internal/checkpoint"
	"github.com/supertypeai/sectors-corporate-actions/internal/dlq"
	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/manual"
	"github.com/supertypeai/sectors-corporate-actions/internal/metrics"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
	"github.com/supertypeai/sectors-corporate-actions/internal/parser"
	"github.com/supertypeai/sectors-corporate-actions/internal/source"
	"github.com/supertypeai/sectors-corporate-actions/internal/upsert"
)

// Source yields the pages of one action type.
type Source interface {
	Supports(at models.ActionType) bool
	Pages(at models.ActionType) *source.Paginator
}

// Mirror receives every inserted or updated record.
type Mirror interface {
	Index(ctx context.Context, rec *models.Record) error
}

// Notifier is told about every finished run.
type Notifier interface {
	RunCompleted(ctx context.Context, summary *RunSummary) error
}

// Config tunes a run.
type Config struct {
	// Concurrency caps the number of action types processed at once.
	Concurrency int
	// RunTimeout bounds the whole run. Zero disables it.
	RunTimeout time.Duration
	// LookbackDays returns the cutoff window of an action type. Zero disables the cutoff.
	LookbackDays func(at models.ActionType) int
	// Cutoff, when set, is used for every type instead of LookbackDays.
	Cutoff *models.Date
}

// Deps are the collaborators of an Orchestrator. Source, Parsers, Normalizers and Upserter
// are required; the rest default to no-ops.
type Deps struct {
	Source      Source
	Parsers     *parser.Registry
	Normalizers *normalizer.Registry
	Upserter    *upsert.Upserter
	Manual      manual.Store
	Checkpoints checkpoint.Store
	DLQ         dlq.Writer
	Mirror      Mirror
	Notifier    Notifier
	Logger      *logging.Logger
	Now         func() time.Time
}

type Orchestrator struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case deps.Parsers == nil:
		return nil, errors.New("pipeline: parser registry is required")
	case deps.Normalizers == nil:
		return nil, errors.New("pipeline: normalizer registry is required")
	case deps.Upserter == nil:
		return nil, errors.New("pipeline: upserter is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LookbackDays == nil {
		cfg.LookbackDays = func(models.ActionType) int { return 0 }
	}
	if deps.Manual == nil {
		deps.Manual = manual.Unavailable{}
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = checkpoint.NoOpStore{}
	}
	if deps.DLQ == nil {
		deps.DLQ = dlq.NoOp{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps}, nil
}

// Run processes every type in types (all types when empty). Types run concurrently and
// fail independently; pages within a type are handled in order.
func (o *Orchestrator) Run(ctx context.Context, types []models.ActionType) *RunSummary {
	started := o.deps.Now().UTC()
	summary := &RunSummary{
		StartedAt: started,
		Types:     make(map[models.ActionType]*TypeSummary, len(types)),
	}

	runID, err := uuid.NewV7()
	if err != nil {
		summary.Status, summary.Error = StatusFailed, fmt.Sprintf("generate run id: %v", err)
		return summary
	}
	summary.RunID = runID.String()
	ctx = logging.ContextWithRunID(ctx, summary.RunID)

	if len(types) == 0 {
		types = models.AllActionTypes()
	}
	for _, at := range types {
		if !at.Valid() {
			summary.Status = StatusFailed
			summary.Error = fmt.Sprintf("%v: %q", models.ErrUnknownActionType, at)
			summary.FinishedAt = o.deps.Now().UTC()
			return summary
		}
		if _, dup := summary.Types[at]; dup {
			continue
		}
		summary.Types[at] = &TypeSummary{ActionType: at}
		summary.Order = append(summary.Order, at)
	}

	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	o.deps.Logger.InfoContext(ctx, "Pipeline run started", "types", len(summary.Order))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, at := range summary.Order {
		ts := summary.Types[at]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					ts.Status = StatusFailed
					ts.Error = fmt.Sprintf("panic: %v", r)
					err = fmt.Errorf("%s pipeline panicked: %v\n%s", at, r, debug.Stack())
				}
			}()
			o.runType(ctx, summary.RunID, ts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		summary.Status = StatusFailed
		summary.Error = err.Error()
		o.deps.Logger.ErrorContext(ctx, "Pipeline run aborted", logging.Error(err))
	}

	summary.resolve()
	summary.FinishedAt = o.deps.Now().UTC()
	o.record(ctx, summary)
	return summary
}

func (o *Orchestrator) record(ctx context.Context, summary *RunSummary) {
	for _, ts := range summary.Ordered() {
		metrics.TypeRuns.WithLabelValues(string(ts.ActionType), string(ts.Status)).Inc()
	}
	duration := summary.FinishedAt.Sub(summary.StartedAt)
	metrics.RunDuration.Observe(duration.Seconds())
	metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))

	totals := summary.Totals()
	o.deps.Logger.InfoContext(ctx, "Pipeline run finished",
		"status", string(summary.Status),
		"inserted", totals.Inserted,
		"updated", totals.Updated,
		"rows_rejected", totals.RowsRejected,
		logging.Duration(duration))

	if o.deps.Notifier != nil {
		// The run context may already be past its deadline; publishing still gets a window.
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.deps.Notifier.RunCompleted(notifyCtx, summary); err != nil {
			o.deps.Logger.WarnContext(ctx, "Failed to publish run summary", logging.Error(err))
		}
	}
}
