package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/supertypeai/sectors-corporate-actions/internal/checkpoint"
	"github.com/supertypeai/sectors-corporate-actions/internal/dlq"
	"github.com/supertypeai/sectors-corporate-actions/internal/logging"
	"github.com/supertypeai/sectors-corporate-actions/internal/manual"
	"github.com/supertypeai/sectors-corporate-actions/internal/metrics"
	"github.com/supertypeai/sectors-corporate-actions/internal/models"
	"github.com/supertypeai/sectors-corporate-actions/internal/normalizer"
	"github.com/supertypeai/sectors-corporate-actions/internal/parser"
	"github.com/supertypeai/sectors-corporate-actions/internal/reconciler"
	"github.com/supertypeai/sectors-corporate-actions/internal/upsert"
)

// typeRun holds the state of one action type's pipeline.
type typeRun struct {
	o       *Orchestrator
	runID   string
	at      models.ActionType
	ts      *TypeSummary
	parser  parser.Parser
	norm    normalizer.Normalizer
	cutoff  *models.Date
	logger  *logging.Logger
	partial bool
	// seen holds the identity keys already taken this run, in page order.
	seen map[models.IdentityKey]bool
}

func (o *Orchestrator) runType(ctx context.Context, runID string, ts *TypeSummary) {
	at := ts.ActionType
	ctx = logging.ContextWithActionType(ctx, string(at))
	ts.StartedAt = o.deps.Now().UTC()
	defer func() { ts.Duration = o.deps.Now().UTC().Sub(ts.StartedAt) }()

	fail := func(err error) {
		ts.Status = StatusFailed
		ts.Error = err.Error()
		o.deps.Logger.ErrorContext(ctx, "Action type failed", logging.Error(err))
	}

	if !o.deps.Source.Supports(at) {
		fail(fmt.Errorf("no source view configured for %s", at))
		return
	}
	p, err := o.deps.Parsers.For(at)
	if err != nil {
		fail(err)
		return
	}
	n, err := o.deps.Normalizers.For(at)
	if err != nil {
		fail(err)
		return
	}

	r := &typeRun{
		o:      o,
		runID:  runID,
		at:     at,
		ts:     ts,
		parser: p,
		norm:   n,
		cutoff: o.cutoff(at),
		logger: o.deps.Logger,
		seen:   make(map[models.IdentityKey]bool),
	}

	scraped, fetchErr := r.scrape(ctx)
	if ts.PagesFetched == 0 {
		if fetchErr == nil {
			fetchErr = errors.New("no pages fetched")
		}
		fail(fetchErr)
		return
	}
	if fetchErr != nil {
		r.partial = true
		ts.Error = fetchErr.Error()
		r.logger.WarnContext(ctx, "Pagination stopped early", logging.Error(fetchErr))
	}

	manualOK := true
	if at.IsException() {
		manualOK = r.reconcileAndStore(ctx, scraped)
	}

	if ctx.Err() != nil {
		r.partial = true
		if ts.Error == "" {
			ts.Error = ctx.Err().Error()
		}
	}

	ts.Status = StatusSuccess
	if r.partial {
		ts.Status = StatusPartial
	}

	if ts.Status == StatusSuccess && at.IsException() && manualOK {
		cp := checkpoint.Checkpoint{RunID: runID, CompletedAt: ts.StartedAt}
		if err := o.deps.Checkpoints.Save(ctx, at, cp); err != nil {
			r.logger.WarnContext(ctx, "Failed to save checkpoint", logging.Error(err))
		}
	}

	r.logger.InfoContext(ctx, "Action type finished",
		"status", string(ts.Status),
		"pages_fetched", ts.PagesFetched,
		"rows_parsed", ts.RowsParsed,
		"rows_rejected", ts.RowsRejected,
		"inserted", ts.Inserted,
		"updated", ts.Updated,
		"unchanged", ts.Unchanged)
}

// cutoff is the oldest announcement date worth ingesting, or nil for no limit.
func (o *Orchestrator) cutoff(at models.ActionType) *models.Date {
	if o.cfg.Cutoff != nil {
		d := *o.cfg.Cutoff
		return &d
	}
	days := o.cfg.LookbackDays(at)
	if days <= 0 {
		return nil
	}
	d := models.DateOf(o.deps.Now()).AddDays(-days)
	return &d
}

// scrape walks every page. Records of ordinary types are upserted page by page, keeping the
// first record of each identity key; records of reconciled types are returned for
// reconciliation. The error is the fetch failure that
// stopped pagination, if any.
func (r *typeRun) scrape(ctx context.Context) ([]*models.Record, error) {
	pages := r.o.deps.Source.Pages(r.at)
	defer pages.Stop()

	var collected []*models.Record
	for pages.Next(ctx) {
		page := pages.Page()
		r.ts.PagesFetched++
		metrics.PagesFetched.WithLabelValues(string(r.at)).Inc()

		records, last := r.processPage(ctx, page)
		if r.at.IsException() {
			collected = append(collected, records...)
		} else {
			r.store(ctx, r.firstSeen(ctx, records))
		}

		if r.cutoff != nil && last != nil && last.AnnouncementDate.Before(*r.cutoff) {
			r.logger.DebugContext(ctx, "Cutoff reached", logging.Page(page.Number), "cutoff", r.cutoff.String())
			pages.Stop()
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return collected, pages.Err()
}

// processPage parses and normalizes one page. It returns the records at or after the cutoff
// and the last valid record of the page.
func (r *typeRun) processPage(ctx context.Context, page *models.RawPage) ([]*models.Record, *models.Record) {
	result, err := r.parser.Parse(page)
	if err != nil {
		r.ts.PagesUnparseable++
		r.partial = true
		metrics.RowsRejected.WithLabelValues(string(r.at), "page").Inc()
		r.logger.WarnContext(ctx, "Page unparseable", logging.Page(page.Number), logging.Error(err))
		r.deadLetter(ctx, dlq.Entry{Kind: dlq.KindPage, Page: page.Number, SourceRef: page.URL, Error: err.Error()})
		return nil, nil
	}

	r.ts.RowsParsed += result.Seen()
	metrics.RowsParsed.WithLabelValues(string(r.at)).Add(float64(result.Seen()))

	for _, rej := range result.Rejected {
		r.reject(ctx, "parse", dlq.Entry{Kind: dlq.KindRow, Page: page.Number, SourceRef: rej.SourceRef, Error: rej.Error(), Raw: rej.Raw()})
	}

	var (
		records []*models.Record
		last    *models.Record
	)
	for _, row := range result.Rows {
		rec, err := r.norm.Normalize(row, models.SourceScraped)
		if err != nil {
			r.reject(ctx, "normalize", dlq.Entry{Kind: dlq.KindRecord, Page: page.Number, SourceRef: row.SourceRef, Error: err.Error(), Raw: row.Fields})
			continue
		}
		last = rec
		if r.cutoff != nil && rec.AnnouncementDate.Before(*r.cutoff) {
			r.ts.RowsBeforeCutoff++
			continue
		}
		records = append(records, rec)
	}
	return records, last
}

// firstSeen drops records whose identity key an earlier record of the run already claimed.
func (r *typeRun) firstSeen(ctx context.Context, records []*models.Record) []*models.Record {
	kept := records[:0]
	for _, rec := range records {
		key := rec.IdentityKey()
		if r.seen[key] {
			r.ts.Duplicates++
			r.logger.DebugContext(ctx, "Duplicate record dropped", logging.IdentityKey(key.String()))
			continue
		}
		r.seen[key] = true
		kept = append(kept, rec)
	}
	return kept
}

func (r *typeRun) reject(ctx context.Context, stage string, entry dlq.Entry) {
	r.ts.RowsRejected++
	metrics.RowsRejected.WithLabelValues(string(r.at), stage).Inc()
	r.logger.DebugContext(ctx, "Row rejected", "stage", stage, logging.Page(entry.Page), logging.Error(errors.New(entry.Error)))
	r.deadLetter(ctx, entry)
}

func (r *typeRun) deadLetter(ctx context.Context, entry dlq.Entry) {
	entry.RunID = r.runID
	entry.ActionType = r.at
	if err := r.o.deps.DLQ.Write(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "Failed to write dead letter", logging.Error(err))
	}
}

// store upserts records one at a time. A storage failure affects only its record.
func (r *typeRun) store(ctx context.Context, records []*models.Record) {
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		result, stored, err := r.o.deps.Upserter.Upsert(ctx, rec)
		if err != nil {
			r.ts.StorageErrors++
			r.partial = true
			r.logger.WarnContext(ctx, "Upsert failed",
				logging.IdentityKey(rec.IdentityKey().String()),
				logging.Error(err))
			ref := ""
			if rec.SourceRef != nil {
				ref = *rec.SourceRef
			}
			r.deadLetter(ctx, dlq.Entry{Kind: dlq.KindStorage, SourceRef: ref, Error: err.Error()})
			continue
		}

		switch result {
		case upsert.Inserted:
			r.ts.Inserted++
		case upsert.Updated:
			r.ts.Updated++
		case upsert.Unchanged:
			r.ts.Unchanged++
		}
		if stored != nil && r.o.deps.Mirror != nil {
			if err := r.o.deps.Mirror.Index(ctx, stored); err != nil {
				r.logger.WarnContext(ctx, "Failed to mirror record", logging.Error(err))
			}
		}
	}
}

// reconcileAndStore merges manual records into the scraped set and stores the result.
// It reports whether manual records were available.
func (r *typeRun) reconcileAndStore(ctx context.Context, scraped []*models.Record) bool {
	var since *time.Time
	cp, err := r.o.deps.Checkpoints.Load(ctx, r.at)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to load checkpoint, reading all manual records", logging.Error(err))
	} else if cp != nil {
		since = &cp.CompletedAt
	}

	var manualRecords []*models.Record
	available := true
	batch, err := r.o.deps.Manual.ListRecords(ctx, r.at, since)
	if err != nil && ctx.Err() != nil {
		r.partial = true
		r.logger.WarnContext(ctx, "Run context ended before manual records were read", logging.Error(err))
		return false
	}
	if err != nil {
		available = false
		r.ts.flag(FlagManualUnavailable)
		metrics.ManualUnavailable.WithLabelValues(string(r.at)).Inc()
		var unavailable *manual.ManualStoreUnavailableError
		if !errors.As(err, &unavailable) {
			err = &manual.ManualStoreUnavailableError{ActionType: r.at, Err: err}
		}
		r.logger.WarnContext(ctx, "Manual store unavailable, using scraped records only", logging.Error(err))
	} else {
		manualRecords = batch.Records
		r.ts.ManualRejected += len(batch.Rejected)
		for _, rej := range batch.Rejected {
			entry := dlq.Entry{Kind: dlq.KindRecord, Error: rej.Error()}
			var nerr *normalizer.NormalizationError
			if errors.As(rej, &nerr) {
				entry.Raw = nerr.Raw.Fields
				entry.SourceRef = nerr.Raw.SourceRef
			}
			r.deadLetter(ctx, entry)
		}
	}

	out, err := reconciler.Reconcile(r.at, scraped, manualRecords)
	if err != nil {
		r.partial = true
		r.ts.Error = err.Error()
		r.logger.ErrorContext(ctx, "Reconciliation failed", logging.Error(err))
		return available
	}
	r.ts.Superseded += out.Superseded
	r.ts.Duplicates += out.Duplicates
	metrics.Superseded.WithLabelValues(string(r.at)).Add(float64(out.Superseded))

	r.store(ctx, out.Records)
	return available
}
