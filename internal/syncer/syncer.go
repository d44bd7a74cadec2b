// Package syncer orchestrates a full run: extraction across accounts,
// transformation, reconciliation against the destination table, and the
// batched write, with the outcome recorded in the run history.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orderdesk/sheetsync/internal/extract"
	"github.com/orderdesk/sheetsync/internal/retry"
	"github.com/orderdesk/sheetsync/internal/runlog"
	"github.com/orderdesk/sheetsync/internal/sheet"
	"github.com/orderdesk/sheetsync/internal/source"
	"github.com/orderdesk/sheetsync/internal/transform"
)

// Run modes.
const (
	ModeIncremental = "incremental"
	ModeBackfill    = "backfill"
)

// RunRequest asks for one run.
type RunRequest struct {
	Mode string
	// Notify is recorded on the outcome for downstream notifiers.
	Notify bool
}

// RunReport is the result of a run: the persisted outcome plus the full
// transformed row set for downstream consumers.
type RunReport struct {
	Outcome runlog.Outcome
	Header  []string
	Rows    [][]string
}

// counts aggregates per-run tallies for the outcome and for logging.
type counts struct {
	fetched      int
	deduplicated int
	updated      int
	appended     int
}

func (c counts) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("fetched", c.fetched),
		slog.Int("deduplicated", c.deduplicated),
		slog.Int("updated", c.updated),
		slog.Int("appended", c.appended),
	)
}

// Options wires an orchestrator.
type Options struct {
	Accounts    []source.Account
	TableID     string
	Extractor   *extract.Extractor
	Transformer *transform.Transformer
	Reader      *sheet.Reader
	Writer      *sheet.Writer
	History     runlog.Store
	Events      Sink
	Logger      *slog.Logger

	// MaxAccountsInFlight bounds concurrent account extraction. Default 2.
	MaxAccountsInFlight int
	// AccountStartDelay staggers account starts. Default 3s; negative
	// disables.
	AccountStartDelay time.Duration
	// WindowCooldown is the pause between backfill windows of one account.
	// Default 60s; negative disables.
	WindowCooldown time.Duration
	// IncrementalDays is the trailing window for incremental runs. Default 60.
	IncrementalDays int
	// BackfillEpoch is where full-history runs start. Default 2019-01-01 UTC.
	BackfillEpoch time.Time
	// BackfillChunkMonths sizes backfill windows. Default 6.
	BackfillChunkMonths int

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxAccountsInFlight <= 0 {
		o.MaxAccountsInFlight = 2
	}
	if o.AccountStartDelay < 0 {
		o.AccountStartDelay = 0
	} else if o.AccountStartDelay == 0 {
		o.AccountStartDelay = 3 * time.Second
	}
	if o.WindowCooldown < 0 {
		o.WindowCooldown = 0
	} else if o.WindowCooldown == 0 {
		o.WindowCooldown = 60 * time.Second
	}
	if o.IncrementalDays <= 0 {
		o.IncrementalDays = 60
	}
	if o.BackfillEpoch.IsZero() {
		o.BackfillEpoch = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if o.BackfillChunkMonths <= 0 {
		o.BackfillChunkMonths = 6
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Orchestrator runs the sync state machine. Phases are strictly sequential;
// one orchestrator runs one sync at a time.
type Orchestrator struct {
	opts Options
	mu   sync.Mutex
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	opts = opts.withDefaults()
	if len(opts.Accounts) == 0 {
		return nil, errors.New("no accounts configured")
	}
	if opts.TableID == "" {
		return nil, errors.New("no destination table configured")
	}
	if opts.Extractor == nil || opts.Transformer == nil || opts.Reader == nil || opts.Writer == nil {
		return nil, errors.New("orchestrator missing components")
	}
	if opts.History == nil {
		opts.History = runlog.NewMemoryStore()
	}
	return &Orchestrator{opts: opts}, nil
}

// Run executes one sync. The outcome is recorded in the history even when
// the run fails; a non-nil error means the run ended with StatusFailed.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (RunReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mode := req.Mode
	if mode == "" {
		mode = ModeIncremental
	}
	runID := runlog.NewRunID()
	started := o.opts.Now()
	logger := o.opts.Logger.With("run", runID, "mode", mode)
	logger.Info("run started", "accounts", len(o.opts.Accounts))

	var tally counts
	partial := false

	fail := func(err error) (RunReport, error) {
		o.publish(runID, PhaseFailed, err.Error())
		report := RunReport{Outcome: o.record(logger, runlog.Outcome{
			ID:           runID,
			Mode:         mode,
			StartedAt:    started,
			FinishedAt:   o.opts.Now(),
			Fetched:      tally.fetched,
			Deduplicated: tally.deduplicated,
			Updated:      tally.updated,
			Appended:     tally.appended,
			Status:       runlog.StatusFailed,
			Notify:       req.Notify,
			Message:      err.Error(),
		})}
		logger.Error("run failed", "counts", tally, "error", err)
		return report, err
	}

	// Extract.
	o.publish(runID, PhaseExtracting, "")
	windows := o.windowsFor(mode)
	records, extractPartial, err := o.extractAll(ctx, logger, windows, &tally)
	if err != nil {
		return fail(err)
	}
	partial = partial || extractPartial

	// Transform.
	o.publish(runID, PhaseTransforming, "")
	header := o.opts.Transformer.Header()
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, o.opts.Transformer.Row(record))
	}

	// Reconcile.
	o.publish(runID, PhaseReconciling, "")
	snapshot, err := o.opts.Reader.Snapshot(ctx, o.opts.TableID)
	if err != nil {
		return fail(err)
	}
	schema, err := transform.NewSchema(snapshot.Header)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", sheet.ErrTableResolution, err))
	}
	plan := sheet.Reconcile(snapshot, rows, schema.KeyIndex(), logger)
	if !snapshot.Complete {
		// Appending against a partial snapshot could duplicate keys living
		// in an unread region. Updates are still safe; appends are not.
		logger.Warn("table snapshot incomplete, suppressing appends",
			"suppressed", len(plan.Appends))
		plan.Appends = nil
		partial = true
	}

	// Write.
	o.publish(runID, PhaseWriting, "")
	writeResult, err := o.opts.Writer.Apply(ctx, o.opts.TableID, plan)
	tally.updated = writeResult.Updated
	tally.appended = writeResult.Appended
	if err != nil {
		if ctx.Err() != nil {
			return fail(err)
		}
		logger.Warn("write pass aborted", "error", err)
		partial = true
	} else if !writeResult.Complete {
		partial = true
	}
	o.opts.Writer.ApplyFormats(ctx, o.opts.TableID, sheet.TouchedRanges(plan), sheet.ColumnFormats(snapshot.Header))

	status := runlog.StatusComplete
	if partial {
		status = runlog.StatusPartial
	}
	o.publish(runID, PhaseDone, string(status))
	outcome := o.record(logger, runlog.Outcome{
		ID:           runID,
		Mode:         mode,
		StartedAt:    started,
		FinishedAt:   o.opts.Now(),
		Fetched:      tally.fetched,
		Deduplicated: tally.deduplicated,
		Updated:      tally.updated,
		Appended:     tally.appended,
		Status:       status,
		Notify:       req.Notify,
	})
	logger.Info("run finished", "status", status, "counts", tally)
	return RunReport{Outcome: outcome, Header: header, Rows: rows}, nil
}

// History exposes the run history store.
func (o *Orchestrator) History() runlog.Store {
	return o.opts.History
}

func (o *Orchestrator) windowsFor(mode string) []source.Window {
	now := o.opts.Now().UTC()
	if mode == ModeBackfill {
		return extract.PartitionWindows(o.opts.BackfillEpoch, now, o.opts.BackfillChunkMonths)
	}
	start := now.AddDate(0, 0, -o.opts.IncrementalDays)
	return []source.Window{{Start: start, End: now}}
}

// extractAll fans extraction out across accounts with bounded concurrency,
// then merges results in account order with a run-global key dedup.
func (o *Orchestrator) extractAll(ctx context.Context, logger *slog.Logger, windows []source.Window, tally *counts) ([]source.Record, bool, error) {
	type accountResult struct {
		records    []source.Record
		fetched    int
		duplicates int
		partial    bool
	}
	results := make([]accountResult, len(o.opts.Accounts))

	sem := make(chan struct{}, o.opts.MaxAccountsInFlight)
	var wg sync.WaitGroup
	for i, account := range o.opts.Accounts {
		if i > 0 && o.opts.AccountStartDelay > 0 {
			if err := retry.Sleep(ctx, o.opts.AccountStartDelay); err != nil {
				break
			}
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, account source.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			res := &results[idx]
			for w, window := range windows {
				if w > 0 && o.opts.WindowCooldown > 0 {
					if err := retry.Sleep(ctx, o.opts.WindowCooldown); err != nil {
						res.partial = true
						return
					}
				}
				windowResult := o.opts.Extractor.Extract(ctx, account, window)
				res.records = append(res.records, windowResult.Records...)
				res.fetched += windowResult.Fetched
				res.duplicates += windowResult.Duplicates
				if windowResult.Status == extract.StatusPartial {
					res.partial = true
				}
			}
		}(i, account)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	// Merge single-threaded; windows share boundary records, so the
	// run-global tracker drops later occurrences.
	dedup := extract.NewDedupTracker()
	var merged []source.Record
	partial := false
	for _, res := range results {
		tally.fetched += res.fetched
		tally.deduplicated += res.duplicates
		partial = partial || res.partial
		for _, record := range res.records {
			if dedup.Seen(record.Key) {
				tally.deduplicated++
				continue
			}
			dedup.Mark(record.Key)
			merged = append(merged, record)
		}
	}
	logger.Info("extraction finished",
		"records", len(merged), "fetched", tally.fetched, "deduplicated", tally.deduplicated, "partial", partial)
	return merged, partial, nil
}

func (o *Orchestrator) record(logger *slog.Logger, outcome runlog.Outcome) runlog.Outcome {
	if err := o.opts.History.Append(outcome); err != nil {
		logger.Warn("recording run outcome failed", "error", err)
	}
	return outcome
}

func (o *Orchestrator) publish(runID string, phase Phase, detail string) {
	if o.opts.Events == nil {
		return
	}
	o.opts.Events.Publish(Event{RunID: runID, Phase: phase, At: o.opts.Now(), Detail: detail})
}
