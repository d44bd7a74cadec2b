package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/orderdesk/sheetsync/internal/retry"
)

// WriteResult reports what a write pass actually landed.
type WriteResult struct {
	Updated  int
	Appended int
	// Complete is false when one or more batches failed after retries.
	Complete bool
}

// WriterOptions tune batched writes.
type WriterOptions struct {
	// UpdateBatchSize bounds the row updates per request. Default 200.
	UpdateBatchSize int
	// AppendBatchSize bounds the rows per append request. Default 200.
	AppendBatchSize int
	// FormatBatchSize bounds the format operations per pass before a pause.
	// Default 5.
	FormatBatchSize int
	// BatchDelay is a politeness pause between batches. Default 1s.
	BatchDelay time.Duration
	Retry      retry.Policy
	Logger     *slog.Logger
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.UpdateBatchSize <= 0 {
		o.UpdateBatchSize = 200
	}
	if o.AppendBatchSize <= 0 {
		o.AppendBatchSize = 200
	}
	if o.FormatBatchSize <= 0 {
		o.FormatBatchSize = 5
	}
	if o.BatchDelay == 0 {
		o.BatchDelay = time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Exponential(5*time.Second, 40*time.Second),
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Writer applies reconciliation plans in bounded batches. It caches each
// table's capacity so repeated ensure calls inside one run issue at most one
// grow per table.
type Writer struct {
	client   TableClient
	opts     WriterOptions
	capacity map[string]int
}

func NewWriter(client TableClient, opts WriterOptions) *Writer {
	return &Writer{
		client:   client,
		opts:     opts.withDefaults(),
		capacity: make(map[string]int),
	}
}

// Apply executes a plan: updates first, then appends. A failed batch is
// logged and skipped; the remaining batches still run, and the result comes
// back with Complete=false.
func (w *Writer) Apply(ctx context.Context, tableID string, plan Plan) (WriteResult, error) {
	result := WriteResult{Complete: true}

	updated, updatesOK, err := w.applyUpdates(ctx, tableID, plan.Updates)
	result.Updated = updated
	if err != nil {
		result.Complete = false
		return result, err
	}
	if !updatesOK {
		result.Complete = false
	}

	appended, appendsOK, err := w.applyAppends(ctx, tableID, plan.NextAppendRow, plan.Appends)
	result.Appended = appended
	if err != nil {
		result.Complete = false
		return result, err
	}
	if !appendsOK {
		result.Complete = false
	}
	return result, nil
}

func (w *Writer) applyUpdates(ctx context.Context, tableID string, updates map[int][]string) (int, bool, error) {
	if len(updates) == 0 {
		return 0, true, nil
	}
	rowNums := make([]int, 0, len(updates))
	for rowNum := range updates {
		rowNums = append(rowNums, rowNum)
	}
	sort.Ints(rowNums)

	applied := 0
	complete := true
	for start := 0; start < len(rowNums); start += w.opts.UpdateBatchSize {
		end := start + w.opts.UpdateBatchSize
		if end > len(rowNums) {
			end = len(rowNums)
		}
		batch := make(map[int][]string, end-start)
		for _, rowNum := range rowNums[start:end] {
			batch[rowNum] = updates[rowNum]
		}
		err := w.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return w.client.UpdateRows(ctx, tableID, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return applied, false, ctx.Err()
			}
			w.opts.Logger.Error("update batch failed, continuing",
				"table", tableID, "rows", len(batch), "error", err)
			complete = false
		} else {
			applied += len(batch)
		}
		if end < len(rowNums) {
			if err := retry.Sleep(ctx, w.opts.BatchDelay); err != nil {
				return applied, complete, err
			}
		}
	}
	return applied, complete, nil
}

func (w *Writer) applyAppends(ctx context.Context, tableID string, startRow int, rows [][]string) (int, bool, error) {
	if len(rows) == 0 {
		return 0, true, nil
	}
	if err := w.ensureCapacity(ctx, tableID, startRow+len(rows)-1); err != nil {
		return 0, false, fmt.Errorf("grow table %s: %w", tableID, err)
	}

	appended := 0
	complete := true
	for start := 0; start < len(rows); start += w.opts.AppendBatchSize {
		end := start + w.opts.AppendBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		batchStartRow := startRow + start
		err := w.opts.Retry.Do(ctx, func(ctx context.Context) error {
			return w.client.AppendRows(ctx, tableID, batchStartRow, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return appended, false, ctx.Err()
			}
			w.opts.Logger.Error("append batch failed, continuing",
				"table", tableID, "startRow", batchStartRow, "rows", len(batch), "error", err)
			complete = false
		} else {
			appended += len(batch)
		}
		if end < len(rows) {
			if err := retry.Sleep(ctx, w.opts.BatchDelay); err != nil {
				return appended, complete, err
			}
		}
	}
	return appended, complete, nil
}

// ensureCapacity makes the table hold at least needRows rows, reading the
// declared capacity once per table and remembering the outcome of any grow.
func (w *Writer) ensureCapacity(ctx context.Context, tableID string, needRows int) error {
	current, ok := w.capacity[tableID]
	if !ok {
		err := w.opts.Retry.Do(ctx, func(ctx context.Context) error {
			n, capErr := w.client.Capacity(ctx, tableID)
			if capErr != nil {
				return capErr
			}
			current = n
			return nil
		})
		if err != nil {
			return err
		}
		w.capacity[tableID] = current
	}
	if needRows <= current {
		return nil
	}
	err := w.opts.Retry.Do(ctx, func(ctx context.Context) error {
		return w.client.GrowCapacity(ctx, tableID, needRows)
	})
	if err != nil {
		return err
	}
	w.capacity[tableID] = needRows
	return nil
}

// ApplyFormats formats the given columns over the given row ranges. Format
// failures are cosmetic: they are logged and never fail the write pass.
func (w *Writer) ApplyFormats(ctx context.Context, tableID string, ranges []RowRange, formats []ColumnFormat) {
	applied := 0
	for _, rng := range ranges {
		for _, format := range formats {
			err := w.opts.Retry.Do(ctx, func(ctx context.Context) error {
				return w.client.ApplyColumnFormat(ctx, tableID, rng, format.Column, format.Kind)
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.opts.Logger.Warn("column format failed",
					"table", tableID, "column", format.Column, "error", err)
				continue
			}
			applied++
			if applied%w.opts.FormatBatchSize == 0 {
				if err := retry.Sleep(ctx, w.opts.BatchDelay); err != nil {
					return
				}
			}
		}
	}
}
