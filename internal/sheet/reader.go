package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderdesk/sheetsync/internal/retry"
)

// NumberedRow is a data row bound to its absolute 1-based row number.
type NumberedRow struct {
	Num   int
	Cells []string
}

// TableSnapshot is what the reader saw: the header, the data rows that could
// be fetched, and the table's total row count (header included). Complete is
// false when one or more read batches failed and their rows are missing; row
// numbering stays absolute either way.
type TableSnapshot struct {
	Header    []string
	Rows      []NumberedRow
	TotalRows int
	Complete  bool
}

// ReaderOptions tune snapshot reads.
type ReaderOptions struct {
	// BatchThreshold is the data-row count above which reads are split into
	// sequential batches. Default 10000.
	BatchThreshold int
	// BatchSize is the rows per batch once batched. Default 10000.
	BatchSize int
	// BatchDelay is a politeness pause between batches. Default 1s.
	BatchDelay time.Duration
	Retry      retry.Policy
	Logger     *slog.Logger
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.BatchThreshold <= 0 {
		o.BatchThreshold = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10000
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

// Reader pulls table snapshots for reconciliation.
type Reader struct {
	client TableClient
	opts   ReaderOptions
}

func NewReader(client TableClient, opts ReaderOptions) *Reader {
	return &Reader{client: client, opts: opts.withDefaults()}
}

// Snapshot reads the header and all data rows. Header or row-count failures
// are table-resolution failures; a failed row batch is logged and excluded
// instead of aborting its siblings.
func (r *Reader) Snapshot(ctx context.Context, tableID string) (TableSnapshot, error) {
	return r.snapshot(ctx, tableID, 0)
}

// SnapshotSuffix reads only the last estimatedRows data rows. Callers must
// know every key they will reconcile lives inside that suffix; otherwise
// matching rows above it would be re-appended as duplicates.
func (r *Reader) SnapshotSuffix(ctx context.Context, tableID string, estimatedRows int) (TableSnapshot, error) {
	if estimatedRows < 1 {
		estimatedRows = 1
	}
	return r.snapshot(ctx, tableID, estimatedRows)
}

func (r *Reader) snapshot(ctx context.Context, tableID string, suffixRows int) (TableSnapshot, error) {
	var header []string
	err := r.opts.Retry.Do(ctx, func(ctx context.Context) error {
		h, headerErr := r.client.GetHeader(ctx, tableID)
		if headerErr != nil {
			return headerErr
		}
		header = h
		return nil
	})
	if err != nil {
		return TableSnapshot{}, fmt.Errorf("%w: read header for %s: %v", ErrTableResolution, tableID, err)
	}
	if len(header) == 0 {
		return TableSnapshot{}, fmt.Errorf("%w: table %s has no header row", ErrTableResolution, tableID)
	}

	var total int
	err = r.opts.Retry.Do(ctx, func(ctx context.Context) error {
		n, countErr := r.client.RowCount(ctx, tableID)
		if countErr != nil {
			return countErr
		}
		total = n
		return nil
	})
	if err != nil {
		return TableSnapshot{}, fmt.Errorf("%w: row count for %s: %v", ErrTableResolution, tableID, err)
	}

	snapshot := TableSnapshot{Header: header, TotalRows: total, Complete: true}
	dataRows := total - 1
	if dataRows <= 0 {
		return snapshot, nil
	}

	firstRow := 2
	if suffixRows > 0 && dataRows > suffixRows {
		firstRow = total - suffixRows + 1
	}

	if dataRows <= r.opts.BatchThreshold {
		rows, readErr := r.readBatch(ctx, tableID, firstRow, total)
		if readErr != nil {
			return TableSnapshot{}, fmt.Errorf("read rows for %s: %w", tableID, readErr)
		}
		snapshot.Rows = rows
		return snapshot, nil
	}

	for start := firstRow; start <= total; start += r.opts.BatchSize {
		end := start + r.opts.BatchSize - 1
		if end > total {
			end = total
		}
		rows, readErr := r.readBatch(ctx, tableID, start, end)
		if readErr != nil {
			// Excluded, never silently treated as "no data".
			r.opts.Logger.Error("row batch unavailable, excluding",
				"table", tableID, "start", start, "end", end, "error", readErr)
			snapshot.Complete = false
			continue
		}
		snapshot.Rows = append(snapshot.Rows, rows...)
		if end < total {
			if err := retry.Sleep(ctx, r.opts.BatchDelay); err != nil {
				return snapshot, err
			}
		}
	}
	return snapshot, nil
}

func (r *Reader) readBatch(ctx context.Context, tableID string, start, end int) ([]NumberedRow, error) {
	var raw [][]string
	err := r.opts.Retry.Do(ctx, func(ctx context.Context) error {
		rows, readErr := r.client.GetRows(ctx, tableID, RowRange{Start: start, End: end})
		if readErr != nil {
			return readErr
		}
		raw = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	numbered := make([]NumberedRow, 0, len(raw))
	for i, cells := range raw {
		numbered = append(numbered, NumberedRow{Num: start + i, Cells: cells})
	}
	return numbered, nil
}
