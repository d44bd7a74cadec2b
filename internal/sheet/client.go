// Package sheet talks to the destination table service: reading snapshots,
// reconciling new rows against existing ones, and writing in bounded batches.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/orderdesk/sheetsync/internal/retry"
)

// ErrTableResolution means the destination table's identity or shape could
// not be established. There is no safe write target without it, so the whole
// run fails.
var ErrTableResolution = errors.New("table resolution failed")

// RowRange is a 1-based inclusive row interval. The zero value means the
// whole table.
type RowRange struct {
	Start int
	End   int
}

// IsAll reports whether the range addresses the whole table.
func (r RowRange) IsAll() bool {
	return r.Start == 0 && r.End == 0
}

// FormatKind names a per-column cell format.
type FormatKind string

const (
	FormatCurrency FormatKind = "currency"
	FormatNumber   FormatKind = "number"
)

// ColumnFormat binds a 0-based column index to a format.
type ColumnFormat struct {
	Column int
	Kind   FormatKind
}

// TableClient is the destination table boundary. Implementations perform no
// retries; the reader and writer each own an independent retry policy.
type TableClient interface {
	// GetHeader returns row 1.
	GetHeader(ctx context.Context, tableID string) ([]string, error)
	// GetRows returns the rows in rng, in order. Trailing empty rows may be
	// omitted by the service.
	GetRows(ctx context.Context, tableID string, rng RowRange) ([][]string, error)
	// RowCount returns the number of rows holding data, header included.
	RowCount(ctx context.Context, tableID string) (int, error)
	// Capacity returns the table's declared row capacity.
	Capacity(ctx context.Context, tableID string) (int, error)
	// AppendRows writes rows starting at startRow.
	AppendRows(ctx context.Context, tableID string, startRow int, rows [][]string) error
	// UpdateRows overwrites whole rows addressed by row number.
	UpdateRows(ctx context.Context, tableID string, updates map[int][]string) error
	// GrowCapacity raises the declared capacity to newRowCount.
	GrowCapacity(ctx context.Context, tableID string, newRowCount int) error
	// ApplyColumnFormat formats one column over rng. Reapplying the same
	// format to the same range is a no-op for the service.
	ApplyColumnFormat(ctx context.Context, tableID string, rng RowRange, column int, kind FormatKind) error
}

// APIError is a classified failure from the table service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("table api %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("table api %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case retry.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case retry.ErrTransient:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	case ErrTableResolution:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
