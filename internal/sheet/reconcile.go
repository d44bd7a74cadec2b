package sheet

import (
	"log/slog"
	"strings"
)

// Plan is the reconciliation output: which existing rows to overwrite and
// which rows to append, with the absolute row number appends start at.
type Plan struct {
	// Updates maps absolute row numbers to replacement rows.
	Updates map[int][]string
	// Appends holds new rows in input order.
	Appends [][]string
	// NextAppendRow is the first free row number, derived from the table's
	// total row count rather than from the snapshot's fetched rows, so an
	// incomplete snapshot never causes appends to land on existing data.
	NextAppendRow int
	// EmptyKeyAppends counts appended rows whose key cell was blank.
	EmptyKeyAppends int
}

// Reconcile matches newRows against the snapshot by the key cell at keyIdx.
// A matching key overwrites its existing row in place; an unmatched key is
// appended. When the table already holds the same key more than once, the
// first occurrence wins and later duplicates are left untouched.
func Reconcile(snapshot TableSnapshot, newRows [][]string, keyIdx int, logger *slog.Logger) Plan {
	if logger == nil {
		logger = slog.Default()
	}

	existing := make(map[string]int, len(snapshot.Rows))
	for _, row := range snapshot.Rows {
		key := cellKey(row.Cells, keyIdx)
		if key == "" {
			continue
		}
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = row.Num
	}

	plan := Plan{
		Updates:       make(map[int][]string),
		NextAppendRow: snapshot.TotalRows + 1,
	}
	if plan.NextAppendRow < 2 {
		plan.NextAppendRow = 2
	}

	for _, row := range newRows {
		key := cellKey(row, keyIdx)
		if key == "" {
			logger.Warn("row has empty key, appending without match")
			plan.Appends = append(plan.Appends, row)
			plan.EmptyKeyAppends++
			continue
		}
		if rowNum, ok := existing[key]; ok {
			plan.Updates[rowNum] = row
			continue
		}
		plan.Appends = append(plan.Appends, row)
	}
	return plan
}

func cellKey(cells []string, keyIdx int) string {
	if keyIdx < 0 || keyIdx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(cells[keyIdx], "\uFEFF"))
}
