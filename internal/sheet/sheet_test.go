package sheet

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/orderdesk/sheetsync/internal/retry"
)

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Backoff:     func(int) time.Duration { return 0 },
	}
}

// fakeTable is an in-memory TableClient with fault injection per method.
type fakeTable struct {
	header   []string
	rows     [][]string // data rows, index 0 is table row 2
	gridRows int

	failGetRows  map[int]int // start row -> remaining failures
	failUpdates  int
	failAppends  int
	failCapacity int

	getRowsCalls  []RowRange
	updateCalls   []map[int][]string
	appendCalls   []int
	growCalls     []int
	capacityCalls int
	formatCalls   []ColumnFormat
}

func newFakeTable(header []string, rows [][]string) *fakeTable {
	return &fakeTable{
		header:      header,
		rows:        rows,
		gridRows:    len(rows) + 1,
		failGetRows: map[int]int{},
	}
}

func (f *fakeTable) GetHeader(ctx context.Context, tableID string) ([]string, error) {
	return f.header, nil
}

func (f *fakeTable) GetRows(ctx context.Context, tableID string, rng RowRange) ([][]string, error) {
	f.getRowsCalls = append(f.getRowsCalls, rng)
	if n := f.failGetRows[rng.Start]; n > 0 {
		f.failGetRows[rng.Start]--
		return nil, &APIError{StatusCode: 503, Message: "backend unavailable"}
	}
	if rng.IsAll() {
		all := [][]string{f.header}
		return append(all, f.rows...), nil
	}
	var out [][]string
	for num := rng.Start; num <= rng.End; num++ {
		if num == 1 {
			out = append(out, f.header)
			continue
		}
		idx := num - 2
		if idx >= 0 && idx < len(f.rows) {
			out = append(out, f.rows[idx])
		}
	}
	return out, nil
}

func (f *fakeTable) RowCount(ctx context.Context, tableID string) (int, error) {
	return len(f.rows) + 1, nil
}

func (f *fakeTable) Capacity(ctx context.Context, tableID string) (int, error) {
	f.capacityCalls++
	if f.failCapacity > 0 {
		f.failCapacity--
		return 0, &APIError{StatusCode: 500, Message: "capacity lookup failed"}
	}
	return f.gridRows, nil
}

func (f *fakeTable) AppendRows(ctx context.Context, tableID string, startRow int, rows [][]string) error {
	f.appendCalls = append(f.appendCalls, startRow)
	if f.failAppends > 0 {
		f.failAppends--
		return &APIError{StatusCode: 503, Message: "append rejected"}
	}
	for i, row := range rows {
		idx := startRow + i - 2
		for len(f.rows) <= idx {
			f.rows = append(f.rows, nil)
		}
		f.rows[idx] = row
	}
	return nil
}

func (f *fakeTable) UpdateRows(ctx context.Context, tableID string, updates map[int][]string) error {
	f.updateCalls = append(f.updateCalls, updates)
	if f.failUpdates > 0 {
		f.failUpdates--
		return &APIError{StatusCode: 503, Message: "update rejected"}
	}
	for rowNum, row := range updates {
		idx := rowNum - 2
		if idx >= 0 && idx < len(f.rows) {
			f.rows[idx] = row
		}
	}
	return nil
}

func (f *fakeTable) GrowCapacity(ctx context.Context, tableID string, newRowCount int) error {
	f.growCalls = append(f.growCalls, newRowCount)
	f.gridRows = newRowCount
	return nil
}

func (f *fakeTable) ApplyColumnFormat(ctx context.Context, tableID string, rng RowRange, column int, kind FormatKind) error {
	f.formatCalls = append(f.formatCalls, ColumnFormat{Column: column, Kind: kind})
	return nil
}

func keyRow(key string, rest ...string) []string {
	return append([]string{key}, rest...)
}

func TestReconcileUpdatesAndAppends(t *testing.T) {
	snapshot := TableSnapshot{
		Header: []string{"Name", "Total"},
		Rows: []NumberedRow{
			{Num: 2, Cells: keyRow("A1", "100")},
			{Num: 3, Cells: keyRow("A2", "200")},
			{Num: 4, Cells: keyRow("A3", "300")},
		},
		TotalRows: 4,
		Complete:  true,
	}
	plan := Reconcile(snapshot, [][]string{
		keyRow("A2", "250"),
		keyRow("A4", "400"),
	}, 0, nil)

	if len(plan.Updates) != 1 {
		t.Fatalf("updates: %v", plan.Updates)
	}
	if got := plan.Updates[3]; !reflect.DeepEqual(got, keyRow("A2", "250")) {
		t.Fatalf("A2 must overwrite row 3, got %v", got)
	}
	if len(plan.Appends) != 1 || plan.Appends[0][0] != "A4" {
		t.Fatalf("appends: %v", plan.Appends)
	}
	if plan.NextAppendRow != 5 {
		t.Fatalf("next append row: %d", plan.NextAppendRow)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	snapshot := TableSnapshot{
		Header: []string{"Name", "Total"},
		Rows: []NumberedRow{
			{Num: 2, Cells: keyRow("A1", "100")},
			{Num: 3, Cells: keyRow("A2", "250")},
		},
		TotalRows: 3,
		Complete:  true,
	}
	newRows := [][]string{keyRow("A1", "100"), keyRow("A2", "250")}

	plan := Reconcile(snapshot, newRows, 0, nil)
	if len(plan.Appends) != 0 {
		t.Fatalf("re-syncing identical data must not append, got %v", plan.Appends)
	}
	if len(plan.Updates) != 2 {
		t.Fatalf("updates: %v", plan.Updates)
	}
}

func TestReconcileFirstOccurrenceWinsOnDuplicatedTable(t *testing.T) {
	snapshot := TableSnapshot{
		Header: []string{"Name"},
		Rows: []NumberedRow{
			{Num: 2, Cells: keyRow("A1")},
			{Num: 3, Cells: keyRow("A1")},
			{Num: 4, Cells: keyRow("A2")},
		},
		TotalRows: 4,
		Complete:  true,
	}
	plan := Reconcile(snapshot, [][]string{keyRow("A1", "new")}, 0, nil)
	if _, ok := plan.Updates[2]; !ok {
		t.Fatalf("first occurrence must be updated, got %v", plan.Updates)
	}
	if _, ok := plan.Updates[3]; ok {
		t.Fatalf("later duplicate must be left untouched")
	}
	if len(plan.Appends) != 0 {
		t.Fatalf("must not append a third copy")
	}
}

func TestReconcileEmptyKeyAppends(t *testing.T) {
	snapshot := TableSnapshot{Header: []string{"Name"}, TotalRows: 1, Complete: true}
	plan := Reconcile(snapshot, [][]string{keyRow(""), keyRow("A1")}, 0, nil)
	if plan.EmptyKeyAppends != 1 {
		t.Fatalf("empty key appends: %d", plan.EmptyKeyAppends)
	}
	if len(plan.Appends) != 2 {
		t.Fatalf("appends: %v", plan.Appends)
	}
	if plan.NextAppendRow != 2 {
		t.Fatalf("empty table must append at row 2, got %d", plan.NextAppendRow)
	}
}

func TestReconcileMatchesBOMPrefixedKeys(t *testing.T) {
	snapshot := TableSnapshot{
		Header:    []string{"Name"},
		Rows:      []NumberedRow{{Num: 2, Cells: keyRow("\uFEFFA1")}},
		TotalRows: 2,
		Complete:  true,
	}
	plan := Reconcile(snapshot, [][]string{keyRow("A1")}, 0, nil)
	if _, ok := plan.Updates[2]; !ok {
		t.Fatalf("BOM-prefixed existing key must still match, got appends %v", plan.Appends)
	}
}

func TestWriterSplitsUpdateBatches(t *testing.T) {
	table := newFakeTable([]string{"Name"}, make([][]string, 450))
	w := NewWriter(table, WriterOptions{
		UpdateBatchSize: 200,
		BatchDelay:      time.Millisecond,
		Retry:           fastRetry(3),
	})

	updates := make(map[int][]string, 450)
	for i := 0; i < 450; i++ {
		updates[i+2] = keyRow("A" + strconv.Itoa(i))
	}
	result, err := w.Apply(context.Background(), "tbl", Plan{Updates: updates, NextAppendRow: 452})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(table.updateCalls) != 3 {
		t.Fatalf("expected 3 update batches, got %d", len(table.updateCalls))
	}
	if result.Updated != 450 || !result.Complete {
		t.Fatalf("result: %+v", result)
	}
}

func TestWriterContinuesPastFailedBatch(t *testing.T) {
	table := newFakeTable([]string{"Name"}, make([][]string, 450))
	table.failUpdates = 3 // first batch fails through the whole retry budget
	w := NewWriter(table, WriterOptions{
		UpdateBatchSize: 200,
		BatchDelay:      time.Millisecond,
		Retry:           fastRetry(3),
	})

	updates := make(map[int][]string, 450)
	for i := 0; i < 450; i++ {
		updates[i+2] = keyRow("A" + strconv.Itoa(i))
	}
	result, err := w.Apply(context.Background(), "tbl", Plan{Updates: updates, NextAppendRow: 452})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Complete {
		t.Fatalf("a dropped batch must mark the result incomplete")
	}
	if result.Updated != 250 {
		t.Fatalf("updated: %d", result.Updated)
	}
}

func TestWriterGrowsCapacityOnce(t *testing.T) {
	table := newFakeTable([]string{"Name"}, make([][]string, 100))
	table.gridRows = 101
	w := NewWriter(table, WriterOptions{
		AppendBatchSize: 200,
		BatchDelay:      time.Millisecond,
		Retry:           fastRetry(3),
	})

	bigAppend := make([][]string, 0, 4899)
	for i := 0; i < 4899; i++ {
		bigAppend = append(bigAppend, keyRow("B"+strconv.Itoa(i)))
	}
	if _, err := w.Apply(context.Background(), "tbl", Plan{NextAppendRow: 102, Appends: bigAppend}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	// A later, smaller requirement against the same table must reuse the
	// cached capacity instead of growing again.
	small := Plan{NextAppendRow: 4000, Appends: [][]string{keyRow("C1")}}
	if _, err := w.Apply(context.Background(), "tbl", small); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if len(table.growCalls) != 1 {
		t.Fatalf("expected exactly one grow, got %v", table.growCalls)
	}
	if table.growCalls[0] != 5000 {
		t.Fatalf("grow target: %d", table.growCalls[0])
	}
	if table.capacityCalls != 1 {
		t.Fatalf("capacity lookups: %d", table.capacityCalls)
	}
}

func TestWriterAppendFailurePropagatesAsIncomplete(t *testing.T) {
	table := newFakeTable([]string{"Name"}, nil)
	table.failAppends = 3
	w := NewWriter(table, WriterOptions{
		AppendBatchSize: 200,
		BatchDelay:      time.Millisecond,
		Retry:           fastRetry(3),
	})

	plan := Plan{NextAppendRow: 2, Appends: [][]string{keyRow("A1")}}
	result, err := w.Apply(context.Background(), "tbl", plan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Complete || result.Appended != 0 {
		t.Fatalf("result: %+v", result)
	}
}

func TestReaderBatchesLargeTables(t *testing.T) {
	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = keyRow(fmt.Sprintf("A%d", i))
	}
	table := newFakeTable([]string{"Name"}, rows)
	r := NewReader(table, ReaderOptions{
		BatchThreshold: 10,
		BatchSize:      10,
		BatchDelay:     time.Millisecond,
		Retry:          fastRetry(3),
	})

	snapshot, err := r.Snapshot(context.Background(), "tbl")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snapshot.Complete {
		t.Fatalf("snapshot must be complete")
	}
	if snapshot.TotalRows != 26 {
		t.Fatalf("total rows: %d", snapshot.TotalRows)
	}
	if len(snapshot.Rows) != 25 {
		t.Fatalf("fetched rows: %d", len(snapshot.Rows))
	}
	if snapshot.Rows[0].Num != 2 || snapshot.Rows[24].Num != 26 {
		t.Fatalf("row numbering: first %d last %d", snapshot.Rows[0].Num, snapshot.Rows[24].Num)
	}
}

func TestReaderExcludesFailedBatchWithoutShiftingNumbers(t *testing.T) {
	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = keyRow(fmt.Sprintf("A%d", i))
	}
	table := newFakeTable([]string{"Name"}, rows)
	table.failGetRows[12] = 3 // middle batch fails through the retry budget
	r := NewReader(table, ReaderOptions{
		BatchThreshold: 10,
		BatchSize:      10,
		BatchDelay:     time.Millisecond,
		Retry:          fastRetry(3),
	})

	snapshot, err := r.Snapshot(context.Background(), "tbl")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Complete {
		t.Fatalf("a dropped batch must mark the snapshot incomplete")
	}
	if len(snapshot.Rows) != 15 {
		t.Fatalf("fetched rows: %d", len(snapshot.Rows))
	}
	// Rows after the gap keep their absolute numbers.
	last := snapshot.Rows[len(snapshot.Rows)-1]
	if last.Num != 26 {
		t.Fatalf("last row number: %d", last.Num)
	}
}

func TestReaderSuffixSnapshot(t *testing.T) {
	rows := make([][]string, 20)
	for i := range rows {
		rows[i] = keyRow(fmt.Sprintf("A%d", i))
	}
	table := newFakeTable([]string{"Name"}, rows)
	r := NewReader(table, ReaderOptions{Retry: fastRetry(3), BatchDelay: time.Millisecond})

	snapshot, err := r.SnapshotSuffix(context.Background(), "tbl", 5)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot.Rows) != 5 {
		t.Fatalf("suffix rows: %d", len(snapshot.Rows))
	}
	if snapshot.Rows[0].Num != 17 {
		t.Fatalf("suffix must start at row 17, got %d", snapshot.Rows[0].Num)
	}
	if snapshot.TotalRows != 21 {
		t.Fatalf("total rows: %d", snapshot.TotalRows)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		target error
	}{
		{429, retry.ErrRateLimited},
		{500, retry.ErrTransient},
		{503, retry.ErrTransient},
		{404, ErrTableResolution},
	}
	for _, tc := range cases {
		err := &APIError{StatusCode: tc.status}
		if !errors.Is(err, tc.target) {
			t.Fatalf("status %d must match %v", tc.status, tc.target)
		}
	}
	if errors.Is(&APIError{StatusCode: 400}, retry.ErrTransient) {
		t.Fatalf("400 must not be transient")
	}
}

func TestColumnFormatsSkipMissingColumns(t *testing.T) {
	formats := ColumnFormats([]string{"Name", "Total", "Lineitem quantity"})
	want := []ColumnFormat{
		{Column: 1, Kind: FormatCurrency},
		{Column: 2, Kind: FormatNumber},
	}
	if !reflect.DeepEqual(formats, want) {
		t.Fatalf("formats: %v", formats)
	}
}

func TestContiguousRanges(t *testing.T) {
	got := contiguousRanges([]int{7, 2, 3, 4, 9, 8, 20})
	want := []RowRange{{Start: 2, End: 4}, {Start: 7, End: 9}, {Start: 20, End: 20}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges: %v", got)
	}
}

func TestTouchedRanges(t *testing.T) {
	plan := Plan{
		Updates:       map[int][]string{3: keyRow("A"), 4: keyRow("B")},
		Appends:       [][]string{keyRow("C"), keyRow("D")},
		NextAppendRow: 10,
	}
	got := TouchedRanges(plan)
	want := []RowRange{{Start: 3, End: 4}, {Start: 10, End: 11}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges: %v", got)
	}
}
