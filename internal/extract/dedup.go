package extract

// DedupTracker records natural keys observed so far. Scope it to one window
// for incremental runs, or to the whole backfill so records that straddle a
// window boundary are kept exactly once, first occurrence winning.
//
// Not safe for concurrent use; the extractor serializes access.
type DedupTracker struct {
	seen map[string]struct{}
}

func NewDedupTracker() *DedupTracker {
	return &DedupTracker{seen: map[string]struct{}{}}
}

// Seen reports whether key was already marked.
func (t *DedupTracker) Seen(key string) bool {
	_, ok := t.seen[key]
	return ok
}

// Mark records key as observed.
func (t *DedupTracker) Mark(key string) {
	t.seen[key] = struct{}{}
}

// Len returns the number of distinct keys marked.
func (t *DedupTracker) Len() int {
	return len(t.seen)
}
