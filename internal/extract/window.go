// Package extract drives the source client: adaptive pagination per window,
// window partitioning for backfills, and natural-key deduplication.
package extract

import (
	"time"

	"github.com/orderdesk/sheetsync/internal/source"
)

// A chunk of chunkMonths is approximated as chunkMonths×30 days.
const daysPerChunkMonth = 30

// PartitionWindows splits [start, end) into contiguous, non-overlapping
// half-open windows of at most chunkMonths each. Used for full-history
// backfills; incremental runs use a single window.
func PartitionWindows(start, end time.Time, chunkMonths int) []source.Window {
	if !start.Before(end) {
		return nil
	}
	if chunkMonths < 1 {
		chunkMonths = 1
	}
	span := time.Duration(chunkMonths) * daysPerChunkMonth * 24 * time.Hour
	var windows []source.Window
	for cursor := start; cursor.Before(end); {
		next := cursor.Add(span)
		if next.After(end) {
			next = end
		}
		windows = append(windows, source.Window{Start: cursor, End: next})
		cursor = next
	}
	return windows
}
