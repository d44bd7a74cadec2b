package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/orderdesk/sheetsync/internal/retry"
	"github.com/orderdesk/sheetsync/internal/source"
)

// Status is the terminal state of one window's extraction.
type Status string

const (
	// StatusComplete means the window was paged through to the end.
	StatusComplete Status = "complete"
	// StatusPartial means extraction stopped early; accumulated records are
	// still valid.
	StatusPartial Status = "partial"
)

// Result is what one window extraction produced. Fetched counts every record
// returned by the API including duplicates; Duplicates counts records dropped
// by the window-scoped tracker.
type Result struct {
	Records    []source.Record
	Status     Status
	Pages      int
	Fetched    int
	Duplicates int
}

// Options tune the adaptive pagination loop.
type Options struct {
	InitialPageSize int           // default 75
	MinPageSize     int           // floor, default 25
	PageSizeStep    int           // shrink step, default 10
	SmallPageRatio  float64       // a page under ratio×requested counts as small, default 0.5
	SmallPageStreak int           // consecutive small pages before shrinking, default 3
	PolitenessDelay time.Duration // fixed sleep between successful pages, default 2s
	Retry           retry.Policy
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.InitialPageSize <= 0 {
		o.InitialPageSize = 75
	}
	if o.MinPageSize <= 0 {
		o.MinPageSize = 25
	}
	if o.PageSizeStep <= 0 {
		o.PageSizeStep = 10
	}
	if o.SmallPageRatio <= 0 {
		o.SmallPageRatio = 0.5
	}
	if o.SmallPageStreak <= 0 {
		o.SmallPageStreak = 3
	}
	if o.PolitenessDelay < 0 {
		o.PolitenessDelay = 0
	} else if o.PolitenessDelay == 0 {
		o.PolitenessDelay = 2 * time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Linear(20*time.Second, 120*time.Second),
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Extractor pages through one account's records for one window.
type Extractor struct {
	client source.Client
	opts   Options
}

func NewExtractor(client source.Client, opts Options) *Extractor {
	return &Extractor{client: client, opts: opts.withDefaults()}
}

// Extract pulls all records for one account within window. It never returns
// an error: failures degrade to a partial result and the run continues with
// whatever was accumulated.
func (e *Extractor) Extract(ctx context.Context, account source.Account, window source.Window) Result {
	opts := e.opts
	logger := opts.Logger.With("account", account.Key)
	dedup := NewDedupTracker()

	result := Result{Status: StatusComplete}
	pageSize := opts.InitialPageSize
	cursor := ""
	smallStreak := 0

	for {
		var page source.Page
		err := opts.Retry.Do(ctx, func(ctx context.Context) error {
			fetched, fetchErr := e.client.FetchPage(ctx, account, window, cursor, pageSize)
			if fetchErr != nil {
				return fetchErr
			}
			page = fetched
			return nil
		})
		if err != nil {
			logger.Warn("window extraction stopped early",
				"pages", result.Pages, "records", len(result.Records), "error", err)
			result.Status = StatusPartial
			return result
		}
		result.Pages++

		for _, record := range page.Records {
			result.Fetched++
			if dedup.Seen(record.Key) {
				result.Duplicates++
				continue
			}
			dedup.Mark(record.Key)
			result.Records = append(result.Records, record)
		}

		got := len(page.Records)
		logger.Debug("page fetched", "page", result.Pages, "records", got, "page_size", pageSize)
		if got == 0 {
			return result
		}

		// Shrink the page size toward the floor when the server keeps
		// returning materially less than requested.
		if float64(got) < float64(pageSize)*opts.SmallPageRatio {
			smallStreak++
			if smallStreak >= opts.SmallPageStreak {
				shrunk := pageSize - opts.PageSizeStep
				if shrunk < opts.MinPageSize {
					shrunk = opts.MinPageSize
				}
				if shrunk != pageSize {
					logger.Info("adjusting page size", "from", pageSize, "to", shrunk)
				}
				pageSize = shrunk
				smallStreak = 0
			}
		} else {
			smallStreak = 0
		}

		if !page.HasMore {
			return result
		}
		if page.NextCursor == "" {
			// No cursor despite hasMore; treat as the last page rather
			// than refetching the same one forever.
			logger.Warn("missing continuation cursor, stopping window")
			return result
		}
		cursor = page.NextCursor

		if err := retry.Sleep(ctx, opts.PolitenessDelay); err != nil {
			result.Status = StatusPartial
			return result
		}
	}
}
