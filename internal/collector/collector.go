// internal/collector/collector.go
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"seattle-source-ranker/internal/checkpoint"
	apperr "seattle-source-ranker/internal/errors"
	"seattle-source-ranker/internal/model"
)

// Searcher is the paginated data source the collector drives. Pages are
// strictly sequential: each page's cursor comes from the previous response.
type Searcher interface {
	SearchPage(ctx context.Context, query, cursor string, pageSize int) (*model.SearchPage, error)
}

// Reason records why a collection run stopped.
type Reason string

const (
	ReasonExhausted     Reason = "exhausted"      // source reported no more pages
	ReasonTargetReached Reason = "target_reached" // cumulative count hit max_results
	ReasonQueryRejected Reason = "query_rejected" // permanent rejection, partial results kept
)

// Result is the outcome of one collection run.
type Result struct {
	Records    []*model.Repository
	Resumed    bool
	StartCount int // items already satisfied by a prior run
	Reason     Reason
}

// Collector orchestrates the Searcher and the checkpoint store so that an
// interrupted run can resume without re-fetching completed pages. It holds
// no persistent state of its own.
type Collector struct {
	fetcher    Searcher
	store      *checkpoint.Store
	logger     *slog.Logger
	interval   int // checkpoint every N fetched items
	pageSize   int
	pageDelay  time.Duration // courtesy delay between page fetches
	maxRetries int           // transient failure budget per page
	backoff    time.Duration // base backoff, doubled per attempt
}

// New creates a Collector. interval and pageDelay come from configuration;
// the transient retry budget is fixed and small.
func New(fetcher Searcher, store *checkpoint.Store, interval int, pageDelay time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		fetcher:    fetcher,
		store:      store,
		logger:     logger,
		interval:   interval,
		pageSize:   100,
		pageDelay:  pageDelay,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Collect runs the collection task identified by taskID for the given search
// query. maxResults <= 0 means fetch everything the source has. If a
// checkpoint exists and forceRestart is false, the run resumes from the saved
// cursor and the saved count reduces the remaining target.
//
// A permanent query rejection stops the run and returns the partial results
// with a nil error. A transient failure that exhausts the retry budget
// returns the partial results together with the error, leaving the checkpoint
// in place for a later resume.
func (c *Collector) Collect(ctx context.Context, taskID, query string, maxResults int, forceRestart bool) (*Result, error) {
	logger := c.logger.With("task_id", taskID, "query", query)
	res := &Result{}

	cursor := ""
	if forceRestart {
		if err := c.store.Clear(taskID); err != nil {
			logger.Warn("Failed to clear checkpoint for restart", "error", err)
		}
	} else {
		cp, err := c.store.Load(taskID)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			cursor = cp.Cursor
			res.StartCount = cp.Progress.Count
			res.Resumed = true
			logger.Info("Resuming from checkpoint", "count", res.StartCount, "saved_at", cp.Timestamp)
		}
	}

	remaining := 0
	if maxResults > 0 {
		remaining = maxResults - res.StartCount
		if remaining <= 0 {
			logger.Info("Target already satisfied by previous runs", "target", maxResults)
			res.Reason = ReasonTargetReached
			c.finish(taskID, logger)
			return res, nil
		}
	}

	logger.Info("Starting collection", "target", maxResults, "resumed", res.Resumed)

	fetched := 0
	savedMark := res.StartCount / c.interval
	for {
		page, err := c.fetchPage(ctx, query, cursor, logger)
		if err != nil {
			var rejected *apperr.ErrQueryRejected
			if errors.As(err, &rejected) {
				logger.Warn("Query rejected by source, keeping partial results", "error", err)
				res.Reason = ReasonQueryRejected
				c.finish(taskID, logger)
				return res, nil
			}
			// Transient budget exhausted or context cancelled. The
			// checkpoint stays so a later run can resume.
			return res, fmt.Errorf("collection task %s failed: %w", taskID, err)
		}

		records := page.Records
		if maxResults > 0 && fetched+len(records) > remaining {
			records = records[:remaining-fetched]
		}
		res.Records = append(res.Records, records...)
		fetched += len(records)
		total := res.StartCount + fetched

		logger.Debug("Page fetched", "page_records", len(records), "total", total, "total_count", page.TotalCount)

		// Checkpoint whenever the cumulative count crosses an interval
		// multiple. A failed save loses only resumability, not the
		// records accumulated in memory.
		if mark := total / c.interval; mark > savedMark && page.HasMore {
			if err := c.store.Save(taskID, page.NextCursor, checkpoint.Progress{Count: total, Query: query}); err != nil {
				logger.Warn("Checkpoint save failed, progress not resumable", "error", err)
			} else {
				savedMark = mark
			}
		}

		if !page.HasMore {
			res.Reason = ReasonExhausted
			break
		}
		if maxResults > 0 && fetched >= remaining {
			res.Reason = ReasonTargetReached
			break
		}

		cursor = page.NextCursor

		// Courtesy throttle between consecutive pages.
		if err := sleepCtx(ctx, c.pageDelay); err != nil {
			return res, err
		}
	}

	logger.Info("Collection complete", "new_items", fetched, "total", res.StartCount+fetched, "reason", res.Reason)
	c.finish(taskID, logger)
	return res, nil
}

// fetchPage retries one page through rate limits and a small transient
// failure budget. Rate limits never count against the budget: the client has
// already waited out the reset, so the same cursor is simply retried.
func (c *Collector) fetchPage(ctx context.Context, query, cursor string, logger *slog.Logger) (*model.SearchPage, error) {
	attempts := 0
	for {
		page, err := c.fetcher.SearchPage(ctx, query, cursor, c.pageSize)
		if err == nil {
			return page, nil
		}

		var limited *apperr.ErrRateLimited
		if errors.As(err, &limited) {
			logger.Info("Rate limit reset elapsed, retrying page", "cursor", cursor)
			continue
		}

		var transient *apperr.ErrTransient
		if !errors.As(err, &transient) {
			return nil, err
		}

		attempts++
		if attempts >= c.maxRetries {
			return nil, fmt.Errorf("page fetch failed after %d attempts: %w", attempts, err)
		}
		delay := c.backoff << (attempts - 1)
		logger.Warn("Transient fetch failure, backing off", "attempt", attempts, "delay", delay, "error", err)
		if serr := sleepCtx(ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

// finish clears the checkpoint after a terminal run. Clearing is durable
// completion; a failure to clear only risks a redundant future resume.
func (c *Collector) finish(taskID string, logger *slog.Logger) {
	if err := c.store.Clear(taskID); err != nil {
		logger.Warn("Failed to clear checkpoint", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
