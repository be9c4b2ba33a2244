// internal/updater/updater.go
package updater

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"seattle-source-ranker/internal/collector"
	"seattle-source-ranker/internal/model"
	"seattle-source-ranker/internal/pool"
	"seattle-source-ranker/internal/registry"
)

// Updater drives full pool maintenance: refreshing stale records, collecting
// new candidates across the configured query partitions, and enriching Python
// records with registry download counts. Each query partition runs as its own
// collection task with its own checkpoint; the pool manager serializes all
// merges.
type Updater struct {
	pool        *pool.Manager
	collector   *collector.Collector
	source      pool.RepoGetter
	registry    *registry.Client
	logger      *slog.Logger
	queries     []string
	concurrency int
	maxTotal    int
	strategy    pool.ReplaceStrategy
}

// New wires an Updater from its collaborators.
func New(p *pool.Manager, c *collector.Collector, source pool.RepoGetter, reg *registry.Client,
	queries []string, concurrency, maxTotal int, strategy pool.ReplaceStrategy, logger *slog.Logger) *Updater {
	return &Updater{
		pool:        p,
		collector:   c,
		source:      source,
		registry:    reg,
		logger:      logger,
		queries:     queries,
		concurrency: concurrency,
		maxTotal:    maxTotal,
		strategy:    strategy,
	}
}

// SetTarget overrides the configured pool size target, e.g. from a CLI flag.
func (u *Updater) SetTarget(n int) {
	if n > 0 {
		u.maxTotal = n
	}
}

// FullUpdate refreshes stale records, then collects new candidates up to the
// configured target.
func (u *Updater) FullUpdate(ctx context.Context, refreshDays int) error {
	if refreshDays > 0 {
		refreshed, err := u.pool.RefreshStale(ctx, u.source, refreshDays)
		if err != nil {
			return err
		}
		u.logger.Info("Stale refresh pass done", "refreshed", refreshed)
	}
	return u.CollectNew(ctx)
}

// CollectNew runs every configured query partition as an independent
// checkpointed collection task with bounded concurrency, then merges all
// candidates into the pool in one batch. A partition that fails leaves its
// checkpoint in place and does not stop the others.
func (u *Updater) CollectNew(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	var mu sync.Mutex
	var candidates []*model.Repository

	for _, query := range u.queries {
		query := query
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			taskID := TaskID(query)
			res, err := u.collector.Collect(gctx, taskID, query, u.maxTotal, false)
			if err != nil && !errors.Is(err, context.Canceled) {
				u.logger.Error("Collection task failed, checkpoint kept for resume",
					"task_id", taskID, "error", err)
			}
			if res != nil && len(res.Records) > 0 {
				mu.Lock()
				candidates = append(candidates, res.Records...)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if len(candidates) == 0 {
		u.logger.Info("No new candidates collected")
		return nil
	}

	stats, err := u.pool.AddNew(candidates, u.maxTotal, u.strategy)
	if err != nil {
		return err
	}
	u.logger.Info("Pool updated from collection",
		"added", stats.Added, "replaced", stats.Replaced,
		"updated", stats.Updated, "skipped", stats.Skipped)
	return nil
}

// EnrichPython fills in monthly PyPI download counts for Python records that
// do not have one yet. A rate-limit style failure on the registry side is not
// expected; individual lookup failures are logged and skipped.
func (u *Updater) EnrichPython(ctx context.Context) (int, error) {
	enriched := 0
	for _, rec := range u.pool.Records() {
		if rec.Language == nil || *rec.Language != "Python" || rec.PyPIDownloadsMonth > 0 {
			continue
		}

		info, err := u.registry.Lookup(ctx, rec.NameWithOwner)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			u.logger.Warn("Registry lookup failed", "name", rec.NameWithOwner, "error", err)
			continue
		}
		if info.Exists && info.DownloadsMonth > 0 {
			rec.PyPIDownloadsMonth = info.DownloadsMonth
			enriched++
		}
	}

	if enriched > 0 {
		if err := u.pool.Save(); err != nil {
			return enriched, err
		}
	}
	u.logger.Info("Python records enriched with download counts", "enriched", enriched)
	return enriched, nil
}

var taskIDSanitizer = regexp.MustCompile(`[^a-z0-9]+`)

// TaskID derives a stable filesystem-safe task identifier from a search
// query, so re-invoking the same query resumes the same checkpoint.
func TaskID(query string) string {
	id := taskIDSanitizer.ReplaceAllString(strings.ToLower(query), "_")
	return strings.Trim(id, "_")
}
