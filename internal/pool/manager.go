// internal/pool/manager.go
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperr "seattle-source-ranker/internal/errors"
	"seattle-source-ranker/internal/model"
)

// ReplaceStrategy decides which pool member is the "weakest" when a candidate
// arrives at capacity. Each strategy is one comparison key; the weakest record
// is the minimum key, first-encountered in current pool order on ties.
type ReplaceStrategy int

const (
	LowestStars ReplaceStrategy = iota
	Oldest
	LowestActivity
)

// ParseStrategy maps the configuration spelling onto a strategy.
func ParseStrategy(s string) (ReplaceStrategy, error) {
	switch s {
	case "lowest_stars":
		return LowestStars, nil
	case "oldest":
		return Oldest, nil
	case "lowest_activity":
		return LowestActivity, nil
	default:
		return 0, fmt.Errorf("unknown replace strategy %q", s)
	}
}

func (rs ReplaceStrategy) String() string {
	switch rs {
	case LowestStars:
		return "lowest_stars"
	case Oldest:
		return "oldest"
	case LowestActivity:
		return "lowest_activity"
	}
	return "unknown"
}

// key is the comparison value a strategy ranks records by. Higher is
// stronger; the weakest record has the minimum key.
func (rs ReplaceStrategy) key(r *model.Repository) int64 {
	switch rs {
	case Oldest:
		return r.UpdatedAt.UnixNano()
	case LowestActivity:
		return int64(r.Activity())
	default:
		return int64(r.Stars)
	}
}

// AddStats reports what AddNew did with a candidate batch.
type AddStats struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// RepoGetter is the single-record lookup used to refresh stale pool entries.
type RepoGetter interface {
	GetRepository(ctx context.Context, owner, name string) (*model.Repository, error)
}

// Manager owns the bounded, deduplicated pool of repository records and its
// on-disk file. All mutations go through the manager; writes to the pool file
// are serialized by its lock.
type Manager struct {
	mu      sync.Mutex
	path    string
	records []*model.Repository
	index   map[string]*model.Repository
	logger  *slog.Logger

	refreshDelay time.Duration
}

// metadata is the sidecar written next to the pool file.
type metadata struct {
	LastUpdated   time.Time `json:"last_updated"`
	TotalProjects int       `json:"total_projects"`
	DataFile      string    `json:"data_file"`
}

// Load reads the persisted pool from path. A missing file yields an empty
// pool; an unreadable or unparsable file is surfaced as ErrCorruptPool and
// never silently treated as empty.
func Load(path string, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		path:         path,
		index:        make(map[string]*model.Repository),
		logger:       logger,
		refreshDelay: 500 * time.Millisecond,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No existing pool file, starting empty", "path", path)
			return m, nil
		}
		return nil, &apperr.ErrCorruptPool{Path: path, Err: err}
	}

	var records []*model.Repository
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &apperr.ErrCorruptPool{Path: path, Err: err}
	}

	for _, r := range records {
		if r.NameWithOwner == "" {
			continue
		}
		if _, dup := m.index[r.NameWithOwner]; dup {
			logger.Warn("Duplicate record in pool file, keeping first", "name", r.NameWithOwner)
			continue
		}
		m.index[r.NameWithOwner] = r
		m.records = append(m.records, r)
	}
	m.sortLocked()

	logger.Info("Pool loaded", "path", path, "records", len(m.records))
	return m, nil
}

// Save persists the pool atomically: the previous generation is copied to a
// .backup sibling, the new contents are written to a temp file and renamed
// over the target, and the metadata sidecar is rewritten.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &apperr.ErrPersistence{Path: m.path, Err: err}
		}
	}

	// Keep the prior generation recoverable before touching the live file.
	if prev, err := os.ReadFile(m.path); err == nil {
		if err := os.WriteFile(m.backupPath(), prev, 0o644); err != nil {
			m.logger.Warn("Failed to write pool backup", "error", err)
		}
	}

	data, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		return &apperr.ErrPersistence{Path: m.path, Err: err}
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &apperr.ErrPersistence{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return &apperr.ErrPersistence{Path: m.path, Err: err}
	}

	meta := metadata{
		LastUpdated:   time.Now().UTC(),
		TotalProjects: len(m.records),
		DataFile:      m.path,
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = os.WriteFile(m.metadataPath(), metaData, 0o644)
	}
	if err != nil {
		m.logger.Warn("Failed to write pool metadata", "error", err)
	}

	return nil
}

// AddNew merges a candidate batch into the pool under the acceptance policy:
// known records are updated in place when their star count changed, new
// records are inserted while below maxTotal, and at capacity a candidate only
// enters by strictly beating the weakest record under the strategy's metric,
// evicting it. The pool is re-sorted by stars and persisted afterwards.
func (m *Manager) AddNew(candidates []*model.Repository, maxTotal int, strategy ReplaceStrategy) (AddStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats AddStats
	for _, cand := range candidates {
		if cand == nil || cand.NameWithOwner == "" {
			stats.Skipped++
			continue
		}

		if existing, ok := m.index[cand.NameWithOwner]; ok {
			if cand.Stars != existing.Stars {
				m.replaceLocked(existing, cand)
				stats.Updated++
			} else {
				stats.Skipped++
			}
			continue
		}

		if len(m.records) < maxTotal {
			m.index[cand.NameWithOwner] = cand
			m.records = append(m.records, cand)
			stats.Added++
			continue
		}

		weakest := m.weakestLocked(strategy)
		if weakest != nil && strategy.key(cand) > strategy.key(weakest) {
			m.evictLocked(weakest)
			m.index[cand.NameWithOwner] = cand
			m.records = append(m.records, cand)
			stats.Replaced++
			m.logger.Debug("Replaced pool record",
				"evicted", weakest.NameWithOwner, "evicted_key", strategy.key(weakest),
				"inserted", cand.NameWithOwner, "inserted_key", strategy.key(cand),
				"strategy", strategy.String())
		} else {
			stats.Skipped++
		}
	}

	m.sortLocked()
	if err := m.saveLocked(); err != nil {
		return stats, err
	}

	m.logger.Info("Candidate batch merged",
		"added", stats.Added, "replaced", stats.Replaced,
		"updated", stats.Updated, "skipped", stats.Skipped, "pool_size", len(m.records))
	return stats, nil
}

// RefreshStale re-fetches live metrics for every record whose last update is
// absent or older than maxAgeDays, replacing each in place. A 404 flags the
// record but never removes it; a rate limit aborts the rest of the batch
// gracefully, returning the count refreshed so far. The pool is re-sorted and
// persisted before returning.
func (m *Manager) RefreshStale(ctx context.Context, source RepoGetter, maxAgeDays int) (int, error) {
	m.mu.Lock()
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	var stale []*model.Repository
	for _, r := range m.records {
		if r.LastStatsUpdate == nil || r.LastStatsUpdate.Before(cutoff) {
			stale = append(stale, r)
		}
	}
	m.mu.Unlock()

	m.logger.Info("Refreshing stale records", "stale", len(stale), "max_age_days", maxAgeDays)
	if len(stale) == 0 {
		return 0, nil
	}

	refreshed := 0
	for i, old := range stale {
		owner, name, ok := strings.Cut(old.NameWithOwner, "/")
		if !ok {
			m.logger.Warn("Record key not in owner/name form, skipping", "name", old.NameWithOwner)
			continue
		}

		fresh, err := source.GetRepository(ctx, owner, name)
		if err != nil {
			var limited *apperr.ErrRateLimited
			if errors.As(err, &limited) {
				m.logger.Warn("Rate limited mid-refresh, stopping batch",
					"refreshed", refreshed, "remaining", len(stale)-i)
				break
			}
			if errors.Is(err, apperr.ErrNotFound) {
				// Conservative default: flag, never auto-delete.
				m.mu.Lock()
				old.FlaggedMissing = true
				m.mu.Unlock()
				m.logger.Warn("Repository gone upstream, flagged", "name", old.NameWithOwner)
				continue
			}
			if ctx.Err() != nil {
				break
			}
			// A single failed refresh never aborts the batch.
			m.logger.Warn("Refresh failed for record", "name", old.NameWithOwner, "error", err)
			continue
		}

		if fresh.UpdatedAt.Before(old.UpdatedAt) {
			// Upstream should never report an older updated_at.
			m.logger.Warn("Source reports regressed updated_at",
				"name", old.NameWithOwner, "old", old.UpdatedAt, "new", fresh.UpdatedAt)
		}

		m.mu.Lock()
		m.replaceLocked(old, fresh)
		m.mu.Unlock()
		refreshed++

		if i < len(stale)-1 {
			if err := sleepCtx(ctx, m.refreshDelay); err != nil {
				break
			}
		}
	}

	m.mu.Lock()
	m.sortLocked()
	err := m.saveLocked()
	m.mu.Unlock()
	if err != nil {
		return refreshed, err
	}
	return refreshed, nil
}

// Records returns a copy of the pool in display order (stars descending).
func (m *Manager) Records() []*model.Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Repository, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the current pool size.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Get returns the record for a name_with_owner key, if present.
func (m *Manager) Get(nameWithOwner string) (*model.Repository, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.index[nameWithOwner]
	return r, ok
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) backupPath() string {
	return m.path + ".backup"
}

func (m *Manager) metadataPath() string {
	return strings.TrimSuffix(m.path, filepath.Ext(m.path)) + "_metadata.json"
}

// weakestLocked picks the minimum-key record, first encountered in current
// pool order on ties.
func (m *Manager) weakestLocked(strategy ReplaceStrategy) *model.Repository {
	var weakest *model.Repository
	for _, r := range m.records {
		if weakest == nil || strategy.key(r) < strategy.key(weakest) {
			weakest = r
		}
	}
	return weakest
}

func (m *Manager) replaceLocked(old, fresh *model.Repository) {
	m.index[fresh.NameWithOwner] = fresh
	for i, r := range m.records {
		if r == old {
			m.records[i] = fresh
			return
		}
	}
}

func (m *Manager) evictLocked(victim *model.Repository) {
	delete(m.index, victim.NameWithOwner)
	for i, r := range m.records {
		if r == victim {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return
		}
	}
}

// sortLocked recomputes display order: stars descending, stable.
func (m *Manager) sortLocked() {
	sort.SliceStable(m.records, func(i, j int) bool {
		return m.records[i].Stars > m.records[j].Stars
	})
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
