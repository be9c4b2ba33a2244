// internal/checkpoint/store.go
package checkpoint

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperr "seattle-source-ranker/internal/errors"
)

const schemaVersion = "1.0"

// Checkpoint is the durable record of a collection task's position, enabling
// resume after interruption. At most one live checkpoint exists per task ID.
type Checkpoint struct {
	TaskID    string    `json:"task_id"`
	Cursor    string    `json:"cursor"`
	Progress  Progress  `json:"progress"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Progress carries the cumulative item count plus free-form context such as
// the originating query, so a resume after process restart still knows what
// it was searching for.
type Progress struct {
	Count int            `json:"count"`
	Query string         `json:"query,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Store persists one JSON checkpoint file per task ID under a directory it
// exclusively owns.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the checkpoint directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &apperr.ErrPersistence{Path: dir, Err: err}
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save writes the checkpoint for taskID, overwriting any previous one.
// Last write wins.
func (s *Store) Save(taskID, cursor string, progress Progress) error {
	cp := Checkpoint{
		TaskID:    taskID,
		Cursor:    cursor,
		Progress:  progress,
		Timestamp: time.Now().UTC(),
		Version:   schemaVersion,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return &apperr.ErrPersistence{Path: s.path(taskID), Err: err}
	}
	if err := os.WriteFile(s.path(taskID), data, 0o644); err != nil {
		return &apperr.ErrPersistence{Path: s.path(taskID), Err: err}
	}

	s.logger.Debug("Checkpoint saved", "task_id", taskID, "count", progress.Count)
	return nil
}

// Load returns the checkpoint for taskID, or (nil, nil) if none exists.
// Corrupt or unreadable checkpoint data is logged and treated as absent so a
// damaged file degrades to a fresh start, never an error.
func (s *Store) Load(taskID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.logger.Warn("Checkpoint unreadable, starting fresh", "task_id", taskID, "error", err)
		return nil, nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		s.logger.Warn("Checkpoint corrupt, starting fresh", "task_id", taskID, "error", err)
		return nil, nil
	}
	return &cp, nil
}

// Clear removes the checkpoint for taskID. A cleared checkpoint is the
// durable signal that the task need not be resumed. Clearing an absent
// checkpoint is a no-op.
func (s *Store) Clear(taskID string) error {
	err := os.Remove(s.path(taskID))
	if err != nil && !os.IsNotExist(err) {
		return &apperr.ErrPersistence{Path: s.path(taskID), Err: err}
	}
	return nil
}

// List enumerates the task IDs of all currently-live checkpoints.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &apperr.ErrPersistence{Path: s.dir, Err: err}
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}
