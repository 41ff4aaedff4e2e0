package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Checkpoint is the partial metadata of a build in progress. It is written
// after every indexed source for inspection after a crash; builds do not
// resume from it.
type Checkpoint struct {
	BuildID   string         `json:"build_id"`
	Sources   []string       `json:"sources"`
	Chunks    []domain.Chunk `json:"chunks"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WriteCheckpoint atomically replaces the checkpoint of cp.BuildID.
func (s *Store) WriteCheckpoint(cp Checkpoint) error {
	dir := filepath.Join(s.dir, checkpointsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoints dir: %w", err)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeAtomic(s.checkpointPath(cp.BuildID), data)
}

// ReadCheckpoint returns the checkpoint of buildID.
func (s *Store) ReadCheckpoint(buildID string) (Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointPath(buildID))
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// RemoveCheckpoint deletes the checkpoint of buildID, if any.
func (s *Store) RemoveCheckpoint(buildID string) error {
	err := os.Remove(s.checkpointPath(buildID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (s *Store) checkpointPath(buildID string) string {
	return filepath.Join(s.dir, checkpointsDir, buildID+".json")
}
