// Package artifacts tracks the checkpoint files the external trainer writes
// under the snapshot directory (<snapshot-root>/<model>_<version>/epoch_N.pt)
// and optionally mirrors them to a remote S3 store.
package artifacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"tame/tame/api"
)

var ErrNoCheckpoints = errors.New("no checkpoints found")

var checkpointPattern = regexp.MustCompile(`^epoch_(\d+)\.pt$`)

type Store struct {
	snapshotDir string
	index       *CheckpointIndex
}

func NewStore(snapshotDir string, index *CheckpointIndex) *Store {
	return &Store{snapshotDir: snapshotDir, index: index}
}

// List returns the checkpoints for a model/version pair in epoch order.
func (s *Store) List(model, version string) ([]api.Checkpoint, error) {
	dir := filepath.Join(s.snapshotDir, fmt.Sprintf("%s_%s", model, version))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading snapshot dir '%s': %w", dir, err)
	}

	var checkpoints []api.Checkpoint
	for _, entry := range entries {
		match := checkpointPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		epoch, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			slog.Error("error reading checkpoint info", "file", entry.Name(), "error", err)
			continue
		}

		checkpoints = append(checkpoints, api.Checkpoint{
			Model:   model,
			Version: version,
			Epoch:   epoch,
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].Epoch < checkpoints[j].Epoch })

	return checkpoints, nil
}

// Latest returns the highest epoch checkpoint, consulting the index first and
// falling back to a directory scan.
func (s *Store) Latest(model, version string) (api.Checkpoint, error) {
	if s.index != nil {
		if entry := s.index.Lookup(model, version); entry != nil {
			if _, err := os.Stat(entry.Path); err == nil {
				return *entry, nil
			}
			// Stale index entry, the file was moved or deleted.
			s.index.Remove(model, version)
		}
	}

	checkpoints, err := s.List(model, version)
	if err != nil {
		return api.Checkpoint{}, err
	}
	if len(checkpoints) == 0 {
		return api.Checkpoint{}, ErrNoCheckpoints
	}

	latest := checkpoints[len(checkpoints)-1]
	if s.index != nil {
		s.index.Update(latest)
	}

	return latest, nil
}
