package artifacts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"tame/tame/api"
)

// CheckpointIndex is a small bbolt index of the newest known checkpoint per
// model/version pair. It lets the backend answer checkpoint lookups without
// rescanning the snapshot directory, which lives on slow shared storage.
type CheckpointIndex struct {
	db     *bbolt.DB
	logger *slog.Logger
}

const indexBucket = "checkpoints"

func NewCheckpointIndex(path string) (*CheckpointIndex, error) {
	logger := slog.With("index", path)

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 20 * time.Second})
	if err != nil {
		logger.Error("error opening checkpoint index", "error", err)
		return nil, fmt.Errorf("error creating checkpoint index: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(indexBucket))
		return err
	}); err != nil {
		logger.Error("error creating index bucket", "error", err)
		return nil, fmt.Errorf("error creating checkpoint index: %w", err)
	}

	return &CheckpointIndex{db: db, logger: logger}, nil
}

func (index *CheckpointIndex) Close() error {
	return index.db.Close()
}

func indexKey(model, version string) []byte {
	return []byte(model + "_" + version)
}

// Lookup returns the indexed latest checkpoint, or nil if the pair has never
// been indexed.
func (index *CheckpointIndex) Lookup(model, version string) *api.Checkpoint {
	var entry *api.Checkpoint

	err := index.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(indexBucket)).Get(indexKey(model, version))
		if data != nil {
			entry = new(api.Checkpoint)
			if err := json.Unmarshal(data, entry); err != nil {
				return fmt.Errorf("error parsing index entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		// The index is advisory, a corrupt entry just forces a rescan.
		index.logger.Error("checkpoint index access failed", "model", model, "version", version, "error", err)
		return nil
	}

	return entry
}

func (index *CheckpointIndex) Update(checkpoint api.Checkpoint) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		index.logger.Error("error serializing index entry", "error", err)
		return
	}

	err = index.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(indexBucket)).Put(indexKey(checkpoint.Model, checkpoint.Version), data)
	})
	if err != nil {
		index.logger.Error("checkpoint index update failed", "model", checkpoint.Model, "version", checkpoint.Version, "error", err)
	}
}

func (index *CheckpointIndex) Remove(model, version string) {
	err := index.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(indexBucket)).Delete(indexKey(model, version))
	})
	if err != nil {
		index.logger.Error("checkpoint index delete failed", "model", model, "version", version, "error", err)
	}
}
