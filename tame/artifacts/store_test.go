package artifacts_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tame/tame/artifacts"
)

func writeCheckpoint(t *testing.T, snapshotDir, subdir, name string) string {
	dir := filepath.Join(snapshotDir, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestListAndLatest(t *testing.T) {
	snapshotDir := t.TempDir()
	writeCheckpoint(t, snapshotDir, "resnet50_TAME", "epoch_1.pt")
	latestPath := writeCheckpoint(t, snapshotDir, "resnet50_TAME", "epoch_10.pt")
	writeCheckpoint(t, snapshotDir, "resnet50_TAME", "epoch_2.pt")
	writeCheckpoint(t, snapshotDir, "resnet50_TAME", "train_record.json")
	writeCheckpoint(t, snapshotDir, "vgg16_TAME", "epoch_5.pt")

	store := artifacts.NewStore(snapshotDir, nil)

	checkpoints, err := store.List("resnet50", "TAME")
	if err != nil {
		t.Fatal(err)
	}

	if len(checkpoints) != 3 ||
		checkpoints[0].Epoch != 1 || checkpoints[1].Epoch != 2 || checkpoints[2].Epoch != 10 {
		t.Fatalf("incorrect checkpoint list: %+v", checkpoints)
	}

	latest, err := store.Latest("resnet50", "TAME")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Epoch != 10 || latest.Path != latestPath {
		t.Fatalf("incorrect latest checkpoint: %+v", latest)
	}
}

func TestLatestNoCheckpoints(t *testing.T) {
	store := artifacts.NewStore(t.TempDir(), nil)

	_, err := store.Latest("resnet50", "TAME")
	if !errors.Is(err, artifacts.ErrNoCheckpoints) {
		t.Fatalf("expected ErrNoCheckpoints, got %v", err)
	}
}

func TestLatestUsesAndRepairsIndex(t *testing.T) {
	snapshotDir := t.TempDir()
	path := writeCheckpoint(t, snapshotDir, "resnet50_TAME", "epoch_3.pt")

	index, err := artifacts.NewCheckpointIndex(filepath.Join(t.TempDir(), "checkpoints.index"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	store := artifacts.NewStore(snapshotDir, index)

	latest, err := store.Latest("resnet50", "TAME")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Epoch != 3 {
		t.Fatalf("incorrect latest checkpoint: %+v", latest)
	}

	if entry := index.Lookup("resnet50", "TAME"); entry == nil || entry.Epoch != 3 {
		t.Fatalf("scan should populate the index: %+v", entry)
	}

	// A newer checkpoint appears: the stale index entry still points to epoch 3
	// until its file disappears, then the scan repairs the index.
	writeCheckpoint(t, snapshotDir, "resnet50_TAME", "epoch_4.pt")

	latest, err = store.Latest("resnet50", "TAME")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Epoch != 3 {
		t.Fatalf("index entry should win while its file exists: %+v", latest)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	latest, err = store.Latest("resnet50", "TAME")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Epoch != 4 {
		t.Fatalf("stale index entry should be repaired by rescan: %+v", latest)
	}
}

func TestIndexLookupMissing(t *testing.T) {
	index, err := artifacts.NewCheckpointIndex(filepath.Join(t.TempDir(), "checkpoints.index"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	if entry := index.Lookup("resnet50", "TAME"); entry != nil {
		t.Fatalf("expected no entry, got %+v", entry)
	}
}
