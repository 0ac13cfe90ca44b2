package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

func testSnapshot(total float64) *models.Snapshot {
	return &models.Snapshot{
		Timestamp:  time.Now().UTC(),
		TotalValue: total,
		Currency:   "USD",
		Categories: map[types.AssetClass][]*models.Position{
			types.ClassEquity: {
				{Symbol: "AAPL", Name: "Apple Inc", Quantity: 10, MarketValue: total},
			},
		},
	}
}

func TestSnapshotStore_LoadMissing(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}

	snapshot, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snapshot != nil {
		t.Errorf("Load() = %v, want nil for missing snapshot", snapshot)
	}
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}

	want := testSnapshot(15000)
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil, want snapshot")
	}
	if got.TotalValue != want.TotalValue {
		t.Errorf("TotalValue = %v, want %v", got.TotalValue, want.TotalValue)
	}
	if len(got.Categories[types.ClassEquity]) != 1 {
		t.Errorf("equity positions = %d, want 1", len(got.Categories[types.ClassEquity]))
	}
}

func TestSnapshotStore_SaveArchivesPrevious(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSnapshotStore(filepath.Join(dir, "snapshot.json"))
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}

	if err := store.Save(testSnapshot(10000)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(testSnapshot(12000)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	prev, err := store.LoadPrevious()
	if err != nil {
		t.Fatalf("LoadPrevious() error = %v", err)
	}
	if prev == nil {
		t.Fatal("LoadPrevious() = nil, want archived snapshot")
	}
	if prev.TotalValue != 10000 {
		t.Errorf("archived TotalValue = %v, want 10000", prev.TotalValue)
	}

	current, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if current.TotalValue != 12000 {
		t.Errorf("current TotalValue = %v, want 12000", current.TotalValue)
	}
}

func TestSnapshotStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	store, err := NewSnapshotStore(path)
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}

	if err := store.Save(testSnapshot(10000)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present after Save()")
	}
}
