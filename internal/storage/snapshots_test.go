package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Upload(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = slices.Clone(data)
	return nil
}

func (m *memObjects) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for _, key := range slices.Sorted(maps.Keys(m.objects)) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(m.objects[key]))})
		}
	}
	return out, nil
}

func newTestSnapshotStore(t *testing.T, objects ObjectStore, now *time.Time) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(objects)
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	store.now = func() time.Time { return *now }
	t.Cleanup(store.Close)
	return store
}

func TestSnapshotKeyRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	id := uuid.MustParse("0b5c6f5e-5c1c-4b8e-9d5b-2f2f0a7e1c11")
	key := snapshotKey("overview", "2025-02-03", "2025-03-04", created, id)

	want := "snapshots/overview/2025-02-03_2025-03-04/20250304T050607Z-0b5c6f5e-5c1c-4b8e-9d5b-2f2f0a7e1c11.json.zst"
	if key != want {
		t.Fatalf("snapshotKey = %q, want %q", key, want)
	}

	snap, err := ParseSnapshotKey(key)
	if err != nil {
		t.Fatalf("ParseSnapshotKey: %v", err)
	}
	if snap.Kind != "overview" || snap.StartDate != "2025-02-03" || snap.EndDate != "2025-03-04" {
		t.Errorf("unexpected parse: %+v", snap)
	}
	if !snap.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", snap.CreatedAt, created)
	}
}

func TestParseSnapshotKey_Invalid(t *testing.T) {
	keys := []string{
		"",
		"other/overview/2025-01-01_2025-01-31/20250101T000000Z-x.json.zst",
		"snapshots/overview/20250101T000000Z-x.json.zst",
		"snapshots/overview/2025-01-01_2025-01-31/20250101T000000Z-x.json",
		"snapshots/overview/2025-01-01/20250101T000000Z-x.json.zst",
		"snapshots/overview/2025-01-01_2025-01-31/yesterday-x.json.zst",
	}
	for _, key := range keys {
		if _, err := ParseSnapshotKey(key); !errors.Is(err, ErrInvalidSnapshotKey) {
			t.Errorf("ParseSnapshotKey(%q) error = %v, want ErrInvalidSnapshotKey", key, err)
		}
	}
}

func TestSnapshotStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newTestSnapshotStore(t, objects, &now)

	payload := []byte(strings.Repeat(`{"kpis":[],"meta":{"timezone":"Asia/Seoul"}}`, 50))
	first, err := store.PutSnapshot(ctx, "overview", "2025-01-31", "2025-03-01", payload)
	if err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	now = now.Add(time.Hour)
	second, err := store.PutSnapshot(ctx, "overview", "2025-01-31", "2025-03-01", []byte(`{}`))
	if err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	if stored := objects.objects[first]; len(stored) >= len(payload) {
		t.Errorf("expected compressed payload, stored %d bytes for %d raw", len(stored), len(payload))
	}

	got, err := store.GetSnapshot(ctx, first)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("GetSnapshot returned %d bytes, want the original %d", len(got), len(payload))
	}

	list, err := store.ListSnapshots(ctx, "overview")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(list))
	}
	if list[0].Key != second || list[1].Key != first {
		t.Errorf("expected newest first, got %s then %s", list[0].Key, list[1].Key)
	}
}

func TestSnapshotStore_RejectsBadKind(t *testing.T) {
	now := time.Now()
	store := newTestSnapshotStore(t, newMemObjects(), &now)
	for _, kind := range []string{"", "a/b"} {
		if _, err := store.PutSnapshot(context.Background(), kind, "2025-01-01", "2025-01-31", nil); !errors.Is(err, ErrInvalidSnapshotKey) {
			t.Errorf("PutSnapshot(kind=%q) error = %v, want ErrInvalidSnapshotKey", kind, err)
		}
	}
}

func TestSnapshotStore_Prune(t *testing.T) {
	ctx := context.Background()
	objects := newMemObjects()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newTestSnapshotStore(t, objects, &now)

	for range 3 {
		if _, err := store.PutSnapshot(ctx, "overview", "2024-12-03", "2025-01-01", []byte(`{}`)); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}
		now = now.Add(24 * time.Hour)
	}
	// A foreign object under the prefix is left alone.
	objects.objects["snapshots/overview/readme.txt"] = []byte("x")

	deleted, err := store.PruneSnapshots(ctx, "overview", time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	list, err := store.ListSnapshots(ctx, "overview")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 remaining snapshot, got %d", len(list))
	}
	if _, ok := objects.objects["snapshots/overview/readme.txt"]; !ok {
		t.Error("foreign object was deleted")
	}
}
