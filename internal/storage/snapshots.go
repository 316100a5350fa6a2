package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	snapshotRoot        = "snapshots"
	snapshotExt         = ".json.zst"
	snapshotStampLayout = "20060102T150405Z"
)

// ErrInvalidSnapshotKey is returned for keys that were not written by PutSnapshot.
var ErrInvalidSnapshotKey = errors.New("invalid snapshot key")

// ObjectStore is the subset of object storage the snapshot archive needs.
// *S3Storage implements it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Snapshot describes one archived response.
type Snapshot struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// SnapshotStore archives rendered dashboard responses as zstd-compressed JSON.
//
// Key format: snapshots/{kind}/{start}_{end}/{created}-{uuid}.json.zst
// where created is a UTC timestamp, so keys under one range sort by age.
type SnapshotStore struct {
	objects ObjectStore
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// NewSnapshotStore wraps objects. The encoder and decoder are shared;
// EncodeAll and DecodeAll are safe for concurrent use.
func NewSnapshotStore(objects ObjectStore) (*SnapshotStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &SnapshotStore{
		objects: objects,
		encoder: encoder,
		decoder: decoder,
		now:     time.Now,
	}, nil
}

// Close releases the codec resources.
func (s *SnapshotStore) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// PutSnapshot compresses payload and stores it. It returns the object key.
func (s *SnapshotStore) PutSnapshot(ctx context.Context, kind, startDate, endDate string, payload []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "storage.put_snapshot",
		trace.WithAttributes(
			attribute.String("snapshot.kind", kind),
			attribute.String("snapshot.start", startDate),
			attribute.String("snapshot.end", endDate),
			attribute.Int("snapshot.raw_size", len(payload)),
		))
	defer span.End()

	if kind == "" || strings.Contains(kind, "/") {
		err := fmt.Errorf("kind %q: %w", kind, ErrInvalidSnapshotKey)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	key := snapshotKey(kind, startDate, endDate, s.now(), uuid.New())
	compressed := s.encoder.EncodeAll(payload, make([]byte, 0, len(payload)/4))
	span.SetAttributes(attribute.Int("snapshot.compressed_size", len(compressed)))

	meta := map[string]string{
		"kind":  kind,
		"start": startDate,
		"end":   endDate,
	}
	if err := s.objects.Upload(ctx, key, compressed, "application/zstd", meta); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return key, nil
}

// GetSnapshot downloads and decompresses the snapshot stored under key.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, key string) ([]byte, error) {
	if _, err := ParseSnapshotKey(key); err != nil {
		return nil, err
	}
	compressed, err := s.objects.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	payload, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot %s: %w", key, err)
	}
	return payload, nil
}

// ListSnapshots returns the snapshots of kind, newest first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context, kind string) ([]Snapshot, error) {
	objects, err := s.objects.List(ctx, path.Join(snapshotRoot, kind)+"/")
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(objects))
	for _, obj := range objects {
		snap, err := ParseSnapshotKey(obj.Key)
		if err != nil {
			// Foreign objects under the prefix are not ours to list.
			continue
		}
		snap.Size = obj.Size
		snapshots = append(snapshots, snap)
	}

	slices.SortFunc(snapshots, func(a, b Snapshot) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return snapshots, nil
}

// PruneSnapshots deletes snapshots of kind created before cutoff and returns
// how many were removed.
func (s *SnapshotStore) PruneSnapshots(ctx context.Context, kind string, cutoff time.Time) (int, error) {
	snapshots, err := s.ListSnapshots(ctx, kind)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, snap := range snapshots {
		if !snap.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.objects.Delete(ctx, snap.Key); err != nil {
			return deleted, fmt.Errorf("failed to delete snapshot %s: %w", snap.Key, err)
		}
		deleted++
	}
	return deleted, nil
}

func snapshotKey(kind, startDate, endDate string, created time.Time, id uuid.UUID) string {
	name := created.UTC().Format(snapshotStampLayout) + "-" + id.String() + snapshotExt
	return path.Join(snapshotRoot, kind, startDate+"_"+endDate, name)
}

// ParseSnapshotKey recovers the kind, range and creation time from a key
// written by PutSnapshot.
func ParseSnapshotKey(key string) (Snapshot, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != snapshotRoot || !strings.HasSuffix(parts[3], snapshotExt) {
		return Snapshot{}, fmt.Errorf("%q: %w", key, ErrInvalidSnapshotKey)
	}
	startDate, endDate, ok := strings.Cut(parts[2], "_")
	if !ok {
		return Snapshot{}, fmt.Errorf("%q: %w", key, ErrInvalidSnapshotKey)
	}
	stamp, _, ok := strings.Cut(strings.TrimSuffix(parts[3], snapshotExt), "-")
	if !ok {
		return Snapshot{}, fmt.Errorf("%q: %w", key, ErrInvalidSnapshotKey)
	}
	created, err := time.Parse(snapshotStampLayout, stamp)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%q: %w", key, ErrInvalidSnapshotKey)
	}
	return Snapshot{
		Key:       key,
		Kind:      parts[1],
		StartDate: startDate,
		EndDate:   endDate,
		CreatedAt: created,
	}, nil
}
