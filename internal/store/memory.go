package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory; used by tests and memory:// DSNs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []FileRecord
	// index is keyed by task id, then filename
	index map[string]map[string]struct{}
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: map[string]map[string]struct{}{},
		now:   time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// FindByTask returns copies of the task's records in insertion order.
func (s *MemoryStore) FindByTask(ctx context.Context, taskID string) ([]FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []FileRecord
	for _, rec := range s.records {
		if rec.TaskID == taskID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// InsertAll stores the batch, skipping (task, filename) pairs already present.
func (s *MemoryStore) InsertAll(ctx context.Context, records []FileRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, rec := range records {
		if rec.TaskID == "" {
			return 0, ErrEmptyTaskID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, rec := range records {
		names, ok := s.index[rec.TaskID]
		if !ok {
			names = map[string]struct{}{}
			s.index[rec.TaskID] = names
		}
		if _, dup := names[rec.Filename]; dup {
			continue
		}
		names[rec.Filename] = struct{}{}

		rec = cloneRecord(rec)
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.UploadedAt.IsZero() {
			rec.UploadedAt = s.now().UTC()
		}
		s.records = append(s.records, rec)
		inserted++
	}
	return inserted, nil
}

// Len returns the total number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func cloneRecord(r FileRecord) FileRecord {
	if r.Data != nil {
		r.Data = append([]byte(nil), r.Data...)
	}
	return r
}
