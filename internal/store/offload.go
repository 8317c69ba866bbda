package store

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const blobConcurrency = 4

// OffloadStore moves payloads of at least Threshold bytes into Blobs and keeps
// only the object key in the wrapped store. Reads put the payload back, so
// callers see the same FileRecord either way.
type OffloadStore struct {
	Inner     Store
	Blobs     Blobs
	Threshold int64
}

var _ Store = (*OffloadStore)(nil)

// NewOffloadStore wraps inner. A non-positive threshold offloads every payload.
func NewOffloadStore(inner Store, blobs Blobs, threshold int64) *OffloadStore {
	return &OffloadStore{Inner: inner, Blobs: blobs, Threshold: threshold}
}

func objectKey(taskID, id string) string {
	return "tasks/" + url.PathEscape(taskID) + "/" + id
}

// InsertAll uploads large payloads first, then writes the batch. Objects whose
// rows were not stored (write failure or name collision) are removed again.
func (s *OffloadStore) InsertAll(ctx context.Context, records []FileRecord) (int, error) {
	batch := make([]FileRecord, len(records))
	copy(batch, records)

	var putKeys []string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(blobConcurrency)
	for i := range batch {
		rec := &batch[i]
		if int64(len(rec.Data)) < s.Threshold || len(rec.Data) == 0 {
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.ObjectKey = objectKey(rec.TaskID, rec.ID)
		putKeys = append(putKeys, rec.ObjectKey)

		key, data, contentType := rec.ObjectKey, rec.Data, rec.MimeType
		rec.Data = nil
		eg.Go(func() error {
			return s.Blobs.Put(egCtx, key, data, contentType)
		})
	}
	if err := eg.Wait(); err != nil {
		s.deleteKeys(context.WithoutCancel(ctx), putKeys)
		return 0, err
	}

	n, err := s.Inner.InsertAll(ctx, batch)
	if err != nil {
		s.deleteKeys(context.WithoutCancel(ctx), putKeys)
		return 0, err
	}

	// The rows are committed at this point; cleanup is best effort.
	if n < len(batch) && len(putKeys) > 0 {
		_ = s.removeOrphans(ctx, batch, putKeys)
	}

	return n, nil
}

// removeOrphans deletes objects uploaded for rows the wrapped store skipped.
func (s *OffloadStore) removeOrphans(ctx context.Context, batch []FileRecord, putKeys []string) error {
	referenced := map[string]struct{}{}
	seenTask := map[string]struct{}{}
	for _, rec := range batch {
		if _, ok := seenTask[rec.TaskID]; ok {
			continue
		}
		seenTask[rec.TaskID] = struct{}{}

		stored, err := s.Inner.FindByTask(ctx, rec.TaskID)
		if err != nil {
			return err
		}
		for _, st := range stored {
			if st.ObjectKey != "" {
				referenced[st.ObjectKey] = struct{}{}
			}
		}
	}

	var orphans []string
	for _, key := range putKeys {
		if _, ok := referenced[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	s.deleteKeys(ctx, orphans)
	return nil
}

func (s *OffloadStore) deleteKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		_ = s.Blobs.Delete(ctx, key)
	}
}

// FindByTask reads the records and fetches offloaded payloads in parallel.
func (s *OffloadStore) FindByTask(ctx context.Context, taskID string) ([]FileRecord, error) {
	records, err := s.Inner.FindByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(blobConcurrency)
	for i := range records {
		rec := &records[i]
		if rec.ObjectKey == "" || len(rec.Data) > 0 {
			continue
		}
		eg.Go(func() error {
			data, err := s.Blobs.Get(egCtx, rec.ObjectKey)
			if err != nil {
				return err
			}
			rec.Data = data
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

// Ping checks both the wrapped store and the blob backend when they support it.
func (s *OffloadStore) Ping(ctx context.Context) error {
	var errs []error
	if p, ok := s.Inner.(Pinger); ok {
		errs = append(errs, p.Ping(ctx))
	}
	if p, ok := s.Blobs.(Pinger); ok {
		errs = append(errs, p.Ping(ctx))
	}
	return errors.Join(errs...)
}

// Close closes the wrapped store if it holds resources.
func (s *OffloadStore) Close() error {
	if c, ok := s.Inner.(Closer); ok {
		return c.Close()
	}
	return nil
}
