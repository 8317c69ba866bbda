// Package uploads implements the task file flows: deduplicating uploads by
// filename within a task, and listing a task's stored files.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-file-drop/internal/logging"
	"task-file-drop/internal/store"
)

// File is one incoming upload part.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Data     []byte
}

// Outcome distinguishes a write from a no-op re-submission.
type Outcome int

const (
	// Inserted means at least one new file was stored.
	Inserted Outcome = iota
	// AlreadyExists means every filename was already stored for the task.
	AlreadyExists
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "exist"
	default:
		return "unknown"
	}
}

// Result summarises one upload.
type Result struct {
	Outcome Outcome
	// NewFiles is the number of records actually stored.
	NewFiles int
	// Duplicates is the number of incoming files skipped by name.
	Duplicates int
}

// Recorder receives upload/retrieval counters. Optional.
type Recorder interface {
	RecordUpload(result Result, bytes int64, d time.Duration)
	RecordRetrieval(files int, d time.Duration)
	RecordStorageFailure()
}

type Deps struct {
	Store   store.Store
	Logger  *logging.Logger
	Metrics Recorder
	// Timeout bounds each store call; zero leaves the request context alone.
	Timeout time.Duration
}

type Service struct {
	Deps
}

// New constructs the service with the given store handle.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Service{Deps: deps}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// storeError classifies a gateway error. Rejected arguments become client
// errors; everything else is a storage failure.
func (s *Service) storeError(ctx context.Context, op, taskID string, err error) error {
	switch {
	case errors.Is(err, store.ErrBatchTooLarge):
		s.Logger.Warn(ctx, "store "+op+" rejected batch", logging.Fields{"task_id": taskID}, err)
		return fmt.Errorf("%s: %w: %w", op, ErrTooManyFiles, err)
	case errors.Is(err, store.ErrEmptyTaskID):
		return fmt.Errorf("%s: %w: %w", op, ErrMissingParameter, err)
	}

	s.Logger.Error(ctx, "store "+op+" failed", logging.Fields{"task_id": taskID}, err)
	if s.Metrics != nil {
		s.Metrics.RecordStorageFailure()
	}
	return storageFailure(op, err)
}

// Upload stores every file whose name is not yet present for taskID.
//
// Validation runs before any store access: an empty taskID fails with
// ErrMissingParameter, an empty file list with ErrNoFilesProvided. Names are
// compared exactly. A name repeated within files is new only the first time.
func (s *Service) Upload(ctx context.Context, taskID string, files []File) (Result, error) {
	if taskID == "" {
		return Result{}, ErrMissingParameter
	}
	if len(files) == 0 {
		return Result{}, ErrNoFilesProvided
	}
	start := time.Now()

	readCtx, cancel := s.storeCtx(ctx)
	existing, err := s.Store.FindByTask(readCtx, taskID)
	cancel()
	if err != nil {
		return Result{}, s.storeError(ctx, "find", taskID, err)
	}

	seen := make(map[string]struct{}, len(existing)+len(files))
	for _, rec := range existing {
		seen[rec.Filename] = struct{}{}
	}

	var (
		fresh []store.FileRecord
		bytes int64
	)
	for _, f := range files {
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = struct{}{}
		fresh = append(fresh, store.FileRecord{
			TaskID:   taskID,
			Filename: f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
			Data:     f.Data,
		})
		bytes += int64(len(f.Data))
	}

	res := Result{Outcome: AlreadyExists, Duplicates: len(files) - len(fresh)}
	if len(fresh) == 0 {
		s.Logger.Info(ctx, "upload skipped, all files exist", logging.Fields{
			"task_id": taskID,
			"files":   len(files),
		})
		s.record(res, 0, start)
		return res, nil
	}

	writeCtx, cancel := s.storeCtx(ctx)
	n, err := s.Store.InsertAll(writeCtx, fresh)
	cancel()
	if err != nil {
		return Result{}, s.storeError(ctx, "insert", taskID, err)
	}

	// n < len(fresh) only when a concurrent upload stored the same names first.
	res.Duplicates += len(fresh) - n
	if n > 0 {
		res.Outcome = Inserted
		res.NewFiles = n
	}

	s.Logger.Info(ctx, "upload stored", logging.Fields{
		"task_id":    taskID,
		"new_files":  res.NewFiles,
		"duplicates": res.Duplicates,
		"bytes":      bytes,
	})
	s.record(res, bytes, start)
	return res, nil
}

func (s *Service) record(res Result, bytes int64, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.RecordUpload(res, bytes, time.Since(start))
	}
}

// Files returns every record stored for taskID, payloads included.
func (s *Service) Files(ctx context.Context, taskID string) ([]store.FileRecord, error) {
	if taskID == "" {
		return nil, ErrMissingParameter
	}
	start := time.Now()

	readCtx, cancel := s.storeCtx(ctx)
	records, err := s.Store.FindByTask(readCtx, taskID)
	cancel()
	if err != nil {
		return nil, s.storeError(ctx, "find", taskID, err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	if s.Metrics != nil {
		s.Metrics.RecordRetrieval(len(records), time.Since(start))
	}
	return records, nil
}
