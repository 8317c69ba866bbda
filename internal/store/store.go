// Package store is the document store gateway for uploaded task files. It
// owns connection lifecycle; callers receive a ready handle and only ever
// find records by task or insert batches of new ones.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyTaskID is returned when a lookup or record lacks a task id.
	ErrEmptyTaskID = errors.New("task id is empty")
	// ErrBatchTooLarge is returned when a batch cannot fit in one statement.
	ErrBatchTooLarge = errors.New("batch too large")
)

// IsRequestError reports whether err rejects the arguments of a call rather
// than signalling a store fault. Such errors say nothing about backend health.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrEmptyTaskID) || errors.Is(err, ErrBatchTooLarge)
}

// FileRecord is one stored upload.
type FileRecord struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	Data       []byte    `json:"data"`
	ObjectKey  string    `json:"-"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store is the gateway the upload and retrieval flows depend on.
//
// InsertAll writes the batch in a single operation and returns the number of
// records actually stored. Records whose (TaskID, Filename) pair already exists
// are skipped rather than failing the batch.
type Store interface {
	FindByTask(ctx context.Context, taskID string) ([]FileRecord, error)
	InsertAll(ctx context.Context, records []FileRecord) (int, error)
}

// Pinger is implemented by gateways that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by gateways that hold connections.
type Closer interface {
	Close() error
}
