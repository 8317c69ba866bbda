package uploads

import (
	"errors"
	"fmt"
)

var (
	ErrMissingParameter = errors.New("taskId is required")
	ErrNoFilesProvided  = errors.New("no files provided")
	ErrNotFound         = errors.New("no files found for this taskId")
	ErrStorageFailure   = errors.New("storage failure")
	ErrTooManyFiles     = errors.New("too many files in one upload")
)

// storageFailure tags err as ErrStorageFailure while keeping the cause.
func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
