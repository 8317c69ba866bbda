package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const (
	fileRecordsTable = "file_records"

	// PostgreSQL caps bind parameters per statement at 65535.
	maxBindParams = 65535
)

var insertColumns = []string{"id", "task_id", "filename", "mimetype", "size", "data", "object_key", "uploaded_at"}

// PGStore keeps file records in PostgreSQL. The pool is opened and closed by
// the caller; PGStore never closes it.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPGStore wraps an open pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

var _ Store = (*PGStore)(nil)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// FindByTask returns every record for the task in the table's scan order.
func (s *PGStore) FindByTask(ctx context.Context, taskID string) ([]FileRecord, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}

	sqlStr, args, err := psql().
		Select(
			"id",
			"task_id",
			"filename",
			"mimetype",
			"size",
			"COALESCE(data, ''::bytea) AS data",
			"COALESCE(object_key, '') AS object_key",
			"uploaded_at",
		).
		From(fileRecordsTable).
		Where(sq.Eq{"task_id": taskID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query file records: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.TaskID,
			&rec.Filename,
			&rec.MimeType,
			&rec.Size,
			&rec.Data,
			&rec.ObjectKey,
			&rec.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file records: %w", err)
	}

	return out, nil
}

// InsertAll writes the batch as one multi-row INSERT. Rows colliding with an
// existing (task_id, filename) are skipped by the unique index, so the count
// returned can be lower than len(records).
func (s *PGStore) InsertAll(ctx context.Context, records []FileRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if len(records)*len(insertColumns) > maxBindParams {
		return 0, fmt.Errorf("%w: %d records", ErrBatchTooLarge, len(records))
	}

	now := s.now().UTC()
	builder := psql().Insert(fileRecordsTable).Columns(insertColumns...)
	for _, rec := range records {
		if rec.TaskID == "" {
			return 0, ErrEmptyTaskID
		}
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		uploadedAt := rec.UploadedAt
		if uploadedAt.IsZero() {
			uploadedAt = now
		}
		builder = builder.Values(
			id,
			rec.TaskID,
			rec.Filename,
			rec.MimeType,
			rec.Size,
			nullableBytes(rec.Data),
			nullableString(rec.ObjectKey),
			uploadedAt,
		)
	}

	sqlStr, args, err := builder.
		Suffix("ON CONFLICT (task_id, filename) DO NOTHING").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert file records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(n), nil
}

// Ping checks the pool can reach the database.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
