// Package jobs persists job records. The scheduler only depends on the Store
// interface; SQLiteStore is the default backend and PostgresStore is used when
// STORE_DRIVER=postgres.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

// Store is the CRUD capability over job records keyed by id. List returns
// records in insertion order.
type Store interface {
	Put(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, kind models.JobKind) ([]models.Job, error)
	Delete(ctx context.Context, id string) (bool, error)
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS jobs (
	"seq" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"id" TEXT NOT NULL UNIQUE,
	"kind" TEXT NOT NULL,
	"status" TEXT NOT NULL,
	"payload" TEXT NOT NULL,
	"created_at" DATETIME NOT NULL,
	"updated_at" DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_kind_status ON jobs (kind, status);`

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the jobs table when missing.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func marshalJob(job *models.Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return string(payload), nil
}

func unmarshalJob(payload []byte) (models.Job, error) {
	var job models.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return job, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	return job, nil
}

// Put inserts the job or replaces the stored copy, keeping its position.
func (s *SQLiteStore) Put(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	payload, err := marshalJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (id, kind, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, payload = excluded.payload, updated_at = excluded.updated_at`,
		job.ID, job.Kind, job.Status, payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM jobs WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("job %s", id)
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	job, err := unmarshalJob([]byte(payload))
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the jobs of one kind, or all jobs when kind is empty.
func (s *SQLiteStore) List(ctx context.Context, kind models.JobKind) ([]models.Job, error) {
	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT payload FROM jobs ORDER BY seq")
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT payload FROM jobs WHERE kind = ? ORDER BY seq", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	list := []models.Job{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		job, err := unmarshalJob([]byte(payload))
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during job rows iteration: %w", err)
	}
	return list, nil
}

// Delete removes the record and reports whether one existed.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
