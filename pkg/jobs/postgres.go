package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"site-timelapse/pkg/errs"
	"site-timelapse/pkg/models"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS jobs (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_kind_status ON jobs (kind, status);`

type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to connStr, retrying a few times while the
// database starts, and creates the jobs table when missing.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < 5; i++ {
		pool, err = pgxpool.New(ctx, connStr)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Postgres not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create jobs table: %w", err)
	}
	log.Info().Msg("✅ Postgres job store ready")
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Put(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	payload, err := marshalJob(job)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO jobs (id, kind, status, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		job.ID, string(job.Kind), string(job.Status), payload, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, "SELECT payload FROM jobs WHERE id = $1", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("job %s", id)
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	job, err := unmarshalJob(payload)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *PostgresStore) List(ctx context.Context, kind models.JobKind) ([]models.Job, error) {
	var rows pgx.Rows
	var err error
	if kind == "" {
		rows, err = s.db.Query(ctx, "SELECT payload FROM jobs ORDER BY seq")
	} else {
		rows, err = s.db.Query(ctx, "SELECT payload FROM jobs WHERE kind = $1 ORDER BY seq", string(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	list := []models.Job{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		job, err := unmarshalJob(payload)
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

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
