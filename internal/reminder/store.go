package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("reminder job not found")

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so jobs can be enqueued
// inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is what the Worker needs from persistence.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, workerID string) ([]Job, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

const jobColumns = `id, booking_id, job_type, fire_at, payload, status, attempts,
	last_error, claimed_at, claimed_by, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var payload []byte

	err := row.Scan(
		&j.ID,
		&j.BookingID,
		&j.JobType,
		&j.FireAt,
		&payload,
		&j.Status,
		&j.Attempts,
		&j.LastError,
		&j.ClaimedAt,
		&j.ClaimedBy,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	j.Payload = payload
	return &j, nil
}

// InsertJob persists job as pending. Timestamps are filled from the
// returned row.
func InsertJob(ctx context.Context, db DBTX, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	row := db.QueryRow(ctx, `
		INSERT INTO reminder_jobs (id, booking_id, job_type, fire_at, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', now(), now())
		RETURNING `+jobColumns,
		job.ID, job.BookingID, job.JobType, job.FireAt, []byte(job.Payload))

	stored, err := scanJob(row)
	if err != nil {
		return fmt.Errorf("insert reminder job: %w", err)
	}
	*job = *stored
	return nil
}

// CancelForBooking marks every still-pending job of a booking cancelled.
// Jobs already claimed are left alone.
func CancelForBooking(ctx context.Context, db DBTX, bookingID uuid.UUID) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled',
		    updated_at = now()
		WHERE booking_id = $1
		  AND status = 'pending'
	`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminder jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Schedule durably enqueues a job of jobType to fire at or after fireAt.
// A fireAt in the past is accepted and picked up on the next poll.
func (s *PgStore) Schedule(ctx context.Context, fireAt time.Time, jobType string, payload any) (*Job, error) {
	job, err := NewJob(jobType, fireAt, nil, payload)
	if err != nil {
		return nil, err
	}
	if err := InsertJob(ctx, s.pool, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimDue flips up to limit due pending jobs to claimed and returns them.
// SKIP LOCKED lets several workers poll the same table without blocking
// each other or claiming the same row.
func (s *PgStore) ClaimDue(ctx context.Context, now time.Time, limit int, workerID string) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE reminder_jobs
		SET status = 'claimed',
		    claimed_at = $1,
		    claimed_by = $3,
		    attempts = attempts + 1,
		    updated_at = now()
		WHERE id IN (
			SELECT id
			FROM reminder_jobs
			WHERE status = 'pending'
			  AND fire_at <= $1
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		now, limit, workerID)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	return collectJobs(rows)
}

func (s *PgStore) MarkDone(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, StatusDone, nil)
}

func (s *PgStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, StatusFailed, &reason)
}

func (s *PgStore) finish(ctx context.Context, id uuid.UUID, to JobStatus, reason *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = $2,
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'claimed'
	`, id, to, reason)
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	defer rows.Close()

	var result []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
