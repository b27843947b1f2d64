package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adawatch/adasync/internal/chain"
)

// JobTypeWalletSync is the job type handled by the sync worker.
const JobTypeWalletSync = "wallet_sync"

// maxBackoff caps the retry delay regardless of retry count.
const maxBackoff = time.Hour

// SyncJob is one durable unit of queued work.
type SyncJob struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"wallet_address"`
	UserID        string          `json:"user_id,omitempty"`
	JobType       string          `json:"job_type"`
	Status        chain.JobStatus `json:"status"`
	Priority      int             `json:"priority"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	ScheduledAt   time.Time       `json:"scheduled_at"`
	StartedAt     time.Time       `json:"started_at,omitempty"`
	CompletedAt   time.Time       `json:"completed_at,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EnqueueJob adds a wallet job to the queue. If the wallet already has an
// active (pending or processing) job of the same type, that job is returned
// instead of creating a duplicate. metadata seeds the job's metadata (resync
// overrides like fromBlock, the wallet's stake address); nil is fine.
func (s *Storage) EnqueueJob(ctx context.Context, walletAddress, userID, jobType string, priority, maxRetries int, metadata map[string]any) (*SyncJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sync_jobs
		WHERE wallet_address = ? AND job_type = ? AND status IN ('pending', 'processing')
		LIMIT 1`, walletAddress, jobType).Scan(&existingID)
	if err == nil {
		job, err := s.getJob(ctx, existingID)
		return job, false, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to check active jobs: %w", err)
	}

	now := s.now()
	job := &SyncJob{
		ID:            uuid.New().String(),
		WalletAddress: walletAddress,
		UserID:        userID,
		JobType:       jobType,
		Status:        chain.JobPending,
		Priority:      priority,
		MaxRetries:    maxRetries,
		ScheduledAt:   now,
		Metadata:      metadata,
		CreatedAt:     now,
	}

	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, false, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, wallet_address, user_id, job_type, status, priority,
		                       retry_count, max_retries, scheduled_at, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.WalletAddress, nullIfEmpty(job.UserID), job.JobType,
		string(job.Status), job.Priority, job.MaxRetries,
		now.Unix(), meta, now.Unix())
	if err != nil {
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, true, nil
}

// ClaimJob atomically claims the next due job of the given type: highest
// priority first, oldest schedule first within a priority. Returns nil when
// nothing is due. A job selected but claimed by a concurrent worker in the
// meantime is treated as nothing due.
func (s *Storage) ClaimJob(ctx context.Context, jobType string) (*SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM sync_jobs
		WHERE job_type = ? AND status = 'pending' AND scheduled_at <= ?
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT 1`, jobType, now.Unix()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select job: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = 'processing', started_at = ?
		WHERE id = ? AND status = 'pending'`, now.Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		// lost the race to another worker
		return nil, nil
	}

	return s.getJob(ctx, id)
}

// CompleteJob marks a processing job completed and stores its result
// metadata. Completing a job that was cancelled mid-run is a silent no-op
// so the cancellation sticks.
func (s *Storage) CompleteJob(ctx context.Context, id string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := marshalMetadata(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = 'completed', completed_at = ?, metadata = ?
		WHERE id = ? AND status = 'processing'`,
		s.now().Unix(), meta, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// FailJob records a job failure. A retryable failure with retries left goes
// back to pending with an exponential delay; anything else fails permanently.
func (s *Storage) FailJob(ctx context.Context, id string, jobErr error, retryable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var retryCount, maxRetries int
	err := s.db.QueryRowContext(ctx,
		`SELECT retry_count, max_retries FROM sync_jobs WHERE id = ?`, id).
		Scan(&retryCount, &maxRetries)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load job for failure: %w", err)
	}

	now := s.now()
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}

	if !retryable || retryCount >= maxRetries {
		_, err = s.db.ExecContext(ctx, `
			UPDATE sync_jobs SET status = 'failed', completed_at = ?, error_message = ?
			WHERE id = ? AND status = 'processing'`,
			now.Unix(), msg, id)
		if err != nil {
			return fmt.Errorf("failed to fail job: %w", err)
		}
		return nil
	}

	retryCount++
	delay := backoffDelay(retryCount)
	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = 'pending', started_at = NULL, retry_count = ?,
		    scheduled_at = ?, error_message = ?
		WHERE id = ? AND status = 'processing'`,
		retryCount, now.Add(delay).Unix(), msg, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// CancelJob cancels a pending or processing job. A processing job keeps
// running until its worker observes the cancellation at the next
// transaction boundary. Cancelling a job already in a terminal state is a
// no-op.
func (s *Storage) CancelJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`,
		s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM sync_jobs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// JobCancelled reports whether the job has been cancelled. Workers poll
// this between transactions to stop early.
func (s *Storage) JobCancelled(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM sync_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return chain.JobStatus(status) == chain.JobCancelled, nil
}

// UpdateJobProgress merges progress fields into the job's metadata while it
// is processing.
func (s *Storage) UpdateJobProgress(ctx context.Context, id string, progress map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.getJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]any, len(progress))
	}
	for k, v := range progress {
		job.Metadata[k] = v
	}

	meta, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET metadata = ? WHERE id = ? AND status = 'processing'`,
		meta, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// ResetStuckJobs returns jobs stuck in processing longer than threshold to
// pending, without consuming a retry. It reports how many were reset.
func (s *Storage) ResetStuckJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-threshold).Unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = 'pending', started_at = NULL, scheduled_at = ?,
		    error_message = 'reset due to timeout'
		WHERE status = 'processing' AND started_at IS NOT NULL AND started_at < ?`,
		s.now().Unix(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// CleanupJobs deletes terminal jobs created before the retention window.
// It reports how many were deleted.
func (s *Storage) CleanupJobs(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetJob returns a job by id.
func (s *Storage) GetJob(ctx context.Context, id string) (*SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJob(ctx, id)
}

// ListJobsByWallet returns a wallet's jobs, newest first.
func (s *Storage) ListJobsByWallet(ctx context.Context, walletAddress string, limit int) ([]*SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, jobColumns+`
		WHERE wallet_address = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, walletAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*SyncJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// QueueStats is a snapshot of queue depth by status.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}

// JobStats counts jobs by status.
func (s *Storage) JobStats(ctx context.Context) (*QueueStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch chain.JobStatus(status) {
		case chain.JobPending:
			stats.Pending = n
		case chain.JobProcessing:
			stats.Processing = n
		case chain.JobCompleted:
			stats.Completed = n
		case chain.JobFailed:
			stats.Failed = n
		case chain.JobCancelled:
			stats.Cancelled = n
		}
	}
	return &stats, rows.Err()
}

const jobColumns = `
	SELECT id, wallet_address, user_id, job_type, status, priority,
	       retry_count, max_retries, scheduled_at, started_at, completed_at,
	       error_message, metadata, created_at
	FROM sync_jobs`

func (s *Storage) getJob(ctx context.Context, id string) (*SyncJob, error) {
	row := s.db.QueryRowContext(ctx, jobColumns+` WHERE id = ?`, id)
	return scanJob(row.Scan)
}

func scanJob(scan func(dest ...any) error) (*SyncJob, error) {
	var j SyncJob
	var userID, errMsg sql.NullString
	var status, metadata string
	var scheduledAt, createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := scan(&j.ID, &j.WalletAddress, &userID, &j.JobType, &status, &j.Priority,
		&j.RetryCount, &j.MaxRetries, &scheduledAt, &startedAt, &completedAt,
		&errMsg, &metadata, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	j.UserID = userID.String
	j.ErrorMessage = errMsg.String
	if j.Status, err = chain.ParseJobStatus(status); err != nil {
		return nil, err
	}
	j.ScheduledAt = time.Unix(scheduledAt, 0)
	j.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		j.StartedAt = time.Unix(startedAt.Int64, 0)
	}
	if completedAt.Valid {
		j.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode job metadata: %w", err)
		}
	}
	return &j, nil
}

// backoffDelay is the retry delay after the given attempt: 2^n minutes,
// capped at maxBackoff.
func backoffDelay(retryCount int) time.Duration {
	if retryCount > 10 {
		retryCount = 10
	}
	d := time.Duration(1<<uint(retryCount)) * time.Minute
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode job metadata: %w", err)
	}
	return string(b), nil
}
