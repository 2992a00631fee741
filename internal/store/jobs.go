package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"engram/internal/logging"
	"engram/internal/types"
)

// EnqueueJob inserts a queue entry unless an identical (type, payload)
// job is already queued or running. Returns the job id and whether a new
// row was created.
func (s *Store) EnqueueJob(jobType string, payload map[string]any) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON := types.CanonicalPayload(payload)

	var existing string
	err := s.db.QueryRow(
		`SELECT job_id FROM job
		 WHERE type = ? AND payload_json = ? AND status IN ('queued', 'running')
		 LIMIT 1`,
		jobType, payloadJSON,
	).Scan(&existing)
	if err == nil {
		logging.QueueDebug("Duplicate %s job suppressed (existing %s)", jobType, existing)
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("failed to check duplicate job: %w", err)
	}

	id := types.NewID()
	now := isoNow()
	_, err = s.db.Exec(
		`INSERT INTO job (job_id, type, status, payload_json, attempts, created_at, updated_at)
		 VALUES (?, ?, 'queued', ?, 0, ?, ?)`,
		id, jobType, payloadJSON, now, now,
	)
	if err != nil {
		return "", false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	logging.Queue("Enqueued %s job %s", jobType, id)
	return id, true, nil
}

// ClaimJob atomically flips the oldest queued job to running and returns
// it. Returns ErrNotFound when the queue is empty.
func (s *Store) ClaimJob() (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var job types.Job
	var payloadJSON, createdAt, updatedAt string
	err = tx.QueryRow(
		`SELECT job_id, type, status, payload_json, attempts, error, created_at, updated_at
		 FROM job WHERE status = 'queued' ORDER BY created_at ASC, job_id ASC LIMIT 1`,
	).Scan(&job.JobID, &job.Type, &job.Status, &payloadJSON, &job.Attempts, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queued job: %w", err)
	}

	job.Attempts++
	job.Status = types.JobRunning
	_, err = tx.Exec(
		`UPDATE job SET status = 'running', attempts = ?, updated_at = ? WHERE job_id = ?`,
		job.Attempts, isoNow(), job.JobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		job.Payload = map[string]any{}
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	logging.QueueDebug("Claimed job %s (%s, attempt %d)", job.JobID, job.Type, job.Attempts)
	return &job, nil
}

// CompleteJob moves a job to a terminal status with an optional error
// message.
func (s *Store) CompleteJob(jobID, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE job SET status = ?, error = ?, updated_at = ? WHERE job_id = ?`,
		status, errMsg, isoNow(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	logging.QueueDebug("Job %s completed with status %s", jobID, status)
	return nil
}

// GetJob returns one job row.
func (s *Store) GetJob(jobID string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var job types.Job
	var payloadJSON, createdAt, updatedAt string
	err := s.db.QueryRow(
		`SELECT job_id, type, status, payload_json, attempts, error, created_at, updated_at
		 FROM job WHERE job_id = ?`, jobID,
	).Scan(&job.JobID, &job.Type, &job.Status, &payloadJSON, &job.Attempts, &job.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	if err := json.Unmarshal([]byte(payloadJSON), &job.Payload); err != nil {
		job.Payload = map[string]any{}
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &job, nil
}

// CountJobs returns job counts per status.
func (s *Store) CountJobs() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM job GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
