package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/store"
)

// JobService is the job manager: the single code path through which job
// records are created and mutated. It keeps progress monotonic and refuses
// writes to jobs that already reached a terminal status.
type JobService struct {
	store store.JobStore
}

func NewJobService(jobStore store.JobStore) *JobService {
	return &JobService{store: jobStore}
}

// Create persists a new pending job with progress 0.
func (s *JobService) Create(ctx context.Context, projectID string, jobType model.JobType, payload model.SceneJobPayload) (*model.Job, error) {
	return s.CreateWithID(ctx, uuid.New().String(), projectID, jobType, payload)
}

// CreateWithID persists a new pending job under a caller-chosen ID, for
// callers that need the ID to exist before the record does.
func (s *JobService) CreateWithID(ctx context.Context, id, projectID string, jobType model.JobType, payload model.SceneJobPayload) (*model.Job, error) {
	now := time.Now()
	job := &model.Job{
		ID:        id,
		ProjectID: projectID,
		Type:      jobType,
		Status:    model.JobStatusPending,
		Progress:  0,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// Get returns a job by ID.
func (s *JobService) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// Update merges the non-nil fields of update into the job and persists it
// as a single write. Progress never decreases and terminal jobs are
// immutable, so interleaved writers cannot move a job backwards.
func (s *JobService) Update(ctx context.Context, jobID string, update model.JobUpdate) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Progress != nil && *update.Progress > job.Progress {
		job.Progress = *update.Progress
	}
	if update.Payload != nil {
		job.Payload = *update.Payload
	}
	if update.Result != nil {
		job.Result = update.Result
	}
	if update.Error != nil {
		job.Error = update.Error
	}
	job.UpdatedAt = time.Now()

	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

// ListByProject returns a project's jobs newest-first, optionally filtered
// by type.
func (s *JobService) ListByProject(ctx context.Context, projectID string, typeFilter model.JobType) ([]*model.Job, error) {
	return s.store.ListJobsByProject(ctx, projectID, typeFilter)
}
