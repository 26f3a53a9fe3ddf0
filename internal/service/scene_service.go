package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/store"
)

// Task types processed by the scene pipeline workers
const (
	TaskTypeSelectScenes    = "scenes:select"
	TaskTypeGeneratePrompts = "scenes:prompts"
)

// Estimated stage durations reported to the client, in seconds
const (
	estimatedSelectDuration  = 60.0
	estimatedPromptsDuration = 45.0
)

var (
	// ErrAccessDenied means the caller does not own the project
	ErrAccessDenied = errors.New("access denied")

	// ErrNoTranscript means the project has no transcription data yet
	ErrNoTranscript = errors.New("project has no transcription data")

	// ErrAlreadyProcessing means scene selection was already run for the project
	ErrAlreadyProcessing = errors.New("project scenes already processing or completed")

	// ErrNoScenes means the project has no scenes to generate prompts for
	ErrNoScenes = errors.New("project has no scenes")

	// ErrGenerationFailed means a synchronous generation call did not produce
	// a usable result
	ErrGenerationFailed = errors.New("generation failed")
)

// TaskPayload is the asynq task body for both pipeline stages
type TaskPayload struct {
	JobID     string `json:"jobId"`
	ProjectID string `json:"projectId"`
}

// Enqueuer schedules a stage task for execution on the worker server
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload []byte) error
}

// AsynqEnqueuer submits stage tasks to the asynq scenes queue. MaxRetry is
// zero: each job gets exactly one execution attempt, and the worker turns
// any fault into a job-failure write.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	task := asynq.NewTask(taskType, payload)
	_, err := e.client.EnqueueContext(ctx, task,
		asynq.Queue("scenes"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// SceneService is the pipeline controller: it validates preconditions,
// creates job records, schedules stage executors, chains selection into
// prompt generation, and projects job records into client-facing status.
type SceneService struct {
	store    store.Store
	jobs     *JobService
	director Director
	enqueuer Enqueuer
}

func NewSceneService(st store.Store, jobs *JobService, director Director, enqueuer Enqueuer) *SceneService {
	return &SceneService{
		store:    st,
		jobs:     jobs,
		director: director,
		enqueuer: enqueuer,
	}
}

// StartSceneSelection schedules the scene selection stage for a project.
func (s *SceneService) StartSceneSelection(ctx context.Context, userID, projectID string) (*model.SceneJobResponse, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	if project.Transcript == nil || len(project.Transcript.Segments) == 0 {
		return nil, ErrNoTranscript
	}
	if project.Status == model.ProjectStatusScenesProcessing || project.Status == model.ProjectStatusScenesCompleted {
		return nil, ErrAlreadyProcessing
	}

	job, err := s.claimStage(ctx, project.ID, model.JobTypeSelectScenes, 0)
	if err != nil {
		return nil, err
	}

	// The project must look in-flight before the task can run, so a fast
	// worker's status writes always land after this one.
	status := model.ProjectStatusScenesProcessing
	if _, err := s.store.UpdateProject(ctx, project.ID, &model.ProjectUpdate{Status: &status}); err != nil {
		s.releaseSlot(ctx, project.ID, model.JobTypeSelectScenes)
		s.failJob(ctx, job.ID, fmt.Sprintf("failed to update project status: %v", err))
		return nil, fmt.Errorf("failed to update project status: %w", err)
	}

	if err := s.dispatchStage(ctx, job, TaskTypeSelectScenes); err != nil {
		failed := model.ProjectStatusFailed
		_, _ = s.store.UpdateProject(ctx, project.ID, &model.ProjectUpdate{Status: &failed})
		return nil, err
	}

	return &model.SceneJobResponse{
		JobID:             job.ID,
		Status:            "started",
		EstimatedDuration: estimatedSelectDuration,
	}, nil
}

// StartPromptGeneration schedules (or re-schedules) the visual prompt
// fan-out for a project whose scenes already exist.
func (s *SceneService) StartPromptGeneration(ctx context.Context, userID, projectID string) (*model.SceneJobResponse, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	job, err := s.schedulePromptJob(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	return &model.SceneJobResponse{
		JobID:             job.ID,
		Status:            "started",
		EstimatedDuration: estimatedPromptsDuration,
	}, nil
}

// ChainPromptGeneration schedules the fan-out stage after a successful
// scene selection. Called by the selection worker; no ownership check.
func (s *SceneService) ChainPromptGeneration(ctx context.Context, projectID string) (*model.Job, error) {
	return s.schedulePromptJob(ctx, projectID)
}

func (s *SceneService) schedulePromptJob(ctx context.Context, projectID string) (*model.Job, error) {
	scenes, err := s.store.ListScenes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenes: %w", err)
	}
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}

	job, err := s.claimStage(ctx, projectID, model.JobTypeGeneratePrompts, len(scenes))
	if err != nil {
		return nil, err
	}
	if err := s.dispatchStage(ctx, job, TaskTypeGeneratePrompts); err != nil {
		return nil, err
	}
	return job, nil
}

// claimStage claims the per-(project, type) slot at the storage layer and
// then creates the job record under the claimed ID. A rejected claim is a
// request error; no job record is written for it.
func (s *SceneService) claimStage(ctx context.Context, projectID string, jobType model.JobType, totalCount int) (*model.Job, error) {
	jobID := uuid.New().String()
	if err := s.store.AcquireJobSlot(ctx, projectID, jobType, jobID); err != nil {
		return nil, err
	}

	job, err := s.jobs.CreateWithID(ctx, jobID, projectID, jobType, model.SceneJobPayload{
		ProjectID:  projectID,
		Stage:      model.StageInitializing,
		TotalCount: totalCount,
	})
	if err != nil {
		s.releaseSlot(ctx, projectID, jobType)
		return nil, err
	}
	return job, nil
}

// dispatchStage enqueues the stage task for a claimed job. An enqueue
// failure releases the slot and marks the job failed.
func (s *SceneService) dispatchStage(ctx context.Context, job *model.Job, taskType string) error {
	payload, err := json.Marshal(TaskPayload{JobID: job.ID, ProjectID: job.ProjectID})
	if err != nil {
		s.releaseSlot(ctx, job.ProjectID, job.Type)
		s.failJob(ctx, job.ID, fmt.Sprintf("failed to marshal task payload: %v", err))
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	if err := s.enqueuer.Enqueue(ctx, taskType, payload); err != nil {
		s.releaseSlot(ctx, job.ProjectID, job.Type)
		s.failJob(ctx, job.ID, fmt.Sprintf("failed to enqueue task: %v", err))
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (s *SceneService) failJob(ctx context.Context, jobID, errMsg string) {
	status := model.JobStatusFailed
	// Best effort; the record may already be terminal
	_, _ = s.jobs.Update(ctx, jobID, model.JobUpdate{Status: &status, Error: &errMsg})
}

func (s *SceneService) releaseSlot(ctx context.Context, projectID string, jobType model.JobType) {
	_ = s.store.ReleaseJobSlot(ctx, projectID, jobType)
}

// JobStatus projects a job record into the normalized polling view. The
// caller must own the job's project.
func (s *SceneService) JobStatus(ctx context.Context, userID, jobID string) (*model.SceneJobStatusResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedProject(ctx, userID, job.ProjectID); err != nil {
		return nil, err
	}

	return &model.SceneJobStatusResponse{
		JobID:            job.ID,
		Status:           job.Status,
		Progress:         float64(job.Progress) / 100.0,
		CompletedPrompts: job.Payload.CompletedCount,
		TotalPrompts:     job.Payload.TotalCount,
		ErrorMessage:     job.Error,
	}, nil
}

// ProjectScenes returns the ordered scene list with embedded prompts.
func (s *SceneService) ProjectScenes(ctx context.Context, userID, projectID string) (*model.ProjectScenesResponse, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	scenes, err := s.store.ListScenes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenes: %w", err)
	}

	completed := 0
	for _, scene := range scenes {
		if scene.PromptStatus == model.PromptStatusCompleted {
			completed++
		}
	}

	return &model.ProjectScenesResponse{
		ProjectID:        projectID,
		Status:           project.Status,
		Scenes:           scenes,
		CompletedPrompts: completed,
		TotalPrompts:     len(scenes),
	}, nil
}

// RegenerateScenePrompt performs one synchronous generation call for a
// single scene, outside the job-tracking system.
func (s *SceneService) RegenerateScenePrompt(ctx context.Context, userID, projectID string, sceneID int) (*model.VisualPrompt, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	scene, err := s.store.GetScene(ctx, projectID, sceneID)
	if err != nil {
		return nil, err
	}

	prompt, err := s.director.GenerateVisualPrompt(ctx, scene, project.SelectedReferenceImages, project.Song)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if err := s.store.UpdateScenePrompt(ctx, projectID, sceneID, prompt, model.PromptStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to save regenerated prompt: %w", err)
	}

	return prompt, nil
}

func (s *SceneService) ownedProject(ctx context.Context, userID, projectID string) (*model.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != userID {
		return nil, ErrAccessDenied
	}
	return project, nil
}
