package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/service"
	"github.com/omvee/api/internal/store"
	"github.com/omvee/api/internal/websocket"
)

// PromptFanoutWorker executes the visual prompt fan-out: one independent
// generation call per scene, all running concurrently, aggregated into a
// single job record.
type PromptFanoutWorker struct {
	store    store.Store
	jobs     *service.JobService
	director service.Director
	hub      *websocket.Hub
}

func NewPromptFanoutWorker(st store.Store, jobs *service.JobService, director service.Director, hub *websocket.Hub) *PromptFanoutWorker {
	return &PromptFanoutWorker{
		store:    st,
		jobs:     jobs,
		director: director,
		hub:      hub,
	}
}

// errFanoutFailed marks a failure that finish already recorded on the job
var errFanoutFailed = errors.New("prompt fan-out failed")

// promptOutcome is one settled fan-out call
type promptOutcome struct {
	sceneID int
	prompt  *model.VisualPrompt
	err     error
}

// ProcessTask handles one fan-out task. Per-scene failures are recorded
// without aborting siblings; the job fails only when no scene succeeds.
func (w *PromptFanoutWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	defer w.store.ReleaseJobSlot(context.Background(), payload.ProjectID, model.JobTypeGeneratePrompts)

	log.Printf("Starting prompt fan-out job %s for project %s", payload.JobID, payload.ProjectID)

	if err := w.run(ctx, payload); err != nil {
		if !errors.Is(err, errFanoutFailed) {
			w.failJob(ctx, payload, err)
		}
		return err
	}
	return nil
}

func (w *PromptFanoutWorker) run(ctx context.Context, payload service.TaskPayload) error {
	project, err := w.store.GetProject(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	scenes, err := w.store.ListScenes(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load scenes: %w", err)
	}
	total := len(scenes)
	if total == 0 {
		return fmt.Errorf("project has no scenes")
	}

	if err := w.updateJob(ctx, payload, model.JobStatusRunning, 10, 0, total, nil); err != nil {
		return err
	}

	// Fan out one generation call per scene. Each call is independent and
	// order-insensitive; outcomes arrive on a single channel so the job
	// record has exactly one writer.
	outcomes := make(chan promptOutcome, total)
	for _, scene := range scenes {
		go func(scene *model.Scene) {
			prompt, err := w.director.GenerateVisualPrompt(ctx, scene, project.SelectedReferenceImages, project.Song)
			outcomes <- promptOutcome{sceneID: scene.SceneID, prompt: prompt, err: err}
		}(scene)
	}

	completed := 0
	var failures []string
	for i := 0; i < total; i++ {
		outcome := <-outcomes
		if outcome.err != nil {
			failures = append(failures, fmt.Sprintf("scene %d: %v", outcome.sceneID, outcome.err))
			log.Printf("Prompt generation failed for scene %d of project %s: %v", outcome.sceneID, payload.ProjectID, outcome.err)
			continue
		}

		if err := w.store.UpdateScenePrompt(ctx, payload.ProjectID, outcome.sceneID, outcome.prompt, model.PromptStatusCompleted); err != nil {
			failures = append(failures, fmt.Sprintf("scene %d: persist: %v", outcome.sceneID, err))
			continue
		}

		completed++
		progress := 20 + (70*completed)/total
		if err := w.updateJob(ctx, payload, model.JobStatusRunning, progress, completed, total, nil); err != nil {
			return err
		}
	}

	return w.finish(ctx, payload, completed, total, failures)
}

func (w *PromptFanoutWorker) finish(ctx context.Context, payload service.TaskPayload, completed, total int, failures []string) error {
	if completed == 0 {
		msg := fmt.Sprintf("all %d prompt generations failed: %s", total, strings.Join(failures, "; "))
		failed := model.JobStatusFailed
		if _, err := w.jobs.Update(ctx, payload.JobID, model.JobUpdate{
			Status: &failed,
			Error:  &msg,
			Payload: &model.SceneJobPayload{
				ProjectID:      payload.ProjectID,
				Stage:          model.StageFailed,
				CompletedCount: 0,
				TotalCount:     total,
			},
		}); err != nil {
			log.Printf("Failed to mark job %s as failed: %v", payload.JobID, err)
		}

		projectStatus := model.ProjectStatusFailed
		if _, err := w.store.UpdateProject(ctx, payload.ProjectID, &model.ProjectUpdate{Status: &projectStatus}); err != nil {
			log.Printf("Failed to mark project %s as failed: %v", payload.ProjectID, err)
		}

		if w.hub != nil {
			w.hub.BroadcastError(payload.JobID, "PROMPT_GENERATION_FAILED", msg)
		}
		return fmt.Errorf("%w: %s", errFanoutFailed, msg)
	}

	status := model.JobStatusCompleted
	var errMsg *string
	if len(failures) > 0 {
		status = model.JobStatusCompletedWithErrors
		msg := fmt.Sprintf("%d of %d prompt generations failed: %s", len(failures), total, strings.Join(failures, "; "))
		errMsg = &msg
	} else {
		// Full success moves the project forward
		projectStatus := model.ProjectStatusScenesCompleted
		if _, err := w.store.UpdateProject(ctx, payload.ProjectID, &model.ProjectUpdate{Status: &projectStatus}); err != nil {
			return fmt.Errorf("failed to update project status: %w", err)
		}
	}

	result := model.GeneratePromptsResult{
		PromptsGenerated: completed,
		PromptsFailed:    len(failures),
		CompletionTime:   time.Now(),
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	progress := 100
	job, err := w.jobs.Update(ctx, payload.JobID, model.JobUpdate{
		Status:   &status,
		Progress: &progress,
		Payload: &model.SceneJobPayload{
			ProjectID:      payload.ProjectID,
			Stage:          model.StageCompleted,
			CompletedCount: completed,
			TotalCount:     total,
		},
		Result: resultBytes,
		Error:  errMsg,
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if w.hub != nil {
		w.hub.BroadcastComplete(job.ID, job.Status, result)
	}

	log.Printf("Prompt fan-out job %s finished: %d/%d prompts generated", payload.JobID, completed, total)
	return nil
}

func (w *PromptFanoutWorker) updateJob(ctx context.Context, payload service.TaskPayload, status model.JobStatus, progress, completed, total int, errMsg *string) error {
	job, err := w.jobs.Update(ctx, payload.JobID, model.JobUpdate{
		Status:   &status,
		Progress: &progress,
		Payload: &model.SceneJobPayload{
			ProjectID:      payload.ProjectID,
			Stage:          model.StageGeneratingPrompts,
			CompletedCount: completed,
			TotalCount:     total,
		},
		Error: errMsg,
	})
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if w.hub != nil {
		w.hub.BroadcastProgress(job)
	}
	return nil
}

func (w *PromptFanoutWorker) failJob(ctx context.Context, payload service.TaskPayload, cause error) {
	errMsg := cause.Error()
	failed := model.JobStatusFailed
	if _, err := w.jobs.Update(ctx, payload.JobID, model.JobUpdate{
		Status: &failed,
		Error:  &errMsg,
		Payload: &model.SceneJobPayload{
			ProjectID: payload.ProjectID,
			Stage:     model.StageFailed,
		},
	}); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", payload.JobID, err)
	}

	status := model.ProjectStatusFailed
	if _, err := w.store.UpdateProject(ctx, payload.ProjectID, &model.ProjectUpdate{Status: &status}); err != nil {
		log.Printf("Failed to mark project %s as failed: %v", payload.ProjectID, err)
	}

	if w.hub != nil {
		w.hub.BroadcastError(payload.JobID, "PROMPT_GENERATION_FAILED", errMsg)
	}
}
