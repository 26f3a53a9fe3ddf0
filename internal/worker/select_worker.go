package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/service"
	"github.com/omvee/api/internal/store"
	"github.com/omvee/api/internal/websocket"
)

// SceneSelectWorker executes the scene selection stage: one generation
// call that partitions the project transcript into an ordered scene list.
type SceneSelectWorker struct {
	store    store.Store
	jobs     *service.JobService
	director service.Director
	scenes   *service.SceneService
	hub      *websocket.Hub
}

func NewSceneSelectWorker(st store.Store, jobs *service.JobService, director service.Director, scenes *service.SceneService, hub *websocket.Hub) *SceneSelectWorker {
	return &SceneSelectWorker{
		store:    st,
		jobs:     jobs,
		director: director,
		scenes:   scenes,
		hub:      hub,
	}
}

// ProcessTask handles one scene selection task. Any fault is converted
// into a job-failure write; the job slot is always released.
func (w *SceneSelectWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	defer w.store.ReleaseJobSlot(context.Background(), payload.ProjectID, model.JobTypeSelectScenes)

	log.Printf("Starting scene selection job %s for project %s", payload.JobID, payload.ProjectID)

	if err := w.run(ctx, payload); err != nil {
		w.failJob(ctx, payload, err)
		return err
	}

	log.Printf("Scene selection job %s completed", payload.JobID)
	return nil
}

func (w *SceneSelectWorker) run(ctx context.Context, payload service.TaskPayload) error {
	if err := w.updateProgress(ctx, payload, 10, model.StageSelectingScenes); err != nil {
		return err
	}

	project, err := w.store.GetProject(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	if project.Transcript == nil || len(project.Transcript.Segments) == 0 {
		return fmt.Errorf("project has no transcription data")
	}

	selection, err := w.director.SelectScenes(ctx, project.Transcript, project.Song)
	if err != nil {
		return err
	}

	if err := w.updateProgress(ctx, payload, 60, model.StageSelectingScenes); err != nil {
		return err
	}

	// Selection order becomes the scene ordinal
	scenes := make([]*model.Scene, 0, len(selection.SelectedScenes))
	for i, selected := range selection.SelectedScenes {
		scenes = append(scenes, &model.Scene{
			SceneID:             i,
			ProjectID:           project.ID,
			Title:               selected.Title,
			StartTime:           selected.StartTime,
			EndTime:             selected.EndTime,
			Duration:            selected.Duration,
			SourceSegments:      selected.SourceSegments,
			LyricsExcerpt:       selected.LyricsExcerpt,
			Theme:               selected.Theme,
			EnergyLevel:         selected.EnergyLevel,
			VisualPotential:     selected.VisualPotential,
			NarrativeImportance: selected.NarrativeImportance,
			Reasoning:           selected.Reasoning,
			PromptStatus:        model.PromptStatusPending,
		})
	}

	if err := w.store.CreateScenes(ctx, project.ID, scenes); err != nil {
		return fmt.Errorf("failed to persist scenes: %w", err)
	}

	status := model.ProjectStatusScenesProcessing
	scenesCount := len(scenes)
	if _, err := w.store.UpdateProject(ctx, project.ID, &model.ProjectUpdate{
		Status:      &status,
		ScenesCount: &scenesCount,
		SceneSelection: &model.SceneSelectionMeta{
			SongThemes:       selection.SongThemes,
			EnergyArc:        selection.EnergyArc,
			ReasoningSummary: selection.ReasoningSummary,
		},
	}); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if err := w.updateProgress(ctx, payload, 80, model.StageScenesPersisted); err != nil {
		return err
	}

	result := model.SelectScenesResult{
		ScenesCount:    len(scenes),
		CompletionTime: time.Now(),
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	completedStatus := model.JobStatusCompleted
	progress := 100
	job, err := w.jobs.Update(ctx, payload.JobID, model.JobUpdate{
		Status:   &completedStatus,
		Progress: &progress,
		Payload: &model.SceneJobPayload{
			ProjectID: payload.ProjectID,
			Stage:     model.StageCompleted,
		},
		Result: resultBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	if w.hub != nil {
		w.hub.BroadcastComplete(job.ID, job.Status, result)
	}

	// Chain into the visual prompt fan-out. Selection already succeeded, so
	// a chaining failure is reported to subscribers instead of failing the
	// job; the client can start prompt generation explicitly.
	chained, err := w.scenes.ChainPromptGeneration(ctx, payload.ProjectID)
	if err != nil {
		log.Printf("Failed to chain prompt generation for project %s: %v", payload.ProjectID, err)
		if w.hub != nil {
			w.hub.BroadcastError(payload.JobID, "PROMPT_CHAINING_FAILED",
				fmt.Sprintf("scenes selected but prompt generation could not be scheduled: %v", err))
		}
		return nil
	}
	log.Printf("Chained prompt generation job %s for project %s", chained.ID, payload.ProjectID)
	return nil
}

func (w *SceneSelectWorker) updateProgress(ctx context.Context, payload service.TaskPayload, progress int, stage string) error {
	running := model.JobStatusRunning
	job, err := w.jobs.Update(ctx, payload.JobID, model.JobUpdate{
		Status:   &running,
		Progress: &progress,
		Payload: &model.SceneJobPayload{
			ProjectID: payload.ProjectID,
			Stage:     stage,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	if w.hub != nil {
		w.hub.BroadcastProgress(job)
	}
	return nil
}

func (w *SceneSelectWorker) failJob(ctx context.Context, payload service.TaskPayload, cause error) {
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
		w.hub.BroadcastError(payload.JobID, "SCENE_SELECTION_FAILED", errMsg)
	}
}
