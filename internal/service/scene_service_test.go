package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/store"
	"github.com/omvee/api/internal/store/storetest"
)

// fakeEnqueuer records enqueued tasks instead of talking to Redis.
type fakeEnqueuer struct {
	tasks     []string
	err       error
	onEnqueue func(taskType string)
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	if f.onEnqueue != nil {
		f.onEnqueue(taskType)
	}
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, taskType)
	return nil
}

// fakeDirector returns a fixed prompt per scene.
type fakeDirector struct {
	selectResult *model.SceneSelectionResult
	selectErr    error
	promptErr    error
	failScenes   map[int]bool
}

func (f *fakeDirector) SelectScenes(ctx context.Context, transcript *model.Transcript, song model.SongMetadata) (*model.SceneSelectionResult, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.selectResult, nil
}

func (f *fakeDirector) GenerateVisualPrompt(ctx context.Context, scene *model.Scene, referenceImages map[string]string, song model.SongMetadata) (*model.VisualPrompt, error) {
	if f.promptErr != nil {
		return nil, f.promptErr
	}
	if f.failScenes[scene.SceneID] {
		return nil, fmt.Errorf("generation failed for scene %d", scene.SceneID)
	}
	return &model.VisualPrompt{
		SceneID:        scene.SceneID,
		ImagePrompt:    fmt.Sprintf("prompt for scene %d", scene.SceneID),
		StyleNotes:     "style",
		NegativePrompt: "avoid",
		Setting:        "setting",
		ShotType:       "wide",
		Mood:           "mood",
		ColorPalette:   "palette",
	}, nil
}

const testOwner = "user-1"

func seedProject(t *testing.T, st *storetest.Store, status model.ProjectStatus, withTranscript bool) *model.Project {
	t.Helper()
	project := &model.Project{
		ID:      "project-1",
		OwnerID: testOwner,
		Name:    "Test Project",
		Status:  status,
	}
	if withTranscript {
		project.Transcript = &model.Transcript{
			Text: "line one line two",
			Segments: []model.TranscriptSegment{
				{Start: 0, End: 7.5, Text: "line one"},
				{Start: 7.5, End: 15, Text: "line two"},
			},
		}
	}
	if err := st.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
	return project
}

func seedScenes(t *testing.T, st *storetest.Store, projectID string, count int) {
	t.Helper()
	scenes := make([]*model.Scene, 0, count)
	for i := 0; i < count; i++ {
		scenes = append(scenes, &model.Scene{
			SceneID:      i,
			ProjectID:    projectID,
			Title:        fmt.Sprintf("Scene %d", i),
			PromptStatus: model.PromptStatusPending,
		})
	}
	if err := st.CreateScenes(context.Background(), projectID, scenes); err != nil {
		t.Fatalf("failed to seed scenes: %v", err)
	}
}

func newTestSceneService(st *storetest.Store, enqueuer Enqueuer) (*SceneService, *JobService) {
	jobs := NewJobService(st)
	svc := NewSceneService(st, jobs, &fakeDirector{}, enqueuer)
	return svc, jobs
}

func TestStartSceneSelection_SchedulesJob(t *testing.T) {
	st := storetest.New()
	enqueuer := &fakeEnqueuer{}
	svc, jobs := newTestSceneService(st, enqueuer)
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusTranscribed, true)

	resp, err := svc.StartSceneSelection(ctx, testOwner, "project-1")
	if err != nil {
		t.Fatalf("StartSceneSelection failed: %v", err)
	}

	if resp.JobID == "" {
		t.Error("expected job ID in response")
	}
	if resp.Status != "started" {
		t.Errorf("expected status 'started', got %q", resp.Status)
	}

	job, err := jobs.Get(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("expected pending job, got %s", job.Status)
	}
	if job.Type != model.JobTypeSelectScenes {
		t.Errorf("expected type %s, got %s", model.JobTypeSelectScenes, job.Type)
	}

	if len(enqueuer.tasks) != 1 || enqueuer.tasks[0] != TaskTypeSelectScenes {
		t.Errorf("expected one %s task, got %v", TaskTypeSelectScenes, enqueuer.tasks)
	}
	if !st.SlotHeld("project-1", model.JobTypeSelectScenes) {
		t.Error("expected job slot to be held")
	}

	project, _ := st.GetProject(ctx, "project-1")
	if project.Status != model.ProjectStatusScenesProcessing {
		t.Errorf("expected project status scenes_processing, got %s", project.Status)
	}
}

func TestStartSceneSelection_RequiresTranscript(t *testing.T) {
	st := storetest.New()
	svc, _ := newTestSceneService(st, &fakeEnqueuer{})
	seedProject(t, st, model.ProjectStatusCreated, false)

	_, err := svc.StartSceneSelection(context.Background(), testOwner, "project-1")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("expected ErrNoTranscript, got %v", err)
	}
}

func TestStartSceneSelection_RejectsWhenAlreadyProcessing(t *testing.T) {
	for _, status := range []model.ProjectStatus{model.ProjectStatusScenesProcessing, model.ProjectStatusScenesCompleted} {
		st := storetest.New()
		svc, _ := newTestSceneService(st, &fakeEnqueuer{})
		seedProject(t, st, status, true)

		_, err := svc.StartSceneSelection(context.Background(), testOwner, "project-1")
		if !errors.Is(err, ErrAlreadyProcessing) {
			t.Errorf("status %s: expected ErrAlreadyProcessing, got %v", status, err)
		}
	}
}

func TestStartSceneSelection_UnknownProject(t *testing.T) {
	svc, _ := newTestSceneService(storetest.New(), &fakeEnqueuer{})

	_, err := svc.StartSceneSelection(context.Background(), testOwner, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStartSceneSelection_OtherUsersProject(t *testing.T) {
	st := storetest.New()
	svc, _ := newTestSceneService(st, &fakeEnqueuer{})
	seedProject(t, st, model.ProjectStatusTranscribed, true)

	_, err := svc.StartSceneSelection(context.Background(), "intruder", "project-1")
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestStartPromptGeneration_DuplicateRejected(t *testing.T) {
	st := storetest.New()
	svc, jobs := newTestSceneService(st, &fakeEnqueuer{})
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusScenesProcessing, true)
	seedScenes(t, st, "project-1", 3)

	first, err := svc.StartPromptGeneration(ctx, testOwner, "project-1")
	if err != nil {
		t.Fatalf("first StartPromptGeneration failed: %v", err)
	}

	// Slot is still held; the second request must be rejected
	_, err = svc.StartPromptGeneration(ctx, testOwner, "project-1")
	if !errors.Is(err, store.ErrActiveJobExists) {
		t.Fatalf("expected ErrActiveJobExists, got %v", err)
	}

	// The winner is untouched and the rejection leaves no record behind
	winner, _ := jobs.Get(ctx, first.JobID)
	if winner.Status != model.JobStatusPending {
		t.Errorf("expected winning job to stay pending, got %s", winner.Status)
	}

	all, _ := jobs.ListByProject(ctx, "project-1", model.JobTypeGeneratePrompts)
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 job record after one accepted and one rejected request, got %d", len(all))
	}
	if all[0].ID != first.JobID {
		t.Errorf("expected the only record to be the winner %s, got %s", first.JobID, all[0].ID)
	}
}

func TestStartPromptGeneration_NoScenes(t *testing.T) {
	st := storetest.New()
	svc, _ := newTestSceneService(st, &fakeEnqueuer{})
	seedProject(t, st, model.ProjectStatusScenesProcessing, true)

	_, err := svc.StartPromptGeneration(context.Background(), testOwner, "project-1")
	if !errors.Is(err, ErrNoScenes) {
		t.Errorf("expected ErrNoScenes, got %v", err)
	}
}

func TestStartSceneSelection_EnqueueFailureReleasesSlot(t *testing.T) {
	st := storetest.New()
	enqueuer := &fakeEnqueuer{err: errors.New("broker down")}
	svc, jobs := newTestSceneService(st, enqueuer)
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusTranscribed, true)

	_, err := svc.StartSceneSelection(ctx, testOwner, "project-1")
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	if st.SlotHeld("project-1", model.JobTypeSelectScenes) {
		t.Error("expected slot to be released after enqueue failure")
	}

	all, _ := jobs.ListByProject(ctx, "project-1", model.JobTypeSelectScenes)
	if len(all) != 1 || all[0].Status != model.JobStatusFailed {
		t.Errorf("expected the job record to be marked failed, got %+v", all)
	}

	// The project is not left looking in-flight
	project, _ := st.GetProject(ctx, "project-1")
	if project.Status != model.ProjectStatusFailed {
		t.Errorf("expected project status failed, got %s", project.Status)
	}
}

func TestStartSceneSelection_MarksProjectBeforeEnqueue(t *testing.T) {
	st := storetest.New()
	enqueuer := &fakeEnqueuer{}
	svc, _ := newTestSceneService(st, enqueuer)
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusTranscribed, true)

	// The worker may run the instant the task is enqueued, so the project
	// must already be marked in-flight by then
	var statusAtEnqueue model.ProjectStatus
	enqueuer.onEnqueue = func(taskType string) {
		project, err := st.GetProject(ctx, "project-1")
		if err != nil {
			t.Errorf("get project during enqueue failed: %v", err)
			return
		}
		statusAtEnqueue = project.Status
	}

	if _, err := svc.StartSceneSelection(ctx, testOwner, "project-1"); err != nil {
		t.Fatalf("StartSceneSelection failed: %v", err)
	}

	if statusAtEnqueue != model.ProjectStatusScenesProcessing {
		t.Errorf("expected project to be scenes_processing before enqueue, got %s", statusAtEnqueue)
	}
}

func TestJobStatus_NormalizesProgress(t *testing.T) {
	st := storetest.New()
	svc, jobs := newTestSceneService(st, &fakeEnqueuer{})
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusScenesProcessing, true)

	job, err := jobs.Create(ctx, "project-1", model.JobTypeGeneratePrompts, model.SceneJobPayload{
		ProjectID: "project-1",
		Stage:     model.StageGeneratingPrompts,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	running := model.JobStatusRunning
	if _, err := jobs.Update(ctx, job.ID, model.JobUpdate{
		Status:   &running,
		Progress: intPtr(55),
		Payload: &model.SceneJobPayload{
			ProjectID:      "project-1",
			Stage:          model.StageGeneratingPrompts,
			CompletedCount: 9,
			TotalCount:     18,
		},
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	status, err := svc.JobStatus(ctx, testOwner, job.ID)
	if err != nil {
		t.Fatalf("JobStatus failed: %v", err)
	}

	if status.Progress != 0.55 {
		t.Errorf("expected progress 0.55, got %v", status.Progress)
	}
	if status.CompletedPrompts != 9 || status.TotalPrompts != 18 {
		t.Errorf("expected 9/18 prompts, got %d/%d", status.CompletedPrompts, status.TotalPrompts)
	}
}

func TestJobStatus_OwnershipEnforced(t *testing.T) {
	st := storetest.New()
	svc, jobs := newTestSceneService(st, &fakeEnqueuer{})
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusScenesProcessing, true)

	job, err := jobs.Create(ctx, "project-1", model.JobTypeSelectScenes, model.SceneJobPayload{ProjectID: "project-1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.JobStatus(ctx, "intruder", job.ID); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
	if _, err := svc.JobStatus(ctx, testOwner, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectScenes_CountsCompletedPrompts(t *testing.T) {
	st := storetest.New()
	svc, _ := newTestSceneService(st, &fakeEnqueuer{})
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusScenesProcessing, true)
	seedScenes(t, st, "project-1", 4)

	prompt := &model.VisualPrompt{SceneID: 1, ImagePrompt: "p"}
	if err := st.UpdateScenePrompt(ctx, "project-1", 1, prompt, model.PromptStatusCompleted); err != nil {
		t.Fatalf("update prompt failed: %v", err)
	}

	resp, err := svc.ProjectScenes(ctx, testOwner, "project-1")
	if err != nil {
		t.Fatalf("ProjectScenes failed: %v", err)
	}

	if resp.TotalPrompts != 4 || resp.CompletedPrompts != 1 {
		t.Errorf("expected 1/4 prompts, got %d/%d", resp.CompletedPrompts, resp.TotalPrompts)
	}
	for i, scene := range resp.Scenes {
		if scene.SceneID != i {
			t.Errorf("expected scenes ordered by ordinal, got %d at position %d", scene.SceneID, i)
		}
	}
}

func TestRegenerateScenePrompt_PersistsResult(t *testing.T) {
	st := storetest.New()
	jobs := NewJobService(st)
	svc := NewSceneService(st, jobs, &fakeDirector{}, &fakeEnqueuer{})
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusScenesCompleted, true)
	seedScenes(t, st, "project-1", 2)

	prompt, err := svc.RegenerateScenePrompt(ctx, testOwner, "project-1", 1)
	if err != nil {
		t.Fatalf("RegenerateScenePrompt failed: %v", err)
	}
	if prompt.SceneID != 1 {
		t.Errorf("expected scene_id 1, got %d", prompt.SceneID)
	}

	scene, err := st.GetScene(ctx, "project-1", 1)
	if err != nil {
		t.Fatalf("get scene failed: %v", err)
	}
	if scene.VisualPrompt == nil || scene.VisualPrompt.ImagePrompt != "prompt for scene 1" {
		t.Errorf("expected regenerated prompt to be persisted, got %+v", scene.VisualPrompt)
	}
	if scene.PromptStatus != model.PromptStatusCompleted {
		t.Errorf("expected prompt status completed, got %s", scene.PromptStatus)
	}
}

func TestRegenerateScenePrompt_GenerationFailure(t *testing.T) {
	st := storetest.New()
	jobs := NewJobService(st)
	director := &fakeDirector{promptErr: errors.New("model unavailable")}
	svc := NewSceneService(st, jobs, director, &fakeEnqueuer{})
	ctx := context.Background()
	seedProject(t, st, model.ProjectStatusScenesCompleted, true)
	seedScenes(t, st, "project-1", 2)

	_, err := svc.RegenerateScenePrompt(ctx, testOwner, "project-1", 0)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}

	// The scene keeps its previous prompt state
	scene, _ := st.GetScene(ctx, "project-1", 0)
	if scene.PromptStatus != model.PromptStatusPending {
		t.Errorf("expected prompt status to stay pending, got %s", scene.PromptStatus)
	}
}

func TestRegenerateScenePrompt_UnknownScene(t *testing.T) {
	st := storetest.New()
	jobs := NewJobService(st)
	svc := NewSceneService(st, jobs, &fakeDirector{}, &fakeEnqueuer{})
	seedProject(t, st, model.ProjectStatusScenesCompleted, true)

	_, err := svc.RegenerateScenePrompt(context.Background(), testOwner, "project-1", 7)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
