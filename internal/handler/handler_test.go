package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/omvee/api/internal/middleware"
	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/service"
	"github.com/omvee/api/internal/store/storetest"
)

const testJWTSecret = "test-secret-for-handlers"

type testApp struct {
	app   *fiber.App
	store *storetest.Store
	jobs  *service.JobService
	auth  *middleware.AuthMiddleware
}

// fakeDirector returns a fixed prompt for any scene.
type fakeDirector struct {
	promptErr error
}

func (fakeDirector) SelectScenes(ctx context.Context, transcript *model.Transcript, song model.SongMetadata) (*model.SceneSelectionResult, error) {
	return nil, fmt.Errorf("not used in handler tests")
}

func (d fakeDirector) GenerateVisualPrompt(ctx context.Context, scene *model.Scene, referenceImages map[string]string, song model.SongMetadata) (*model.VisualPrompt, error) {
	if d.promptErr != nil {
		return nil, d.promptErr
	}
	return &model.VisualPrompt{
		SceneID:        scene.SceneID,
		ImagePrompt:    "prompt",
		StyleNotes:     "style",
		NegativePrompt: "avoid",
		Setting:        "setting",
		ShotType:       "wide",
		Mood:           "mood",
		ColorPalette:   "palette",
	}, nil
}

// fakeEnqueuer accepts every task without touching Redis.
type fakeEnqueuer struct{}

func (fakeEnqueuer) Enqueue(ctx context.Context, taskType string, payload []byte) error { return nil }

// setupApp builds a Fiber app with the same routes as main.go, backed by the
// in-memory store and with the rate limiter left out.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWith(t, fakeDirector{})
}

func setupAppWith(t *testing.T, director service.Director) *testApp {
	t.Helper()

	st := storetest.New()
	validate := validator.New()

	jobs := service.NewJobService(st)
	scenes := service.NewSceneService(st, jobs, director, fakeEnqueuer{})
	projects := service.NewProjectService(st)

	sceneHandler := NewSceneHandler(scenes, validate)
	projectHandler := NewProjectHandler(projects, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New()

	api := app.Group("/api", authMiddleware.Authenticate())
	pr := api.Group("/projects")
	pr.Post("/", projectHandler.Create)
	pr.Get("/", projectHandler.List)
	pr.Get("/:id", projectHandler.Get)
	pr.Put("/:id/transcript", projectHandler.SetTranscript)
	pr.Put("/:id/reference-images", projectHandler.SetReferenceImages)
	pr.Post("/:id/scenes/select", sceneHandler.SelectScenes)
	pr.Post("/:id/scenes/generate-prompts", sceneHandler.GeneratePrompts)
	pr.Get("/:id/scenes", sceneHandler.ProjectScenes)
	pr.Put("/:id/scenes/:sceneId/regenerate", sceneHandler.RegeneratePrompt)
	api.Get("/scenes/jobs/:jobId/status", sceneHandler.JobStatus)

	return &testApp{app: app, store: st, jobs: jobs, auth: authMiddleware}
}

func (ta *testApp) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := ta.auth.GenerateToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func (ta *testApp) request(t *testing.T, userID, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+ta.token(t, userID))
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, string(b))
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}

func seedProject(t *testing.T, ta *testApp, owner string, status model.ProjectStatus, withTranscript bool) string {
	t.Helper()
	project := &model.Project{
		ID:      "project-1",
		OwnerID: owner,
		Name:    "Test Project",
		Status:  status,
	}
	if withTranscript {
		project.Transcript = &model.Transcript{
			Text: "line one",
			Segments: []model.TranscriptSegment{
				{Start: 0, End: 15, Text: "line one"},
			},
		}
	}
	if err := ta.store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}
	return project.ID
}

func seedScenes(t *testing.T, ta *testApp, projectID string, count int) {
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
	if err := ta.store.CreateScenes(context.Background(), projectID, scenes); err != nil {
		t.Fatalf("failed to seed scenes: %v", err)
	}
}
