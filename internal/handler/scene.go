package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/omvee/api/internal/service"
	"github.com/omvee/api/internal/store"
	"github.com/omvee/api/pkg/response"
)

type SceneHandler struct {
	service   *service.SceneService
	validator *validator.Validate
}

func NewSceneHandler(svc *service.SceneService, v *validator.Validate) *SceneHandler {
	return &SceneHandler{
		service:   svc,
		validator: v,
	}
}

// SelectScenes handles POST /api/projects/:id/scenes/select
func (h *SceneHandler) SelectScenes(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	result, err := h.service.StartSceneSelection(c.Context(), userID, projectID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.Accepted(c, result)
}

// GeneratePrompts handles POST /api/projects/:id/scenes/generate-prompts
func (h *SceneHandler) GeneratePrompts(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	result, err := h.service.StartPromptGeneration(c.Context(), userID, projectID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.Accepted(c, result)
}

// JobStatus handles GET /api/scenes/jobs/:jobId/status
func (h *SceneHandler) JobStatus(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	jobID := c.Params("jobId")

	result, err := h.service.JobStatus(c.Context(), userID, jobID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, result)
}

// ProjectScenes handles GET /api/projects/:id/scenes
func (h *SceneHandler) ProjectScenes(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	result, err := h.service.ProjectScenes(c.Context(), userID, projectID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, result)
}

// RegeneratePrompt handles PUT /api/projects/:id/scenes/:sceneId/regenerate
func (h *SceneHandler) RegeneratePrompt(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	sceneID, err := strconv.Atoi(c.Params("sceneId"))
	if err != nil || sceneID < 0 {
		return response.ValidationError(c, "Invalid scene id", nil)
	}

	result, err := h.service.RegenerateScenePrompt(c.Context(), userID, projectID, sceneID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, result)
}

// sceneError maps pipeline errors to HTTP responses
func sceneError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return response.NotFound(c, "Resource not found")
	case errors.Is(err, service.ErrAccessDenied):
		return response.Forbidden(c, "Access denied")
	case errors.Is(err, service.ErrNoTranscript):
		return response.ValidationError(c, "Project has no transcription data", nil)
	case errors.Is(err, service.ErrAlreadyProcessing):
		return response.ValidationError(c, "Scene selection already completed or in progress", nil)
	case errors.Is(err, service.ErrNoScenes):
		return response.ValidationError(c, "Project has no scenes", nil)
	case errors.Is(err, store.ErrActiveJobExists):
		return response.Conflict(c, "Another job of this type is already active for the project")
	case errors.Is(err, service.ErrGenerationFailed):
		return response.AIError(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}
