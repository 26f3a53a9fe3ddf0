package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/service"
	"github.com/omvee/api/pkg/response"
)

type ProjectHandler struct {
	service   *service.ProjectService
	validator *validator.Validate
}

func NewProjectHandler(svc *service.ProjectService, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)

	var req model.ProjectCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.Create(c.Context(), userID, &req)
	if err != nil {
		return sceneError(c, err)
	}

	return response.Created(c, project)
}

// Get handles GET /api/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	project, err := h.service.Get(c.Context(), userID, projectID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, project)
}

// List handles GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)

	result, err := h.service.List(c.Context(), userID)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, result)
}

// SetTranscript handles PUT /api/projects/:id/transcript
func (h *ProjectHandler) SetTranscript(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	var req model.TranscriptUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.SetTranscript(c.Context(), userID, projectID, &req.Transcript)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, project)
}

// SetReferenceImages handles PUT /api/projects/:id/reference-images
func (h *ProjectHandler) SetReferenceImages(c *fiber.Ctx) error {
	userID := c.Locals("userId").(string)
	projectID := c.Params("id")

	var req model.ReferenceImagesRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.SetReferenceImages(c.Context(), userID, projectID, req.SelectedReferenceImages)
	if err != nil {
		return sceneError(c, err)
	}

	return response.OK(c, project)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
