package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/store"
)

// ProjectService handles project CRUD around the scene pipeline
type ProjectService struct {
	store store.ProjectStore
}

func NewProjectService(projectStore store.ProjectStore) *ProjectService {
	return &ProjectService{store: projectStore}
}

// Create creates a new project owned by the caller
func (s *ProjectService) Create(ctx context.Context, userID string, req *model.ProjectCreateRequest) (*model.Project, error) {
	now := time.Now()
	project := &model.Project{
		ID:      uuid.New().String(),
		OwnerID: userID,
		Name:    req.Name,
		Status:  model.ProjectStatusCreated,
		Song: model.SongMetadata{
			Title:  req.Title,
			Artist: req.Artist,
			Genre:  req.Genre,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return project, nil
}

// Get returns a project owned by the caller
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*model.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != userID {
		return nil, ErrAccessDenied
	}
	return project, nil
}

// List returns all projects owned by the caller, newest first
func (s *ProjectService) List(ctx context.Context, userID string) (*model.ProjectListResponse, error) {
	projects, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.ProjectListResponse{Projects: projects, Total: len(projects)}, nil
}

// SetTranscript attaches transcription data to a project
func (s *ProjectService) SetTranscript(ctx context.Context, userID, projectID string, transcript *model.Transcript) (*model.Project, error) {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return nil, err
	}

	status := model.ProjectStatusTranscribed
	return s.store.UpdateProject(ctx, projectID, &model.ProjectUpdate{
		Transcript: transcript,
		Status:     &status,
	})
}

// SetReferenceImages selects artist reference images for a project
func (s *ProjectService) SetReferenceImages(ctx context.Context, userID, projectID string, images map[string]string) (*model.Project, error) {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return nil, err
	}

	return s.store.UpdateProject(ctx, projectID, &model.ProjectUpdate{
		SelectedReferenceImages: images,
	})
}
