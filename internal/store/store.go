package store

import (
	"context"
	"errors"

	"github.com/omvee/api/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrActiveJobExists is returned when a job slot for a (project, type)
	// pair is already held by another job
	ErrActiveJobExists = errors.New("active job already exists")
)

// ProjectStore persists projects. Updates are last-write-wins merges.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, id string, update *model.ProjectUpdate) (*model.Project, error)
	ListProjects(ctx context.Context, ownerID string) ([]*model.Project, error)
}

// SceneStore persists scenes. Scenes are created in a single batch and
// updated one at a time by ordinal.
type SceneStore interface {
	CreateScenes(ctx context.Context, projectID string, scenes []*model.Scene) error
	ListScenes(ctx context.Context, projectID string) ([]*model.Scene, error)
	GetScene(ctx context.Context, projectID string, sceneID int) (*model.Scene, error)
	UpdateScenePrompt(ctx context.Context, projectID string, sceneID int, prompt *model.VisualPrompt, status model.PromptStatus) error
}

// JobStore persists job records and enforces the single-active-job
// constraint per (project, type) at the storage layer.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error
	ListJobsByProject(ctx context.Context, projectID string, typeFilter model.JobType) ([]*model.Job, error)

	// AcquireJobSlot claims the active slot for (projectID, jobType) with a
	// conditional insert. Returns ErrActiveJobExists when already held.
	AcquireJobSlot(ctx context.Context, projectID string, jobType model.JobType, jobID string) error
	ReleaseJobSlot(ctx context.Context, projectID string, jobType model.JobType) error
}

// Store is the full record store consumed by the pipeline
type Store interface {
	ProjectStore
	SceneStore
	JobStore
}
