// Package storetest provides an in-memory Store implementation for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/omvee/api/internal/model"
	"github.com/omvee/api/internal/store"
)

// Store is a thread-safe in-memory store.Store for use in unit tests.
type Store struct {
	mu       sync.Mutex
	projects map[string]*model.Project
	scenes   map[string]map[int]*model.Scene
	jobs     map[string]*model.Job
	jobOrder []string
	slots    map[string]string
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		projects: make(map[string]*model.Project),
		scenes:   make(map[string]map[int]*model.Scene),
		jobs:     make(map[string]*model.Job),
		slots:    make(map[string]string),
	}
}

func (s *Store) CreateProject(ctx context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *project
	s.projects[project.ID] = &cp
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *project
	return &cp, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, update *model.ProjectUpdate) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Name != nil {
		project.Name = *update.Name
	}
	if update.Status != nil {
		project.Status = *update.Status
	}
	if update.Transcript != nil {
		project.Transcript = update.Transcript
	}
	if update.SelectedReferenceImages != nil {
		project.SelectedReferenceImages = update.SelectedReferenceImages
	}
	if update.SceneSelection != nil {
		project.SceneSelection = update.SceneSelection
	}
	if update.ScenesCount != nil {
		project.ScenesCount = *update.ScenesCount
	}
	project.UpdatedAt = time.Now()
	cp := *project
	return &cp, nil
}

func (s *Store) ListProjects(ctx context.Context, ownerID string) ([]*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var projects []*model.Project
	for _, project := range s.projects {
		if project.OwnerID == ownerID {
			cp := *project
			projects = append(projects, &cp)
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (s *Store) CreateScenes(ctx context.Context, projectID string, scenes []*model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scenes[projectID] == nil {
		s.scenes[projectID] = make(map[int]*model.Scene)
	}
	for _, scene := range scenes {
		cp := *scene
		s.scenes[projectID][scene.SceneID] = &cp
	}
	return nil
}

func (s *Store) ListScenes(ctx context.Context, projectID string) ([]*model.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scenes := make([]*model.Scene, 0, len(s.scenes[projectID]))
	for _, scene := range s.scenes[projectID] {
		cp := *scene
		scenes = append(scenes, &cp)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].SceneID < scenes[j].SceneID })
	return scenes, nil
}

func (s *Store) GetScene(ctx context.Context, projectID string, sceneID int) (*model.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[projectID][sceneID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *scene
	return &cp, nil
}

func (s *Store) UpdateScenePrompt(ctx context.Context, projectID string, sceneID int, prompt *model.VisualPrompt, status model.PromptStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene, ok := s.scenes[projectID][sceneID]
	if !ok {
		return store.ErrNotFound
	}
	scene.VisualPrompt = prompt
	scene.PromptStatus = status
	return nil
}

func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *Store) ListJobsByProject(ctx context.Context, projectID string, typeFilter model.JobType) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*model.Job
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		if job.ProjectID != projectID {
			continue
		}
		if typeFilter != "" && job.Type != typeFilter {
			continue
		}
		cp := *job
		jobs = append(jobs, &cp)
	}
	return jobs, nil
}

func (s *Store) AcquireJobSlot(ctx context.Context, projectID string, jobType model.JobType, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := projectID + ":" + string(jobType)
	if _, held := s.slots[key]; held {
		return store.ErrActiveJobExists
	}
	s.slots[key] = jobID
	return nil
}

func (s *Store) ReleaseJobSlot(ctx context.Context, projectID string, jobType model.JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, projectID+":"+string(jobType))
	return nil
}

// SlotHeld reports whether the (project, type) slot is currently claimed.
func (s *Store) SlotHeld(projectID string, jobType model.JobType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.slots[projectID+":"+string(jobType)]
	return held
}
