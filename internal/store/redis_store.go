package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omvee/api/internal/model"
)

// RedisStore is the Redis-backed record store for projects, scenes and jobs.
// Records are stored as JSON values; parent lookups go through index sets.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func projectKey(id string) string         { return "project:" + id }
func ownerIndexKey(owner string) string   { return "owner:" + owner + ":projects" }
func scenesKey(projectID string) string   { return "project:" + projectID + ":scenes" }
func jobKey(id string) string             { return "job:" + id }
func jobIndexKey(projectID string) string { return "project:" + projectID + ":jobs" }

func activeJobKey(projectID string, jobType model.JobType) string {
	return fmt.Sprintf("activejob:%s:%s", projectID, jobType)
}

// Projects

func (s *RedisStore) CreateProject(ctx context.Context, project *model.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, projectKey(project.ID), data, 0)
	pipe.ZAdd(ctx, ownerIndexKey(project.OwnerID), redis.Z{
		Score:  float64(project.CreatedAt.UnixNano()),
		Member: project.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *RedisStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	data, err := s.redis.Get(ctx, projectKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var project model.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &project, nil
}

// UpdateProject merges the non-nil fields of update into the stored project.
// Last write wins; there is no version check.
func (s *RedisStore) UpdateProject(ctx context.Context, id string, update *model.ProjectUpdate) (*model.Project, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
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

	data, err := json.Marshal(project)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := s.redis.Set(ctx, projectKey(id), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}
	return project, nil
}

func (s *RedisStore) ListProjects(ctx context.Context, ownerID string) ([]*model.Project, error) {
	ids, err := s.redis.ZRevRange(ctx, ownerIndexKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	projects := make([]*model.Project, 0, len(ids))
	for _, id := range ids {
		project, err := s.GetProject(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

// Scenes

// CreateScenes persists a scene batch as one hash write, keyed by ordinal.
// The batch is never partially created.
func (s *RedisStore) CreateScenes(ctx context.Context, projectID string, scenes []*model.Scene) error {
	fields := make(map[string]interface{}, len(scenes))
	for _, scene := range scenes {
		data, err := json.Marshal(scene)
		if err != nil {
			return fmt.Errorf("failed to marshal scene %d: %w", scene.SceneID, err)
		}
		fields[strconv.Itoa(scene.SceneID)] = data
	}
	if err := s.redis.HSet(ctx, scenesKey(projectID), fields).Err(); err != nil {
		return fmt.Errorf("failed to save scenes: %w", err)
	}
	return nil
}

func (s *RedisStore) ListScenes(ctx context.Context, projectID string) ([]*model.Scene, error) {
	fields, err := s.redis.HGetAll(ctx, scenesKey(projectID)).Result()
	if err != nil {
		return nil, err
	}

	scenes := make([]*model.Scene, 0, len(fields))
	for _, raw := range fields {
		var scene model.Scene
		if err := json.Unmarshal([]byte(raw), &scene); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scene: %w", err)
		}
		scenes = append(scenes, &scene)
	}

	sort.Slice(scenes, func(i, j int) bool { return scenes[i].SceneID < scenes[j].SceneID })
	return scenes, nil
}

func (s *RedisStore) GetScene(ctx context.Context, projectID string, sceneID int) (*model.Scene, error) {
	raw, err := s.redis.HGet(ctx, scenesKey(projectID), strconv.Itoa(sceneID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var scene model.Scene
	if err := json.Unmarshal([]byte(raw), &scene); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scene: %w", err)
	}
	return &scene, nil
}

func (s *RedisStore) UpdateScenePrompt(ctx context.Context, projectID string, sceneID int, prompt *model.VisualPrompt, status model.PromptStatus) error {
	scene, err := s.GetScene(ctx, projectID, sceneID)
	if err != nil {
		return err
	}

	scene.VisualPrompt = prompt
	scene.PromptStatus = status

	data, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}
	if err := s.redis.HSet(ctx, scenesKey(projectID), strconv.Itoa(sceneID), data).Err(); err != nil {
		return fmt.Errorf("failed to save scene: %w", err)
	}
	return nil
}

// Jobs

// CreateJob persists a new job record. Jobs carry no TTL; they are kept as
// an audit trail.
func (s *RedisStore) CreateJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, jobIndexKey(job.ProjectID), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.redis.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// ListJobsByProject returns the project's jobs newest-first, optionally
// filtered by type.
func (s *RedisStore) ListJobsByProject(ctx context.Context, projectID string, typeFilter model.JobType) ([]*model.Job, error) {
	ids, err := s.redis.ZRevRange(ctx, jobIndexKey(projectID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		if typeFilter != "" && job.Type != typeFilter {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// AcquireJobSlot claims the (project, type) slot with SETNX so that two
// concurrent scheduling requests cannot both create a stage instance.
func (s *RedisStore) AcquireJobSlot(ctx context.Context, projectID string, jobType model.JobType, jobID string) error {
	ok, err := s.redis.SetNX(ctx, activeJobKey(projectID, jobType), jobID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire job slot: %w", err)
	}
	if !ok {
		return ErrActiveJobExists
	}
	return nil
}

func (s *RedisStore) ReleaseJobSlot(ctx context.Context, projectID string, jobType model.JobType) error {
	return s.redis.Del(ctx, activeJobKey(projectID, jobType)).Err()
}
