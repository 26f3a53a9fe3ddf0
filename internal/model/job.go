package model

import (
	"encoding/json"
	"time"
)

// Job represents a durable background job record
type Job struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	Type      JobType         `json:"type"`
	Status    JobStatus       `json:"status"`
	Progress  int             `json:"progress"`
	Payload   SceneJobPayload `json:"payload"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// SceneJobPayload is the free-form stage payload tracked on a job
type SceneJobPayload struct {
	ProjectID      string `json:"project_id"`
	Stage          string `json:"stage"`
	CompletedCount int    `json:"completed_count"`
	TotalCount     int    `json:"total_count"`
}

// JobUpdate carries the partial fields merged into a job by the job manager.
// Nil fields are left untouched.
type JobUpdate struct {
	Status   *JobStatus
	Progress *int
	Payload  *SceneJobPayload
	Result   json.RawMessage
	Error    *string
}

// SelectScenesResult is the result payload of a completed scene selection job
type SelectScenesResult struct {
	ScenesCount    int       `json:"scenes_count"`
	CompletionTime time.Time `json:"completion_time"`
}

// GeneratePromptsResult is the result payload of a completed fan-out job
type GeneratePromptsResult struct {
	PromptsGenerated int       `json:"prompts_generated"`
	PromptsFailed    int       `json:"prompts_failed,omitempty"`
	CompletionTime   time.Time `json:"completion_time"`
}

// SceneJobResponse is returned when a scene pipeline job is started
type SceneJobResponse struct {
	JobID             string  `json:"job_id"`
	Status            string  `json:"status"`
	EstimatedDuration float64 `json:"estimated_duration"`
}

// SceneJobStatusResponse is the polled view of a scene pipeline job
type SceneJobStatusResponse struct {
	JobID            string    `json:"job_id"`
	Status           JobStatus `json:"status"`
	Progress         float64   `json:"progress"`
	CompletedPrompts int       `json:"completed_prompts"`
	TotalPrompts     int       `json:"total_prompts"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
}
