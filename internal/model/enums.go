package model

// Job types
type JobType string

const (
	JobTypeSelectScenes    JobType = "select_scenes"
	JobTypeGeneratePrompts JobType = "generate_visual_prompts"
	JobTypeTranscribe      JobType = "transcribe"
)

var ValidJobTypes = []JobType{
	JobTypeSelectScenes, JobTypeGeneratePrompts, JobTypeTranscribe,
}

// Job status
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusRunning             JobStatus = "running"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

// IsTerminal reports whether a job in this status will never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed:
		return true
	}
	return false
}

// Project status
type ProjectStatus string

const (
	ProjectStatusCreated          ProjectStatus = "created"
	ProjectStatusTranscribing     ProjectStatus = "transcribing"
	ProjectStatusTranscribed      ProjectStatus = "transcribed"
	ProjectStatusScenesProcessing ProjectStatus = "scenes_processing"
	ProjectStatusScenesCompleted  ProjectStatus = "scenes_completed"
	ProjectStatusFailed           ProjectStatus = "failed"
)

// Prompt status per scene
type PromptStatus string

const (
	PromptStatusPending   PromptStatus = "pending"
	PromptStatusCompleted PromptStatus = "completed"
)

// Pipeline stage names recorded in the job payload
const (
	StageInitializing      = "initializing"
	StageSelectingScenes   = "selecting_scenes"
	StageScenesPersisted   = "scenes_persisted"
	StageGeneratingPrompts = "generating_prompts"
	StageCompleted         = "completed"
	StageFailed            = "failed"
)
