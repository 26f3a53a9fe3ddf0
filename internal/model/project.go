package model

import "time"

// TranscriptSegment is one time-stamped line of the song transcript
type TranscriptSegment struct {
	Start float64 `json:"start" validate:"min=0"`
	End   float64 `json:"end" validate:"min=0"`
	Text  string  `json:"text" validate:"required"`
}

// Transcript is the full transcription of a project's song
type Transcript struct {
	Text     string              `json:"text" validate:"required"`
	Segments []TranscriptSegment `json:"segments" validate:"required,min=1,dive"`
}

// Duration returns the end time of the last segment in seconds.
func (t *Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// SongMetadata describes the song attached to a project
type SongMetadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre"`
}

// SceneSelectionMeta is the auxiliary selection payload recorded on the project
type SceneSelectionMeta struct {
	SongThemes       []string `json:"song_themes"`
	EnergyArc        string   `json:"energy_arc"`
	ReasoningSummary string   `json:"reasoning_summary"`
}

// Project identifies one unit of creative work
type Project struct {
	ID                      string              `json:"id"`
	OwnerID                 string              `json:"ownerId"`
	Name                    string              `json:"name"`
	Status                  ProjectStatus       `json:"status"`
	Song                    SongMetadata        `json:"song"`
	Transcript              *Transcript         `json:"transcript,omitempty"`
	SelectedReferenceImages map[string]string   `json:"selectedReferenceImages,omitempty"`
	SceneSelection          *SceneSelectionMeta `json:"sceneSelection,omitempty"`
	ScenesCount             int                 `json:"scenesCount"`
	CreatedAt               time.Time           `json:"createdAt"`
	UpdatedAt               time.Time           `json:"updatedAt"`
}

// ProjectUpdate carries partial project fields; nil fields are left untouched
type ProjectUpdate struct {
	Name                    *string
	Status                  *ProjectStatus
	Transcript              *Transcript
	SelectedReferenceImages map[string]string
	SceneSelection          *SceneSelectionMeta
	ScenesCount             *int
}

// ProjectCreateRequest creates a new project
type ProjectCreateRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=255"`
	Title  string `json:"title" validate:"omitempty,max=255"`
	Artist string `json:"artist" validate:"omitempty,max=255"`
	Genre  string `json:"genre" validate:"omitempty,max=100"`
}

// TranscriptUpdateRequest attaches transcription data to a project
type TranscriptUpdateRequest struct {
	Transcript Transcript `json:"transcript" validate:"required"`
}

// ReferenceImagesRequest selects artist reference images for a project
type ReferenceImagesRequest struct {
	SelectedReferenceImages map[string]string `json:"selectedReferenceImages" validate:"required,min=1,dive,url"`
}

// ProjectListResponse lists projects for the caller
type ProjectListResponse struct {
	Projects []*Project `json:"projects"`
	Total    int        `json:"total"`
}
