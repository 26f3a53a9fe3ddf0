package model

// SelectedScene is one scene chosen by the AI director from the transcript
type SelectedScene struct {
	SceneID             int     `json:"scene_id" validate:"min=0"`
	Title               string  `json:"title" validate:"required"`
	StartTime           float64 `json:"start_time" validate:"min=0"`
	EndTime             float64 `json:"end_time" validate:"min=0,gtfield=StartTime"`
	Duration            float64 `json:"duration" validate:"gt=0"`
	SourceSegments      []int   `json:"source_segments"`
	LyricsExcerpt       string  `json:"lyrics_excerpt" validate:"required"`
	Theme               string  `json:"theme" validate:"required"`
	EnergyLevel         int     `json:"energy_level" validate:"min=1,max=10"`
	VisualPotential     int     `json:"visual_potential" validate:"min=1,max=10"`
	NarrativeImportance int     `json:"narrative_importance" validate:"min=1,max=10"`
	Reasoning           string  `json:"reasoning" validate:"required"`
}

// SceneSelectionResult is the strict JSON shape expected from scene selection
type SceneSelectionResult struct {
	SongThemes          []string        `json:"song_themes" validate:"required,min=1"`
	EnergyArc           string          `json:"energy_arc" validate:"required"`
	TotalScenesSelected int             `json:"total_scenes_selected" validate:"min=1"`
	AverageSceneLength  float64         `json:"average_scene_length"`
	SelectedScenes      []SelectedScene `json:"selected_scenes" validate:"required,min=1,dive"`
	ReasoningSummary    string          `json:"reasoning_summary" validate:"required"`
}

// VisualPrompt is the image-generation prompt payload for one scene
type VisualPrompt struct {
	SceneID        int    `json:"scene_id"`
	ImagePrompt    string `json:"image_prompt" validate:"required"`
	StyleNotes     string `json:"style_notes" validate:"required"`
	NegativePrompt string `json:"negative_prompt" validate:"required"`
	Setting        string `json:"setting" validate:"required"`
	ShotType       string `json:"shot_type" validate:"required"`
	Mood           string `json:"mood" validate:"required"`
	ColorPalette   string `json:"color_palette" validate:"required"`
}

// Scene is one director-selected segment of a project timeline.
// SceneID is the selection-order ordinal, unique within the project.
type Scene struct {
	SceneID             int           `json:"scene_id"`
	ProjectID           string        `json:"project_id"`
	Title               string        `json:"title"`
	StartTime           float64       `json:"start_time"`
	EndTime             float64       `json:"end_time"`
	Duration            float64       `json:"duration"`
	SourceSegments      []int         `json:"source_segments,omitempty"`
	LyricsExcerpt       string        `json:"lyrics_excerpt"`
	Theme               string        `json:"theme"`
	EnergyLevel         int           `json:"energy_level"`
	VisualPotential     int           `json:"visual_potential"`
	NarrativeImportance int           `json:"narrative_importance"`
	Reasoning           string        `json:"reasoning"`
	VisualPrompt        *VisualPrompt `json:"visual_prompt,omitempty"`
	PromptStatus        PromptStatus  `json:"prompt_status"`
}

// ProjectScenesResponse lists all scenes for a project with prompt state
type ProjectScenesResponse struct {
	ProjectID        string        `json:"project_id"`
	Status           ProjectStatus `json:"status"`
	Scenes           []*Scene      `json:"scenes"`
	CompletedPrompts int           `json:"completed_prompts"`
	TotalPrompts     int           `json:"total_prompts"`
}
