package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/omvee/api/internal/client"
	"github.com/omvee/api/internal/model"
)

// Director is the AI half of the scene pipeline: one call partitions a
// transcript into scenes, another writes the visual prompt for one scene.
type Director interface {
	SelectScenes(ctx context.Context, transcript *model.Transcript, song model.SongMetadata) (*model.SceneSelectionResult, error)
	GenerateVisualPrompt(ctx context.Context, scene *model.Scene, referenceImages map[string]string, song model.SongMetadata) (*model.VisualPrompt, error)
}

// ChatClient is the narrow contract the director needs from the
// text-generation service.
type ChatClient interface {
	ChatCompletion(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
	IsConfigured() bool
}

// DirectorService implements Director on top of the OpenRouter client.
type DirectorService struct {
	chat      ChatClient
	validate  *validator.Validate
	minScenes int
	maxScenes int
}

func NewDirectorService(chat ChatClient, validate *validator.Validate, minScenes, maxScenes int) *DirectorService {
	if minScenes <= 0 {
		minScenes = 15
	}
	if maxScenes < minScenes {
		maxScenes = 20
	}
	return &DirectorService{
		chat:      chat,
		validate:  validate,
		minScenes: minScenes,
		maxScenes: maxScenes,
	}
}

// SelectScenes asks the model to partition the transcript into an ordered
// scene list and strict-parses the result. Any parse or schema failure is a
// hard failure; there is no partial acceptance.
func (s *DirectorService) SelectScenes(ctx context.Context, transcript *model.Transcript, song model.SongMetadata) (*model.SceneSelectionResult, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, fmt.Errorf("transcript must contain segments for scene selection")
	}

	prompt := s.buildSceneSelectionPrompt(transcript, song)

	content, err := s.chat.ChatCompletion(ctx, prompt, 0.7, 4000)
	if err != nil {
		return nil, fmt.Errorf("scene selection request failed: %w", err)
	}

	content = client.StripCodeFence(content)

	var result model.SceneSelectionResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON in scene selection response: %w", err)
	}
	if err := s.validate.Struct(&result); err != nil {
		return nil, fmt.Errorf("invalid scene selection format: %w", err)
	}

	for _, warning := range validateSceneTiling(result.SelectedScenes, transcript.Duration()) {
		log.Printf("Scene selection coverage warning: %s", warning)
	}

	return &result, nil
}

// GenerateVisualPrompt writes the image-generation prompt for one scene.
// When reference images are present the model is instructed to depict the
// referenced artist rather than a generic figure.
func (s *DirectorService) GenerateVisualPrompt(ctx context.Context, scene *model.Scene, referenceImages map[string]string, song model.SongMetadata) (*model.VisualPrompt, error) {
	prompt := s.buildVisualPromptPrompt(scene, referenceImages, song)

	content, err := s.chat.ChatCompletion(ctx, prompt, 0.8, 1000)
	if err != nil {
		return nil, fmt.Errorf("visual prompt request failed: %w", err)
	}

	content = client.StripCodeFence(content)

	var result model.VisualPrompt
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON in visual prompt response: %w", err)
	}
	if err := s.validate.Struct(&result); err != nil {
		return nil, fmt.Errorf("invalid visual prompt format: %w", err)
	}

	result.SceneID = scene.SceneID
	return &result, nil
}

func (s *DirectorService) buildSceneSelectionPrompt(transcript *model.Transcript, song model.SongMetadata) string {
	var sb strings.Builder

	sb.WriteString("You are an expert music video director analyzing song lyrics to select the most cinematic scenes.\n")
	sb.WriteString("\nSONG INFORMATION:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", orUnknown(song.Title))
	fmt.Fprintf(&sb, "- Artist: %s\n", orUnknown(song.Artist))
	fmt.Fprintf(&sb, "- Genre: %s\n", orUnknown(song.Genre))

	sb.WriteString("\nTRANSCRIPT SEGMENTS:\n")
	for i, segment := range transcript.Segments {
		fmt.Fprintf(&sb, "Segment %d: %.1fs-%.1fs: %s\n", i, segment.Start, segment.End, segment.Text)
	}

	fmt.Fprintf(&sb, `
TASK: Select between %d-%d scenes from these lyrics that would make the most compelling music video. Use your discretion to choose the optimal number of scenes based on the song content. Each scene should be 5-10 seconds long.

COVERAGE REQUIREMENT: Ensure 100%% coverage of the song timeline. When one scene's end_time finishes, the next scene's start_time should begin immediately with NO GAPS. The scenes must cover the entire song from start to finish without skipping any content.

SELECTION CRITERIA:
- Visual storytelling potential (1-10)
- Emotional impact and energy level (1-10)
- Narrative importance to the song (1-10)
- Variety in mood and energy across scenes
- Cinematic appeal and imagery potential
- Complete timeline coverage (no gaps between scenes)

OUTPUT FORMAT (valid JSON only):
{
  "song_themes": ["theme1", "theme2", "theme3"],
  "energy_arc": "description of song's energy progression",
  "total_scenes_selected": 18,
  "average_scene_length": 7.5,
  "selected_scenes": [
    {
      "scene_id": 1,
      "title": "Scene title",
      "start_time": 12.5,
      "end_time": 20.0,
      "duration": 7.5,
      "source_segments": [3, 4],
      "lyrics_excerpt": "Combined lyrics text",
      "theme": "Scene theme/mood",
      "energy_level": 7,
      "visual_potential": 9,
      "narrative_importance": 8,
      "reasoning": "Why this scene was selected"
    }
  ],
  "reasoning_summary": "Overall selection strategy explanation"
}

Respond with only valid JSON.`, s.minScenes, s.maxScenes)

	return sb.String()
}

func (s *DirectorService) buildVisualPromptPrompt(scene *model.Scene, referenceImages map[string]string, song model.SongMetadata) string {
	var sb strings.Builder

	sb.WriteString("You are an expert cinematographer creating a specific visual prompt for a music video scene.\n")
	sb.WriteString("\nSONG CONTEXT:\n")
	fmt.Fprintf(&sb, "- Title: %s\n", orUnknown(song.Title))
	fmt.Fprintf(&sb, "- Artist: %s\n", orUnknown(song.Artist))
	fmt.Fprintf(&sb, "- Genre: %s\n", orUnknown(song.Genre))

	if len(referenceImages) > 0 {
		sb.WriteString("\nARTIST REFERENCES:\n")
		for _, imageURL := range sortedValues(referenceImages) {
			fmt.Fprintf(&sb, "- Artist Reference Image: %s\n", imageURL)
		}
		sb.WriteString(`
IMPORTANT: Use the reference image(s) to ensure the generated person matches the actual artist's appearance, clothing style, and distinctive features. Do not create a generic person - reference the specific artist shown in the image.
`)
	}

	fmt.Fprintf(&sb, `
SCENE TO VISUALIZE:
- Scene ID: %d
- Title: %q
- Lyrics: %q
- Theme: %s
- Duration: %.1f seconds
- Energy Level: %d/10
- Visual Potential: %d/10

TASK: Create a highly specific, lyric-focused image generation prompt that captures the exact imagery and emotion from these lyrics.

REQUIREMENTS:
- Interpret the SPECIFIC lyrics literally and emotionally
- Create vivid, cinema-quality imagery that matches the words
- Include professional photography/cinematography techniques
- Specify exact lighting, composition, and mood
- Make it feel like a professional music video frame

OUTPUT FORMAT (valid JSON only):
{
  "scene_id": %d,
  "image_prompt": "Ultra-detailed, lyric-specific prompt for a professional music video scene",
  "style_notes": "Specific cinematographic style and aesthetic guidance",
  "negative_prompt": "Specific things to avoid that would diminish the scene's impact",
  "setting": "Exact location/environment described in lyrics",
  "shot_type": "Professional camera shot type and angle",
  "mood": "Specific emotional atmosphere from lyrics",
  "color_palette": "Detailed color scheme that enhances the lyrical content"
}

Respond with only valid JSON.`,
		scene.SceneID, scene.Title, scene.LyricsExcerpt, scene.Theme,
		scene.Duration, scene.EnergyLevel, scene.VisualPotential, scene.SceneID)

	return sb.String()
}

// validateSceneTiling checks that the scenes, in order, tile the transcript
// timeline without gaps or overlaps. Out-of-spec output is accepted; the
// findings are returned as warnings for logging.
func validateSceneTiling(scenes []model.SelectedScene, duration float64) []string {
	const tolerance = 0.5 // seconds

	var warnings []string
	cursor := 0.0
	for i, scene := range scenes {
		if scene.StartTime > cursor+tolerance {
			warnings = append(warnings, fmt.Sprintf("gap of %.1fs before scene %d", scene.StartTime-cursor, i))
		}
		if scene.StartTime < cursor-tolerance {
			warnings = append(warnings, fmt.Sprintf("scene %d overlaps previous scene by %.1fs", i, cursor-scene.StartTime))
		}
		if scene.EndTime > cursor {
			cursor = scene.EndTime
		}
	}
	if duration > 0 && cursor < duration-tolerance {
		warnings = append(warnings, fmt.Sprintf("scenes end at %.1fs but transcript runs to %.1fs", cursor, duration))
	}
	return warnings
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Stable prompt text regardless of map iteration order
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, m[k])
	}
	return values
}
