package domain

import (
	"math"
	"time"
)

// ProjectKind enumerates supported generation flows.
type ProjectKind string

const (
	// KindCampaign is the multi-scene promo flow: analyze, edit a hero
	// image, draft one prompt per scene, generate clips and merge them.
	KindCampaign ProjectKind = "campaign"
	// KindTransition is the A-to-B morph flow. Its image and video
	// generation calls are submit/poll, so the project parks in a waiting
	// status until a webhook or poll resolves the external task.
	KindTransition ProjectKind = "transition"
)

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

const (
	StatusPending             ProjectStatus = "pending"
	StatusAnalysisComplete    ProjectStatus = "analysis_complete"
	StatusImagePromptComplete ProjectStatus = "image_prompt_complete"
	StatusImageComplete       ProjectStatus = "image_complete"
	StatusImageSkipped        ProjectStatus = "image_skipped"
	StatusVideoPromptsDone    ProjectStatus = "video_prompts_complete"
	StatusVideosGenerated     ProjectStatus = "videos_generated"
	StatusComplete            ProjectStatus = "complete"
	StatusError               ProjectStatus = "error"

	// Waiting states used by the transition flow, where generation is
	// submit/poll rather than subscribe-and-wait.
	StatusImageBWaiting ProjectStatus = "generating_image_b_waiting"
	StatusVideoWaiting  ProjectStatus = "generating_video_waiting"
)

// transitions is the directed status graph. Terminal states have no
// out-edges; error is reachable from every non-terminal state.
var transitions = map[ProjectStatus][]ProjectStatus{
	StatusPending:             {StatusAnalysisComplete},
	StatusAnalysisComplete:    {StatusImagePromptComplete},
	StatusImagePromptComplete: {StatusImageComplete, StatusImageSkipped, StatusImageBWaiting},
	StatusImageComplete:       {StatusVideoPromptsDone, StatusVideoWaiting},
	StatusImageSkipped:        {StatusVideoPromptsDone},
	StatusVideoPromptsDone:    {StatusVideosGenerated, StatusComplete},
	StatusVideosGenerated:     {StatusComplete},
	StatusImageBWaiting:       {StatusImageComplete},
	StatusVideoWaiting:        {StatusComplete},
}

// CanTransition reports whether a project may move from one status to
// another. Every non-terminal status may move to error.
func CanTransition(from, to ProjectStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends the lifecycle.
func (s ProjectStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Waiting reports whether the status parks the project on an external task.
func (s ProjectStatus) Waiting() bool {
	return s == StatusImageBWaiting || s == StatusVideoWaiting
}

// AnalysisResult is the structured output of the vision analysis stage.
type AnalysisResult struct {
	Brand     string   `json:"brand"`
	Character string   `json:"character"`
	Colors    []string `json:"colors"`
	Style     string   `json:"style"`
}

// ImagePrompt is the drafted instruction for the image edit stage.
type ImagePrompt struct {
	ImagePrompt      string `json:"image_prompt"`
	AspectRatioImage string `json:"aspect_ratio_image"`
}

// ScenePrompt is one drafted instruction for a single video scene.
type ScenePrompt struct {
	VideoPrompt      string `json:"video_prompt"`
	AspectRatioVideo string `json:"aspect_ratio_video"`
	Model            string `json:"model"`
}

// Project tracks one end-to-end content generation request. Intermediate
// fields are populated progressively by the pipeline and never retracted.
type Project struct {
	ID              string
	Kind            ProjectKind
	Status          ProjectStatus
	ImageURL        string
	Instructions    string
	AspectRatio     string
	DurationSeconds int

	AnalysisResult        *AnalysisResult
	GeneratedImagePrompt  *ImagePrompt
	GeneratedImageURL     string
	GeneratedVideoPrompts []ScenePrompt
	GeneratedVideoURLs    []string
	VideoURL              string

	// ExternalTaskID correlates the single outstanding provider task.
	// It is overwritten on every new asynchronous submission.
	ExternalTaskID string
	ErrorMessage   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SceneSeconds is the fixed length of one generated video scene.
const SceneSeconds = 8

// SceneCount returns how many scenes a requested duration needs.
func SceneCount(durationSeconds int) int {
	if durationSeconds <= SceneSeconds {
		return 1
	}
	return int(math.Ceil(float64(durationSeconds) / float64(SceneSeconds)))
}
