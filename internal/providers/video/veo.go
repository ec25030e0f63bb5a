package video

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// SubmitRequest describes one clip generation submission.
type SubmitRequest struct {
	// ImageURLs are reference frames. The first entry is the start frame;
	// a second entry, when present, is the target end frame.
	ImageURLs   []string
	Prompt      string
	AspectRatio string
	Seconds     int
	Model       string
}

// TaskState is the normalized lifecycle of a video generation task.
type TaskState string

const (
	TaskProcessing TaskState = "processing"
	TaskSucceeded  TaskState = "succeeded"
	TaskFailed     TaskState = "failed"
)

// TaskStatus is the normalized status of a submitted task.
type TaskStatus struct {
	State    TaskState
	VideoURL string
	ErrorMsg string
}

// Generator submits video generation tasks and reports their progress.
// Generation is always asynchronous: Submit returns a provider task id and
// the result arrives later via webhook or Status polling.
type Generator interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, taskID string) (*TaskStatus, error)
}

// VeoGenerator implements Generator on the Gemini long-running operations API.
type VeoGenerator struct {
	client *genai.Client
}

func NewVeoGenerator(client *genai.Client) *VeoGenerator {
	return &VeoGenerator{client: client}
}

func (g *VeoGenerator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("video: prompt required")
	}
	instance := genai.VideoInstance{Prompt: req.Prompt}
	if len(req.ImageURLs) > 0 && req.ImageURLs[0] != "" {
		instance.Image = &genai.VideoRefImage{FileURI: req.ImageURLs[0], MimeType: "image/png"}
	}
	seconds := req.Seconds
	if seconds <= 0 {
		seconds = domain.SceneSeconds
	}
	name, err := g.client.StartVideo(ctx, req.Model, instance, genai.VideoParameters{
		AspectRatio:     req.AspectRatio,
		DurationSeconds: seconds,
	})
	if err != nil {
		return "", fmt.Errorf("video: submit: %w", err)
	}
	return name, nil
}

func (g *VeoGenerator) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("video: task id required")
	}
	op, err := g.client.GetOperation(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("video: status: %w", err)
	}
	switch {
	case !op.Done:
		return &TaskStatus{State: TaskProcessing}, nil
	case op.ErrorMsg != "":
		return &TaskStatus{State: TaskFailed, ErrorMsg: op.ErrorMsg}, nil
	case op.VideoURI == "":
		return &TaskStatus{State: TaskFailed, ErrorMsg: "video: operation finished without a result"}, nil
	default:
		return &TaskStatus{State: TaskSucceeded, VideoURL: op.VideoURI}, nil
	}
}

var _ Generator = (*VeoGenerator)(nil)
