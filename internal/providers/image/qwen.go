package image

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
)

// ErrMissingAPIKey indicates the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// Editor applies an instruction prompt to a source image.
type Editor interface {
	// Edit performs a subscribe-and-wait edit and returns the result URL.
	Edit(ctx context.Context, imageURL, instruction string) (string, error)
	// CreateEditTask submits an asynchronous edit and returns a task id.
	CreateEditTask(ctx context.Context, imageURL, instruction string) (string, error)
	// GetEditTask fetches the state of a previously submitted task.
	GetEditTask(ctx context.Context, taskID string) (*TaskStatus, error)
}

// TaskState is the normalized lifecycle of an asynchronous edit task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// TaskStatus is the normalized async task result.
type TaskStatus struct {
	State    TaskState
	ImageURL string
	ErrorMsg string
}

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// QwenClient performs HTTP calls to the DashScope image edit API.
type QwenClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	token      string
}

func NewQwenClient(opts Options) *QwenClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-edit"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &QwenClient{
		httpClient: client,
		baseURL:    base,
		model:      model,
		token:      strings.TrimSpace(opts.APIKey),
	}
}

type editRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []editMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Watermark bool `json:"watermark"`
	} `json:"parameters"`
}

type editMessage struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type editResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []map[string]string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Edit posts a synchronous edit request and waits for the provider response.
func (c *QwenClient) Edit(ctx context.Context, imageURL, instruction string) (string, error) {
	body, err := c.buildRequest(imageURL, instruction)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, false)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: qwen request: %v", domain.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out editResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("%w: qwen http %d", domain.ErrProviderFailure, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: decode qwen response: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", qwenError(out.Message, out.Code, resp.StatusCode)
	}
	if len(out.Output.Choices) == 0 || len(out.Output.Choices[0].Message.Content) == 0 {
		return "", qwenError(out.Message, out.Code, resp.StatusCode)
	}
	url := strings.TrimSpace(out.Output.Choices[0].Message.Content[0]["image"])
	if url == "" {
		return "", fmt.Errorf("%w: qwen: missing image url", domain.ErrProviderFailure)
	}
	return url, nil
}

type createTaskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateEditTask submits the same edit asynchronously via the DashScope task
// API and returns immediately with the provider task id.
func (c *QwenClient) CreateEditTask(ctx context.Context, imageURL, instruction string) (string, error) {
	body, err := c.buildRequest(imageURL, instruction)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, true)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: qwen submit: %v", domain.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out createTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode qwen submit response: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", qwenError(out.Message, out.Code, resp.StatusCode)
	}
	if out.Output.TaskID == "" {
		return "", fmt.Errorf("%w: qwen: missing task id", domain.ErrProviderFailure)
	}
	return out.Output.TaskID, nil
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Message string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetEditTask fetches the provider's status-by-task-id endpoint.
func (c *QwenClient) GetEditTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, errors.New("qwen: task id required")
	}
	endpoint := c.baseURL + "/tasks/" + taskID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, false)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: qwen task query: %v", domain.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode qwen task: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, qwenError(out.Message, out.Code, resp.StatusCode)
	}
	switch strings.ToUpper(out.Output.TaskStatus) {
	case "SUCCEEDED":
		if len(out.Output.Results) == 0 || out.Output.Results[0].URL == "" {
			return &TaskStatus{State: TaskFailed, ErrorMsg: "qwen: succeeded without result url"}, nil
		}
		return &TaskStatus{State: TaskSucceeded, ImageURL: out.Output.Results[0].URL}, nil
	case "FAILED", "CANCELED":
		msg := out.Output.Message
		if msg == "" {
			msg = out.Message
		}
		if msg == "" {
			msg = "qwen: task failed"
		}
		return &TaskStatus{State: TaskFailed, ErrorMsg: msg}, nil
	default:
		return &TaskStatus{State: TaskPending}, nil
	}
}

func (c *QwenClient) buildRequest(imageURL, instruction string) ([]byte, error) {
	if c.token == "" {
		return nil, ErrMissingAPIKey
	}
	trimmed := strings.TrimSpace(imageURL)
	if trimmed == "" {
		return nil, errors.New("qwen: image url required")
	}
	var payload editRequest
	payload.Model = c.model
	payload.Input.Messages = []editMessage{{
		Role: "user",
		Content: []map[string]any{
			{"image": trimmed},
			{"text": instruction},
		},
	}}
	return json.Marshal(payload)
}

func (c *QwenClient) setHeaders(req *http.Request, async bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if async {
		req.Header.Set("X-DashScope-Async", "enable")
	}
}

func qwenError(message, code string, status int) error {
	if message != "" {
		return fmt.Errorf("%w: qwen: %s (%s)", domain.ErrProviderFailure, message, code)
	}
	return fmt.Errorf("%w: qwen http %d", domain.ErrProviderFailure, status)
}

var _ Editor = (*QwenClient)(nil)
