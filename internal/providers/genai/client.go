package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	VideoModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the Gemini REST API. Providers build
// domain-specific requests on top of it: JSON-mode content generation for
// analysis and prompt drafting, and the long-running operations API for
// video generation.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	videoModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// Part is one piece of a user turn: either text or a file reference.
type Part struct {
	Text     string
	FileURI  string
	MimeType string
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts,omitempty"`
}

type apiPart struct {
	Text     string       `json:"text,omitempty"`
	FileData *apiFileData `json:"fileData,omitempty"`
}

type apiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type apiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateContentRequest struct {
	Contents          []apiContent         `json:"contents"`
	SystemInstruction *apiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content apiContent `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	videoModel := strings.TrimSpace(opts.VideoModel)
	if videoModel == "" {
		videoModel = "veo-2.0-generate-001"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		model:      model,
		videoModel: videoModel,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Model returns the configured text model identifier.
func (c *Client) Model() string { return c.model }

// VideoModel returns the configured video model identifier.
func (c *Client) VideoModel() string { return c.videoModel }

// GenerateJSON runs a JSON-mode generateContent call and decodes the first
// candidate into out.
func (c *Client) GenerateJSON(ctx context.Context, system string, parts []Part, out any) error {
	req := generateContentRequest{
		Contents: []apiContent{{Role: "user", Parts: toAPIParts(parts)}},
		GenerationConfig: &apiGenerationConfig{
			Temperature:      0.4,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	if system != "" {
		req.SystemInstruction = &apiContent{Parts: []apiPart{{Text: system}}}
	}
	var resp generateContentResponse
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	if err := c.post(ctx, endpoint, req, &resp); err != nil {
		return err
	}
	text := firstText(resp)
	if text == "" {
		return fmt.Errorf("%w: gemini returned no candidates", domain.ErrProviderFailure)
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return fmt.Errorf("%w: decode gemini payload: %v", domain.ErrProviderFailure, err)
	}
	return nil
}

// VideoInstance describes one predictLongRunning input.
type VideoInstance struct {
	Prompt string         `json:"prompt"`
	Image  *VideoRefImage `json:"image,omitempty"`
}

// VideoRefImage points the video model at a reference frame.
type VideoRefImage struct {
	GCSURI   string `json:"gcsUri,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// VideoParameters tunes the generated clip.
type VideoParameters struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type predictLongRunningRequest struct {
	Instances  []VideoInstance `json:"instances"`
	Parameters VideoParameters `json:"parameters"`
}

type operationRef struct {
	Name string `json:"name"`
}

// StartVideo submits a video generation request and returns the operation
// name used to watch for completion. The call itself never waits.
func (c *Client) StartVideo(ctx context.Context, model string, instance VideoInstance, params VideoParameters) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = c.videoModel
	}
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, model)
	var ref operationRef
	if err := c.post(ctx, endpoint, predictLongRunningRequest{
		Instances:  []VideoInstance{instance},
		Parameters: params,
	}, &ref); err != nil {
		return "", err
	}
	if ref.Name == "" {
		return "", fmt.Errorf("%w: gemini returned no operation name", domain.ErrProviderFailure)
	}
	return ref.Name, nil
}

// Operation is the normalized state of a long-running video task.
type Operation struct {
	Name     string
	Done     bool
	VideoURI string
	ErrorMsg string
}

type operationResponse struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
	Error *struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// GetOperation fetches the current state of a long-running operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(name, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini operation: %v", domain.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: gemini operation http %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var op operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("%w: decode operation: %v", domain.ErrProviderFailure, err)
	}
	out := &Operation{Name: op.Name, Done: op.Done}
	if op.Error != nil {
		out.ErrorMsg = op.Error.Message
	}
	if op.Response != nil {
		samples := op.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) > 0 {
			out.VideoURI = samples[0].Video.URI
		}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: gemini request: %v", domain.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.Debug().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("genai: request rejected")
		}
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%w: gemini: %s", domain.ErrProviderFailure, apiErr.Error.Message)
		}
		return fmt.Errorf("%w: gemini http %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode gemini response: %v", domain.ErrProviderFailure, err)
	}
	return nil
}

func toAPIParts(parts []Part) []apiPart {
	out := make([]apiPart, 0, len(parts))
	for _, p := range parts {
		if p.FileURI != "" {
			mime := p.MimeType
			if mime == "" {
				mime = "image/png"
			}
			out = append(out, apiPart{FileData: &apiFileData{MimeType: mime, FileURI: p.FileURI}})
			continue
		}
		out = append(out, apiPart{Text: p.Text})
	}
	return out
}

func firstText(resp generateContentResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
