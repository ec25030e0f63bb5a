package videomerge

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

// Merger concatenates an ordered list of clips into one video.
type Merger interface {
	Merge(ctx context.Context, videoURLs []string) (string, error)
}

// Options configures the merge service client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client calls an HTTP video concatenation service. The call is
// subscribe-and-wait: the response carries the merged video URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	client := opts.HTTPClient
	if client == nil {
		// Merging several clips server-side is slow; allow for it.
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{httpClient: client, baseURL: base, apiKey: strings.TrimSpace(opts.APIKey)}
}

type mergeRequest struct {
	Tracks []mergeTrack `json:"tracks"`
}

type mergeTrack struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Keyframes []mergeSegment `json:"keyframes"`
}

type mergeSegment struct {
	URL string `json:"url"`
}

type mergeResponse struct {
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
	Detail   string `json:"detail"`
}

// Merge submits the ordered clip list and waits for the merged result URL.
func (c *Client) Merge(ctx context.Context, videoURLs []string) (string, error) {
	if len(videoURLs) < 2 {
		return "", errors.New("videomerge: at least two clips required")
	}
	segments := make([]mergeSegment, 0, len(videoURLs))
	for _, u := range videoURLs {
		if strings.TrimSpace(u) == "" {
			return "", errors.New("videomerge: empty clip url")
		}
		segments = append(segments, mergeSegment{URL: u})
	}
	payload := mergeRequest{Tracks: []mergeTrack{{ID: "main", Type: "video", Keyframes: segments}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compose", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: merge request: %v", domain.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out mergeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("%w: merge http %d", domain.ErrProviderFailure, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: decode merge response: %v", domain.ErrProviderFailure, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = out.Detail
		}
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return "", fmt.Errorf("%w: merge: %s", domain.ErrProviderFailure, msg)
	}
	if strings.TrimSpace(out.VideoURL) == "" {
		return "", fmt.Errorf("%w: merge: missing video url", domain.ErrProviderFailure)
	}
	return out.VideoURL, nil
}

var _ Merger = (*Client)(nil)
