package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CreateRequest is the normalized payload accepted by project creation.
type CreateRequest struct {
	Kind            string `json:"kind"`
	Instructions    string `json:"instructions"`
	AspectRatio     string `json:"aspect_ratio"`
	DurationSeconds int    `json:"duration_seconds"`
}

var allowedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

const (
	// DefaultAspectRatio is used when the request omits the aspect ratio.
	DefaultAspectRatio = "16:9"
	// DefaultDurationSeconds is the fallback clip length for empty requests.
	DefaultDurationSeconds = 8
	// MaxDurationSeconds caps the total requested video length.
	MaxDurationSeconds = 60
)

// Normalize applies server defaults and limits to the request in place.
func (r *CreateRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Kind == "" {
		r.Kind = "campaign"
	}
	r.Instructions = strings.TrimSpace(r.Instructions)
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	if r.DurationSeconds <= 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	if r.DurationSeconds > MaxDurationSeconds {
		r.DurationSeconds = MaxDurationSeconds
	}
}

// Validate reports whether the normalized request is acceptable.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	if r.Instructions == "" {
		return fmt.Errorf("instructions are required")
	}
	if _, ok := allowedAspectRatios[r.AspectRatio]; !ok {
		return fmt.Errorf("aspect ratio %q is not supported", r.AspectRatio)
	}
	if r.Kind != "campaign" && r.Kind != "transition" {
		return fmt.Errorf("kind %q is not supported", r.Kind)
	}
	return nil
}

// MustMarshal serializes v and panics on failure. Reserved for payloads the
// server itself constructs.
func MustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("jsoncfg: marshal: %v", err))
	}
	return data
}
