package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"server/internal/domain"
	"server/internal/pipeline"
)

// webhookPayload is the superset of the provider callback shapes we accept.
// Task generation providers disagree on field names, so every known spelling
// of the task id, status, and result URL is tried in order.
type webhookPayload struct {
	TaskID   string `json:"task_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	ImageURL string `json:"image_url"`
	URL      string `json:"url"`
	Message  string `json:"message"`
	Error    string `json:"error"`

	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Message    string `json:"message"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
	} `json:"output"`
}

func (p *webhookPayload) taskID() string {
	for _, id := range []string{p.TaskID, p.Output.TaskID, p.Name} {
		if id != "" {
			return id
		}
	}
	return ""
}

func (p *webhookPayload) state() string {
	if p.Status != "" {
		return strings.ToUpper(p.Status)
	}
	return strings.ToUpper(p.Output.TaskStatus)
}

func (p *webhookPayload) resultURL() string {
	for _, u := range []string{p.VideoURL, p.ImageURL, p.URL} {
		if u != "" {
			return u
		}
	}
	if len(p.Output.Results) > 0 {
		return p.Output.Results[0].URL
	}
	return ""
}

func (p *webhookPayload) errorMessage() string {
	for _, m := range []string{p.Error, p.Message, p.Output.Message} {
		if m != "" {
			return m
		}
	}
	return ""
}

// outcome maps the payload to a task outcome. Non-terminal notifications
// (queued, running) report ok=false and must be acknowledged without
// touching the store.
func (p *webhookPayload) outcome() (pipeline.TaskOutcome, bool) {
	out := pipeline.TaskOutcome{TaskID: p.taskID()}
	switch p.state() {
	case "SUCCEEDED", "SUCCESS", "COMPLETED", "DONE":
		out.Succeeded = true
		out.ResultURL = p.resultURL()
		return out, true
	case "FAILED", "ERROR", "CANCELED", "CANCELLED":
		out.ErrorMessage = p.errorMessage()
		return out, true
	default:
		return out, false
	}
}

// ImageWebhook receives the async image generation callback.
func (a *App) ImageWebhook(w http.ResponseWriter, r *http.Request) {
	a.handleWebhook(w, r, pipeline.Expectation{
		Kind:    domain.KindTransition,
		Waiting: domain.StatusImageBWaiting,
	})
}

// VideoWebhook receives video generation callbacks for campaign projects.
func (a *App) VideoWebhook(w http.ResponseWriter, r *http.Request) {
	a.handleWebhook(w, r, pipeline.Expectation{
		Kind:    domain.KindCampaign,
		Waiting: domain.StatusVideoWaiting,
	})
}

// TemplateVideoWebhook receives the transition (A to B) video callback.
func (a *App) TemplateVideoWebhook(w http.ResponseWriter, r *http.Request) {
	a.handleWebhook(w, r, pipeline.Expectation{
		Kind:    domain.KindTransition,
		Waiting: domain.StatusVideoWaiting,
	})
}

// handleWebhook acknowledges every delivery with 200. Internal mismatches
// are logged and dropped so the provider never enters a retry storm.
func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request, expect pipeline.Expectation) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.Logger.Warn().Err(err).Str("route", r.URL.Path).Msg("webhook: undecodable payload, acknowledged")
		a.json(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if outcome, terminal := payload.outcome(); terminal {
		a.Pipeline.ResolveWebhook(r.Context(), outcome, expect)
	} else {
		a.Logger.Info().Str("task_id", payload.taskID()).Str("state", payload.state()).Msg("webhook: non-terminal notification ignored")
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}

// WebhookLiveness answers GET on the webhook routes so the registration can
// be verified by hand.
func (a *App) WebhookLiveness(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "route": r.URL.Path})
}
