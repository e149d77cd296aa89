// Package service contains the webhook pipeline: event normalization,
// GitHub App credential management, analysis dispatch and the event-loop
// runtime that tracks in-flight analyses.
package service

import (
	"encoding/json"
	"fmt"

	"github.com/sustainabot/sustainabot/internal/domain"
	"github.com/sustainabot/sustainabot/internal/domain/webhook"
)

// Normalize parses a raw webhook body into a platform-agnostic event. The
// event type comes from the platform header (X-GitHub-Event /
// X-Gitlab-Event), already extracted by the handler. Parsing never panics:
// missing intermediate objects decode to zero values, undecodable JSON is
// ErrMalformedPayload, and a payload with no recognizable repository is
// ErrUnrecognizedEvent. Both map to a 400 at the edge.
func Normalize(platform webhook.Platform, eventType string, body []byte) (*webhook.Event, error) {
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type header", domain.ErrUnrecognizedEvent)
	}

	switch platform {
	case webhook.PlatformGitHub:
		return normalizeGitHub(eventType, body)
	case webhook.PlatformGitLab:
		return normalizeGitLab(eventType, body)
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", domain.ErrUnrecognizedEvent, platform)
	}
}

func normalizeGitHub(eventType string, body []byte) (*webhook.Event, error) {
	var raw struct {
		Action     string `json:"action"`
		Repository struct {
			Name  string `json:"name"`
			Owner struct {
				Login string `json:"login"`
			} `json:"owner"`
			HTMLURL string `json:"html_url"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	if raw.Repository.Owner.Login == "" || raw.Repository.Name == "" {
		return nil, fmt.Errorf("%w: github %s payload has no repository", domain.ErrUnrecognizedEvent, eventType)
	}

	return &webhook.Event{
		Platform: webhook.PlatformGitHub,
		Type:     eventType,
		Action:   raw.Action,
		Repository: webhook.Repository{
			Owner: raw.Repository.Owner.Login,
			Name:  raw.Repository.Name,
			URL:   raw.Repository.HTMLURL,
		},
		Payload: json.RawMessage(body),
	}, nil
}

func normalizeGitLab(eventType string, body []byte) (*webhook.Event, error) {
	var raw struct {
		Project struct {
			Namespace string `json:"namespace"`
			Name      string `json:"name"`
			WebURL    string `json:"web_url"`
		} `json:"project"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	if raw.Project.Namespace == "" || raw.Project.Name == "" {
		return nil, fmt.Errorf("%w: gitlab %s payload has no project", domain.ErrUnrecognizedEvent, eventType)
	}

	// GitLab has no top-level action; merge-request payloads embed it in
	// object_attributes.action, extracted by the pipeline.
	return &webhook.Event{
		Platform: webhook.PlatformGitLab,
		Type:     eventType,
		Repository: webhook.Repository{
			Owner: raw.Project.Namespace,
			Name:  raw.Project.Name,
			URL:   raw.Project.WebURL,
		},
		Payload: json.RawMessage(body),
	}, nil
}
