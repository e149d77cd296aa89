// Package webhook defines the platform-agnostic webhook event model.
package webhook

import "encoding/json"

// Platform identifies the origin VCS platform of a webhook delivery.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
)

// Repository is the owner/name/URL triple extracted from a payload.
type Repository struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Event is a normalized webhook event. It is created once per inbound
// request by the normalizer and never mutated afterwards. Payload keeps the
// raw JSON body so later stages (installation id, MR action, refs) can
// extract platform-specific detail without re-reading the request.
type Event struct {
	Platform   Platform        `json:"platform"`
	Type       string          `json:"type"`
	Action     string          `json:"action,omitempty"`
	Repository Repository      `json:"repository"`
	Payload    json.RawMessage `json:"-"`
}
