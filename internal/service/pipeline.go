package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	analysisclient "github.com/sustainabot/sustainabot/internal/adapter/analysis"
	"github.com/sustainabot/sustainabot/internal/adapter/github"
	"github.com/sustainabot/sustainabot/internal/adapter/gitlab"
	otelx "github.com/sustainabot/sustainabot/internal/adapter/otel"
	"github.com/sustainabot/sustainabot/internal/domain/analysis"
	"github.com/sustainabot/sustainabot/internal/domain/webhook"
	"github.com/sustainabot/sustainabot/internal/report"
)

// PipelineMetrics receives pipeline outcome counts.
type PipelineMetrics interface {
	AnalysisDispatched(platform string)
	AnalysisFallback(platform string)
	CommentPosted(platform string)
}

// Pipeline runs a normalized webhook event through analysis, rendering and
// comment posting. Failures downstream of a valid webhook never fail the
// acknowledgment: the platforms expect a fast 2xx, so credential, analysis
// and posting errors are logged with structured context and degrade the
// outcome instead.
type Pipeline struct {
	mode     report.Mode
	analyzer *analysisclient.Client
	github   *github.Client
	gitlab   *gitlab.Client
	creds    *CredentialManager
	runtime  *Runtime
	metrics  PipelineMetrics
}

// NewPipeline wires the webhook pipeline.
func NewPipeline(
	mode report.Mode,
	analyzer *analysisclient.Client,
	gh *github.Client,
	gl *gitlab.Client,
	creds *CredentialManager,
	runtime *Runtime,
	metrics PipelineMetrics,
) *Pipeline {
	return &Pipeline{
		mode:     mode,
		analyzer: analyzer,
		github:   gh,
		gitlab:   gl,
		creds:    creds,
		runtime:  runtime,
		metrics:  metrics,
	}
}

// githubTriggerActions are the pull_request actions that trigger analysis.
// reopened is deliberately included alongside opened and synchronize: a
// reopened PR has the same review needs as a fresh one.
var githubTriggerActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// gitlabTriggerActions are the merge-request actions that trigger analysis.
var gitlabTriggerActions = map[string]bool{
	"open":   true,
	"update": true,
	"reopen": true,
}

// Process runs the pipeline for one normalized event. The returned bool
// reports whether an analysis was triggered; errors are reserved for
// internal misuse (unknown platform) and never reflect downstream failures.
func (p *Pipeline) Process(ctx context.Context, ev *webhook.Event) (bool, error) {
	switch ev.Platform {
	case webhook.PlatformGitHub:
		return p.processGitHub(ctx, ev), nil
	case webhook.PlatformGitLab:
		return p.processGitLab(ctx, ev), nil
	default:
		return false, fmt.Errorf("unknown platform %q", ev.Platform)
	}
}

func (p *Pipeline) processGitHub(ctx context.Context, ev *webhook.Event) bool {
	if ev.Type != "pull_request" || !githubTriggerActions[ev.Action] {
		slog.Debug("github event ignored", "type", ev.Type, "action", ev.Action, "repo", ev.Repository.FullName())
		return false
	}

	var raw struct {
		PullRequest struct {
			Number int `json:"number"`
			Base   struct {
				Ref string `json:"ref"`
			} `json:"base"`
			Head struct {
				Ref string `json:"ref"`
				SHA string `json:"sha"`
			} `json:"head"`
		} `json:"pull_request"`
	}
	if err := json.Unmarshal(ev.Payload, &raw); err != nil {
		slog.Error("github pull_request payload unreadable",
			"repo", ev.Repository.FullName(), "stage", "extract", "error", err)
		return false
	}

	pr := raw.PullRequest
	log := slog.With("platform", "github", "repo", ev.Repository.FullName(), "pr", pr.Number)

	id := uuid.NewString()
	p.runtime.Dispatch(AnalysisRequested{ID: id, Repo: ev.Repository.FullName(), PRNumber: pr.Number})
	p.runtime.Dispatch(AnalysisStarted{ID: id})

	ctx, span := otelx.StartAnalysisSpan(ctx, ev.Repository.FullName(), pr.Number)
	result, degraded := p.analyze(ctx, log, "github", ev.Repository.URL, pr.Base.Ref, pr.Head.Ref)
	span.End()
	if degraded {
		p.runtime.Dispatch(AnalysisFailed{ID: id, Reason: "analysis service unavailable"})
	} else {
		p.runtime.Dispatch(AnalysisCompleted{ID: id})
	}

	comment := report.Comment(result, p.mode)

	token, err := p.creds.AuthToken(ctx, ev.Payload)
	if err != nil {
		log.Error("credential acquisition failed, skipping comment post", "stage", "credentials", "error", err)
		return true
	}

	if _, err := p.github.PostComment(ctx, token, ev.Repository.Owner, ev.Repository.Name, pr.Number, comment); err != nil {
		log.Error("comment post failed", "stage", "comment", "error", err)
	} else {
		if p.metrics != nil {
			p.metrics.CommentPosted("github")
		}
		log.Info("analysis comment posted", "grade", result.Health.LetterGrade())
	}

	if pr.Head.SHA != "" {
		title := fmt.Sprintf("Health Index %.1f (%s)", result.Health.Total, result.Health.LetterGrade())
		if _, err := p.github.CreateCheckRun(ctx, token,
			ev.Repository.Owner, ev.Repository.Name, pr.Head.SHA,
			result.Passed(), title, comment); err != nil {
			log.Error("check run creation failed", "stage", "check_run", "error", err)
		}
	}

	return true
}

func (p *Pipeline) processGitLab(ctx context.Context, ev *webhook.Event) bool {
	if ev.Type != "Merge Request Hook" {
		slog.Debug("gitlab event ignored", "type", ev.Type, "repo", ev.Repository.FullName())
		return false
	}

	var raw struct {
		ObjectAttributes struct {
			IID          int    `json:"iid"`
			Action       string `json:"action"`
			SourceBranch string `json:"source_branch"`
			TargetBranch string `json:"target_branch"`
		} `json:"object_attributes"`
	}
	if err := json.Unmarshal(ev.Payload, &raw); err != nil {
		slog.Error("gitlab merge request payload unreadable",
			"repo", ev.Repository.FullName(), "stage", "extract", "error", err)
		return false
	}

	attrs := raw.ObjectAttributes
	if !gitlabTriggerActions[attrs.Action] {
		slog.Debug("gitlab merge request action ignored",
			"action", attrs.Action, "repo", ev.Repository.FullName())
		return false
	}

	log := slog.With("platform", "gitlab", "repo", ev.Repository.FullName(), "mr", attrs.IID)

	id := uuid.NewString()
	p.runtime.Dispatch(AnalysisRequested{ID: id, Repo: ev.Repository.FullName(), PRNumber: attrs.IID})
	p.runtime.Dispatch(AnalysisStarted{ID: id})

	ctx, span := otelx.StartAnalysisSpan(ctx, ev.Repository.FullName(), attrs.IID)
	result, degraded := p.analyze(ctx, log, "gitlab", ev.Repository.URL, attrs.TargetBranch, attrs.SourceBranch)
	span.End()
	if degraded {
		p.runtime.Dispatch(AnalysisFailed{ID: id, Reason: "analysis service unavailable"})
	} else {
		p.runtime.Dispatch(AnalysisCompleted{ID: id})
	}

	comment := report.Comment(result, p.mode)

	if !p.gitlab.Configured() {
		log.Warn("gitlab api token not configured, skipping note post", "stage", "comment")
		return true
	}

	if _, err := p.gitlab.PostMergeRequestNote(ctx, ev.Repository.Owner, ev.Repository.Name, attrs.IID, comment); err != nil {
		log.Error("mr note post failed", "stage", "comment", "error", err)
	} else {
		if p.metrics != nil {
			p.metrics.CommentPosted("gitlab")
		}
		log.Info("analysis note posted", "grade", result.Health.LetterGrade())
	}

	return true
}

// analyze dispatches a diff analysis (or a whole-repo analysis when refs
// are missing) and substitutes the documented fallback result on failure.
// The substitution is logged as an error, never silent.
func (p *Pipeline) analyze(ctx context.Context, log *slog.Logger, platform, repoURL, base, head string) (result *analysis.Result, degraded bool) {
	if p.metrics != nil {
		p.metrics.AnalysisDispatched(platform)
	}

	var err error
	if base != "" && head != "" {
		result, err = p.analyzer.AnalyzeDiff(ctx, repoURL, base, head)
	} else {
		result, err = p.analyzer.AnalyzeRepository(ctx, repoURL, head)
	}
	if err != nil {
		log.Error("analysis dispatch failed, using fallback result", "stage", "analysis", "error", err)
		if p.metrics != nil {
			p.metrics.AnalysisFallback(platform)
		}
		return analysisclient.FallbackResult(), true
	}
	return result, false
}
