// Package domain provides shared domain-level sentinel errors.
//
// The sentinels mirror the webhook pipeline's failure taxonomy: only
// ErrVerificationFailed and ErrMalformedPayload/ErrUnrecognizedEvent surface
// as non-2xx responses; everything downstream of a valid webhook degrades
// without failing the acknowledgment.
package domain

import "errors"

// ErrVerificationFailed indicates a bad webhook signature or token.
var ErrVerificationFailed = errors.New("webhook verification failed")

// ErrMalformedPayload indicates the webhook body could not be parsed as JSON.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// ErrUnrecognizedEvent indicates a payload the normalizer cannot shape into
// an event (missing repository, unknown structure).
var ErrUnrecognizedEvent = errors.New("unrecognized webhook event")

// ErrCredential indicates missing App configuration, a missing installation
// id, a signing failure, or a failed installation-token exchange.
var ErrCredential = errors.New("credential error")

// ErrAnalysisUnavailable indicates the Analysis Service could not produce a
// result; the pipeline substitutes the documented fallback.
var ErrAnalysisUnavailable = errors.New("analysis service unavailable")

// ErrPlatformAPI indicates a non-2xx response from a GitHub/GitLab API call.
var ErrPlatformAPI = errors.New("platform api error")
