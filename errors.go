package sleuth

import (
	"errors"
	"fmt"
)

// Stage identifies which part of the pipeline an error came from, so a
// caller can tell "site is unreachable" apart from "model returned garbage"
// apart from "disk write failed".
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageDiscovery Stage = "discovery"
	StageVerify    Stage = "verify"
	StageCache     Stage = "cache"
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	// FetchUnreachable means the host could not be contacted at all
	// (DNS failure, connection refused, timeout).
	FetchUnreachable FetchErrorKind = "unreachable"
	// FetchBlocked means the response indicates bot detection or rate
	// limiting. Blocked responses from the lightweight fetcher trigger
	// browser escalation rather than immediate failure.
	FetchBlocked FetchErrorKind = "blocked"
	// FetchBadStatus means the server answered with a non-retryable HTTP
	// status (4xx other than 429).
	FetchBadStatus FetchErrorKind = "bad_status"
	// FetchUnfetchable means every strategy was tried and none produced
	// usable article content.
	FetchUnfetchable FetchErrorKind = "unfetchable"
)

// FetchError is returned when a page cannot be fetched or yields no usable
// content after full strategy escalation.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Stage implements the stage attribution used in batch result reporting.
func (e *FetchError) Stage() Stage { return StageFetch }

// DiscoveryErrorKind classifies discovery failures.
type DiscoveryErrorKind string

const (
	// DiscoveryModelFailure means the model call itself failed (transport
	// error, provider 5xx, timeout). Retryable.
	DiscoveryModelFailure DiscoveryErrorKind = "model_failure"
	// DiscoverySchemaViolation means the model answered but the response
	// did not conform to the required shape: missing fields, unknown
	// fields, or malformed selector syntax. Never retried by the policy;
	// the orchestrator decides whether to re-run discovery.
	DiscoverySchemaViolation DiscoveryErrorKind = "schema_violation"
)

// DiscoveryError is returned when the selector discovery agent fails.
type DiscoveryError struct {
	Kind DiscoveryErrorKind
	Err  error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("discovery: %s", e.Kind)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Stage() Stage { return StageDiscovery }

// CacheError is returned when the domain cache store cannot read or write a
// persisted entry. Corrupt JSON on read is deliberately not a CacheError:
// the store treats it as a cache miss so the tool heals itself.
type CacheError struct {
	Op     string // "load", "save", "summary"
	Domain string
	Err    error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Domain, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Stage() Stage { return StageCache }

// stager is implemented by all pipeline error types.
type stager interface {
	Stage() Stage
}

// ErrorStage reports the pipeline stage an error is attributable to, or ""
// when the error did not come from a pipeline component.
func ErrorStage(err error) Stage {
	var s stager
	if errors.As(err, &s) {
		return s.Stage()
	}
	return ""
}

// IsRetryable reports whether an error is worth retrying: timeouts,
// transient transport failures, blocked/rate-limited responses and model
// call failures are; schema violations and non-retryable HTTP statuses are
// not. Unknown errors default to retryable so flaky network conditions are
// not surfaced prematurely.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case FetchBadStatus, FetchUnfetchable:
			return false
		}
		return true
	}
	var de *DiscoveryError
	if errors.As(err, &de) {
		return de.Kind != DiscoverySchemaViolation
	}
	var ce *CacheError
	if errors.As(err, &ce) {
		return false
	}
	return true
}
