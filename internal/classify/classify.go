// Package classify maps pipeline failures onto retry decisions and
// user-facing messages.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"

	"genstudio/internal/domain"
	"genstudio/internal/providers/replicate"
	"genstudio/internal/storage"
)

// Class decides whether a failure is worth retrying.
type Class int

const (
	ClassUnknown Class = iota
	ClassTransient
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Category names the kind of failure for messages and logs.
type Category string

const (
	CategoryModeration     Category = "moderation"
	CategoryInvalidRequest Category = "invalid_request"
	CategoryRateLimit      Category = "rate_limit"
	CategoryNetwork        Category = "network"
	CategoryUpstream       Category = "upstream_unavailable"
	CategoryTimeout        Category = "timeout"
	CategoryStorage        Category = "storage"
	CategoryCanceled       Category = "canceled"
	CategoryUnknown        Category = "unknown"
)

// Result is the outcome of classifying one error.
type Result struct {
	Class    Class
	Category Category
	// Message is safe to show to the job owner.
	Message string
	// Detail is the normalized upstream text, for logs only.
	Detail      string
	Recoverable bool
}

const maxDetailLength = 300

var (
	moderationSignals = []string{"e005", "sensitive", "flagged", "content policy", "nsfw", "safety filter", "safety system"}
	rateLimitSignals  = []string{"rate limit", "ratelimit", "too many requests", "throttl"}
	timeoutSignals    = []string{"timeout", "timed out", "deadline exceeded"}
	networkSignals    = []string{"connection reset", "connection refused", "broken pipe", "no such host", "network is unreachable", "tls handshake"}
	upstreamSignals   = []string{"service unavailable", "bad gateway", "internal server error"}

	// Bare numbers such as "512 MiB" are not status codes; a 5xx only counts
	// next to a status marker.
	eofPattern = regexp.MustCompile(`\beof\b`)
	status5xx  = regexp.MustCompile(`\b(?:status|http|code)[ :=]*5\d\d\b`)
	status429  = regexp.MustCompile(`\b(?:status|http|code)[ :=]*429\b`)
)

// Classify returns the English classification of err.
func Classify(err error) Result {
	return ClassifyFor(err, "en")
}

// ClassifyFor classifies err with the message localized for locale.
func ClassifyFor(err error, locale string) Result {
	if err == nil {
		return Result{}
	}
	res := classify(err)
	res.Detail = domain.SanitizePrompt(err.Error(), maxDetailLength)
	res.Message = Message(res.Category, locale)
	if res.Category == CategoryUnknown && res.Detail != "" {
		res.Message += ": " + res.Detail
	}
	return res
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return err != nil && classify(err).Class == ClassTransient
}

func classify(err error) Result {
	text := strings.ToLower(err.Error())

	if containsAny(text, moderationSignals) {
		return permanent(CategoryModeration)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return Result{Class: ClassUnknown, Category: CategoryCanceled, Recoverable: true}
	case errors.Is(err, replicate.ErrPollTimeout):
		return Result{Class: ClassUnknown, Category: CategoryTimeout, Recoverable: true}
	case errors.Is(err, context.DeadlineExceeded):
		return transient(CategoryTimeout)
	}

	var persistErr *storage.PersistError
	if errors.As(err, &persistErr) {
		return transient(CategoryStorage)
	}

	if errors.Is(err, domain.ErrInvalidJob) {
		return permanent(CategoryInvalidRequest)
	}

	var apiErr *replicate.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 0 && apiErr.Err == nil {
		// Rejected locally or an unusable 2xx body: resending cannot help.
		return permanent(CategoryInvalidRequest)
	}
	if apiErr != nil && apiErr.StatusCode != 0 {
		switch code := apiErr.StatusCode; {
		case code == http.StatusTooManyRequests:
			return transient(CategoryRateLimit)
		case code == http.StatusRequestTimeout:
			return transient(CategoryTimeout)
		case code >= 500:
			return transient(CategoryUpstream)
		case code >= 400:
			return permanent(CategoryInvalidRequest)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transient(CategoryTimeout)
	}

	switch {
	case containsAny(text, rateLimitSignals) || status429.MatchString(text):
		return transient(CategoryRateLimit)
	case containsAny(text, timeoutSignals):
		return transient(CategoryTimeout)
	case containsAny(text, networkSignals) || eofPattern.MatchString(text):
		return transient(CategoryNetwork)
	case status5xx.MatchString(text) || containsAny(text, upstreamSignals):
		return transient(CategoryUpstream)
	}
	return Result{Class: ClassUnknown, Category: CategoryUnknown, Recoverable: true}
}

func transient(c Category) Result {
	return Result{Class: ClassTransient, Category: c, Recoverable: true}
}

func permanent(c Category) Result {
	return Result{Class: ClassPermanent, Category: c, Recoverable: false}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
