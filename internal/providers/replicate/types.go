package replicate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Prediction statuses reported by the API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

var (
	// ErrMissingAPIToken indicates that the client was configured without credentials.
	ErrMissingAPIToken = errors.New("replicate: api token is required")
	// ErrPollTimeout is returned when a prediction is still running after the
	// configured number of polls.
	ErrPollTimeout = errors.New("replicate: prediction did not settle in time")
)

// Prediction is the subset of the prediction resource the pipeline reads.
type Prediction struct {
	ID      string          `json:"id"`
	Version string          `json:"version"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   json.RawMessage `json:"error"`
	Logs    string          `json:"logs"`
}

// Settled reports whether the prediction reached a final status.
func (p *Prediction) Settled() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// OutputURL returns the output when it is a single URL, or the first element
// when it is a list. Empty when there is no usable output.
func (p *Prediction) OutputURL() string {
	if p == nil || len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []any
	if err := json.Unmarshal(p.Output, &list); err == nil && len(list) > 0 {
		if s, ok := list[0].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// ErrorText returns the upstream error as plain text.
func (p *Prediction) ErrorText() string {
	if p == nil || len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(p.Error))
}

// APIError reports a failed HTTP exchange with the API. StatusCode is zero
// when no response was received; Err then holds the transport error.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("replicate: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("replicate: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("replicate: %s: %s", e.Op, e.Body)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// PredictionError reports a prediction that settled as failed or canceled.
type PredictionError struct {
	ID      string
	Status  string
	Message string
}

func (e *PredictionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no error detail"
	}
	return fmt.Sprintf("replicate: prediction %s %s: %s", e.ID, e.Status, msg)
}

type createRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type modelResponse struct {
	LatestVersion  *versionResponse `json:"latest_version"`
	DefaultVersion *versionResponse `json:"default_version"`
}

type versionResponse struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

type versionListResponse struct {
	Results []versionResponse `json:"results"`
}
