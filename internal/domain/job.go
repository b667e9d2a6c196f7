package domain

import "time"

// JobKind enumerates supported generation categories.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
	JobKindCard  JobKind = "card"
)

// Valid reports whether the kind is one the pipeline can generate.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindImage, JobKindVideo, JobKindCard:
		return true
	default:
		return false
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// MaxInputAssets caps the number of source assets attached to one job.
const MaxInputAssets = 3

// JobParams carries optional kind-specific generation parameters. Zero values
// mean "use the kind default".
type JobParams struct {
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	GenerateAudio   *bool  `json:"generate_audio,omitempty"`
	Seed            *int64 `json:"seed,omitempty"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
}

// Job encapsulates one paid generation request and its lifecycle.
type Job struct {
	ID             string
	OwnerID        string
	Kind           JobKind
	Prompt         string
	InputAssetRefs []string
	TemplateID     string
	Params         JobParams
	Locale         string
	Status         JobStatus
	DebitedAmount  int64
	Refunded       bool
	Recoverable    bool
	ResultAssetRef string
	ResultURL      string
	ErrorMessage   string
	PredictionID   string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy safe to hand out of a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	clone.InputAssetRefs = append([]string(nil), j.InputAssetRefs...)
	if j.Params.GenerateAudio != nil {
		v := *j.Params.GenerateAudio
		clone.Params.GenerateAudio = &v
	}
	if j.Params.Seed != nil {
		v := *j.Params.Seed
		clone.Params.Seed = &v
	}
	return &clone
}

// Failure describes how a job ended in error.
type Failure struct {
	Message      string
	Recoverable  bool
	PredictionID string
	Attempts     int
}

// Result describes the durable artifact of a finished job. AssetRef is the
// storage key; stores also record it as an Asset owned by the job owner.
type Result struct {
	AssetRef     string
	URL          string
	ContentType  string
	Bytes        int64
	PredictionID string
	Attempts     int
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	Kind        JobKind   `json:"kind"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
