package domain

import "time"

// JobStatus enumerates job lifecycle states. Transitions are monotonic toward
// a terminal state; success and failed are final.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// JobInput echoes the session content submitted to the provider.
type JobInput struct {
	Images   []string           `json:"images"`
	Prompt   string             `json:"prompt"`
	Settings GenerationSettings `json:"settings"`
}

// JobOutput describes the persisted generation result.
type JobOutput struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
}

// Job records one external-provider generation submission. Exactly one job is
// created per session; the session's JobID field guards against
// double-submission. CallbackSecret authenticates the provider's terminal
// callback for this job only.
type Job struct {
	ID             string
	ChatID         int64
	SessionID      string
	Status         JobStatus
	ProviderJobID  string
	Input          JobInput
	Output         *JobOutput
	ResultPath     string
	ErrorMessage   string
	CallbackSecret string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
