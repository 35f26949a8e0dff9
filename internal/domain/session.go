package domain

import "time"

// SessionStatus enumerates session lifecycle states.
type SessionStatus string

const (
	SessionStatusCollecting SessionStatus = "collecting"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusDone       SessionStatus = "done"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// MaxSessionImages caps the number of reference photos a single session may
// accumulate. Appends beyond the cap fail without mutating the session.
const MaxSessionImages = 14

// Terminal reports whether no further transition is allowed from the status.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusDone, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// Active reports whether the status counts toward the one-active-session-per-chat rule.
func (s SessionStatus) Active() bool {
	return s == SessionStatusCollecting || s == SessionStatusProcessing
}

// SessionImage is one collected reference photo. MessageID is the transport
// message that delivered it and must be unique within a session's image list.
type SessionImage struct {
	FileID    string    `json:"file_id"`
	MessageID int64     `json:"message_id"`
	Bucket    string    `json:"bucket"`
	Path      string    `json:"path"`
	FileName  string    `json:"file_name"`
	AddedAt   time.Time `json:"added_at"`
}

// GenerationSettings carries the output knobs forwarded to the provider.
type GenerationSettings struct {
	AspectRatio  string `json:"aspect_ratio"`
	Resolution   string `json:"resolution"`
	OutputFormat string `json:"output_format"`
}

// DefaultGenerationSettings returns the settings applied when a session is
// created without explicit overrides.
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		AspectRatio:  "3:4",
		Resolution:   "2K",
		OutputFormat: "png",
	}
}

// Session is one user's in-progress portrait attempt. At most one session per
// chat may be in an active status at any time. Once the status leaves
// collecting the image list is frozen.
type Session struct {
	ID              string
	ChatID          int64
	UserID          int64
	Locale          string
	Status          SessionStatus
	Images          []SessionImage
	Prompt          string
	Settings        GenerationSettings
	JobID           string
	NoticeMessageID int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasImage reports whether an image delivered by the given transport message
// is already part of the session.
func (s *Session) HasImage(messageID int64) bool {
	for _, img := range s.Images {
		if img.MessageID == messageID {
			return true
		}
	}
	return false
}
