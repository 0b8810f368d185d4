package records

import (
	"strings"
	"time"
)

// NoSpeechSentinel is stored as the transcript when the transcription service
// returns blank text. The record still counts as fully transcribed.
const NoSpeechSentinel = "[No speech detected]"

// Record represents one captured audio clip and its sync status, persisted in
// SQLite. Upload and transcription flags advance independently in the schema;
// the orchestrator always sequences upload before transcription.
type Record struct {
	ID              int64
	FilePath        string
	CapturedAt      time.Time
	DurationSeconds float64
	Uploaded        bool
	RemoteFileID    string
	RemoteURL       string
	Transcribed     bool
	Transcript      string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Done reports whether the record is fully processed.
func (r *Record) Done() bool {
	return r != nil && r.Uploaded && r.Transcribed
}

// PendingUpload reports whether the record still needs a cloud upload.
func (r *Record) PendingUpload() bool {
	return r != nil && !r.Uploaded
}

// Stage returns the presentation-facing lifecycle label derived from the
// persisted flags. In-flight states (uploading, transcribing) are transient
// scheduler conditions and are never persisted on the record.
func (r *Record) Stage() string {
	switch {
	case r == nil:
		return ""
	case r.Uploaded && r.Transcribed:
		return "done"
	case r.Uploaded:
		return "uploaded"
	default:
		return "pending"
	}
}

// HasError reports whether the record carries an advisory error annotation.
func (r *Record) HasError() bool {
	return r != nil && strings.TrimSpace(r.ErrorMessage) != ""
}

// HealthSummary describes aggregated record counts per lifecycle stage.
type HealthSummary struct {
	Total         int
	PendingUpload int
	Uploaded      int
	Done          int
	Errored       int
}

// DatabaseHealth captures diagnostic information about the record database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalRecords     int
	Error            string
}
