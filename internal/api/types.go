package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Record statuses exposed to API consumers.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusDone     = "done"
	StatusError    = "error"
)

// RecordView describes a record in a transport-friendly format.
type RecordView struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	FilePath        string  `json:"filePath"`
	CapturedAt      string  `json:"capturedAt,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	Status          string  `json:"status"`
	Uploaded        bool    `json:"uploaded"`
	Transcribed     bool    `json:"transcribed"`
	RemoteFileID    string  `json:"remoteFileId,omitempty"`
	RemoteURL       string  `json:"remoteUrl,omitempty"`
	Transcript      string  `json:"transcript,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// StatusSummary aggregates daemon runtime information for API consumers.
type StatusSummary struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	DatabasePath  string         `json:"databasePath"`
	LockFilePath  string         `json:"lockFilePath,omitempty"`
	RecordCounts  map[string]int `json:"recordCounts"`
	PendingUpload int            `json:"pendingUpload"`
	TasksQueued   int            `json:"tasksQueued"`
	TasksRunning  int            `json:"tasksRunning"`
	Online        bool           `json:"online"`
}

// RecordListResponse wraps a collection of records for API responses.
type RecordListResponse struct {
	Records []RecordView `json:"records"`
}

// CaptureRequest is the payload for registering a finished recording.
type CaptureRequest struct {
	FilePath        string  `json:"filePath"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// CaptureResponse returns the created record.
type CaptureResponse struct {
	Record RecordView `json:"record"`
}
