package api

import (
	"time"

	"capnote/internal/records"
	"capnote/internal/textutil"
)

// FromRecord converts a stored record into its API representation.
func FromRecord(record *records.Record) RecordView {
	if record == nil {
		return RecordView{}
	}
	view := RecordView{
		ID:              record.ID,
		Title:           textutil.DisplayTitle(record.FilePath),
		FilePath:        record.FilePath,
		CapturedAt:      formatTime(record.CapturedAt),
		DurationSeconds: record.DurationSeconds,
		Status:          deriveStatus(record),
		Uploaded:        record.Uploaded,
		Transcribed:     record.Transcribed,
		RemoteFileID:    record.RemoteFileID,
		RemoteURL:       record.RemoteURL,
		Transcript:      record.Transcript,
		ErrorMessage:    record.ErrorMessage,
		CreatedAt:       formatTime(record.CreatedAt),
		UpdatedAt:       formatTime(record.UpdatedAt),
	}
	return view
}

// FromRecords converts a slice of stored records preserving order.
func FromRecords(list []*records.Record) []RecordView {
	views := make([]RecordView, 0, len(list))
	for _, record := range list {
		views = append(views, FromRecord(record))
	}
	return views
}

// deriveStatus maps record flags to a presentation status. An error message
// surfaces as "error" even though the underlying stage is retained in the
// uploaded/transcribed flags.
func deriveStatus(record *records.Record) string {
	if record.HasError() {
		return StatusError
	}
	switch record.Stage() {
	case "done":
		return StatusDone
	case "uploaded":
		return StatusUploaded
	default:
		return StatusPending
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}
