// Package syncer drives records through the sync pipeline.
//
// Each record moves upload-first, transcription-second. Upload durability is
// the core guarantee: upload failures retry with backoff until the recording
// is safely in cloud storage. Transcription is best-effort enrichment; its
// failures are recorded on the record but never retried automatically and
// never block completion. The same package expands sweep tasks into
// per-record sync tasks.
package syncer
