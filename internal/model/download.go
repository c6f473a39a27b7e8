package model

import "time"

// DownloadStatus is the terminal state of a download attempt.
type DownloadStatus string

const (
	// DownloadCompleted means the file was fully written to LocalPath.
	DownloadCompleted DownloadStatus = "completed"

	// DownloadFailed means retries were exhausted or the file could not be
	// stored. No file exists on disk for a failed record.
	DownloadFailed DownloadStatus = "failed"
)

// DownloadRecord describes one downloaded (or terminally failed) file artifact.
// Records are immutable once written to the tracking store, and the store keeps
// exactly one record per distinct URL.
type DownloadRecord struct {
	// URL is the source URL of the file.
	URL string `json:"url"`

	// Domain is the sanitized domain the file was discovered on.
	Domain string `json:"domain"`

	// LocalPath is where the file was stored. Empty for failed downloads.
	LocalPath string `json:"local_path"`

	// Size is the number of bytes written.
	Size int64 `json:"size"`

	// Fingerprint is the hex encoded SHA-256 of the content.
	Fingerprint string `json:"fingerprint"`

	// Timestamp is when the download finished.
	Timestamp time.Time `json:"timestamp"`

	// Status is completed or failed.
	Status DownloadStatus `json:"status"`

	// Error holds the failure reason for failed downloads.
	Error string `json:"error,omitempty"`
}

// Completed reports whether the record describes a file that exists on disk.
func (r DownloadRecord) Completed() bool {
	return r.Status == DownloadCompleted
}
