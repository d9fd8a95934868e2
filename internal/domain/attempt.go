package domain

import "time"

type AttemptStatus string

const (
	AttemptDownloading AttemptStatus = "downloading"
	AttemptCompleted   AttemptStatus = "completed"
	AttemptFailed      AttemptStatus = "failed"
	AttemptCancelled   AttemptStatus = "cancelled"
)

// Attempt is the durable record of one download attempt. IDs are KSUIDs so
// lexicographic order is chronological order.
type Attempt struct {
	ID     string        `json:"id"`
	URL    string        `json:"url"`
	Status AttemptStatus `json:"status"`

	DownloadedBytes int64 `json:"downloaded_bytes"`
	TotalBytes      int64 `json:"total_bytes"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	Error string `json:"error,omitempty"`
}
