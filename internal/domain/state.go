package domain

// DownloadState is the snapshot the presentation layer reads. It is owned by
// the acquisition pipeline; readers always get a copy.
type DownloadState struct {
	Progress    float64 `json:"progress"`
	Downloading bool    `json:"downloading"`
	Ready       bool    `json:"ready"`
	Error       string  `json:"error,omitempty"`

	DownloadedBytes int64 `json:"downloaded_bytes"`
	TotalBytes      int64 `json:"total_bytes"`
}
