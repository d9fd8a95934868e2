package domain

// EventKind discriminates the transfer event stream.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventFailed
)

// TransferEvent is emitted by the transfer layer and consumed by a single
// pipeline goroutine. Exactly one terminal event (Completed or Failed) ends
// each attempt.
type TransferEvent struct {
	Kind EventKind

	// Progress fields. TotalBytes may be -1 when the server did not report
	// a length.
	WrittenBytes int64
	TotalBytes   int64

	// Completed: path of the fully written temporary file.
	TempPath string

	// Failed
	Err error
}
