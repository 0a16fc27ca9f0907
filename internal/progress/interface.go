package progress

// Sample is one progress notification: bytes moved since the previous
// sample from the same reporter.
type Sample struct {
	BytesDelta int64
}

// Sink consumes samples republished by a Reporter. Observe is only ever
// called from the reporter's own goroutine, never concurrently.
type Sink interface {
	Observe(s Sample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Sample)

// Observe calls f(s).
func (f SinkFunc) Observe(s Sample) { f(s) }

// FileBarHandle represents a handle to a single transfer's progress bar.
// It is itself a Sink, so it can be handed to the transfer engine directly.
type FileBarHandle interface {
	Sink

	// Complete marks the operation as finished and prints a summary
	Complete(storageID string, err error)
}
