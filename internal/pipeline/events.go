package pipeline

import "time"

// ResultEvent is an incremental transcription update. Emitted whenever the
// decoded text differs from the previously emitted text for the session.
type ResultEvent struct {
	SessionID string
	Text      string
	Latency   time.Duration
}

// EndpointEvent marks the end of an utterance or a session. At most one
// is emitted per utterance boundary.
type EndpointEvent struct {
	SessionID    string
	FinalText    string
	VadTriggered bool
	DeviceLost   bool
	Duration     time.Duration
	Latency      LatencySnapshot
}

// StateEvent reports a lifecycle transition.
type StateEvent struct {
	SessionID string
	State     State
	Reason    string
}
