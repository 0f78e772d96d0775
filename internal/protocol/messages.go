package protocol

import "time"

// Result is an incremental transcription update broadcast on the bus while
// a recording session is running.
type Result struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	LatencyMS float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// LatencyStats summarizes the per-frame decode latency of a session.
type LatencyStats struct {
	Frames     int     `json:"frames"`
	AvgMS      float64 `json:"avg_ms"`
	MaxMS      float64 `json:"max_ms"`
	OverBudget int     `json:"over_budget"`
	BudgetMS   float64 `json:"budget_ms"`
}

// Endpoint marks an utterance or session boundary.
type Endpoint struct {
	SessionID    string       `json:"session_id"`
	FinalText    string       `json:"final_text"`
	VadTriggered bool         `json:"vad_triggered"`
	DeviceLost   bool         `json:"device_lost"`
	DurationMS   float64      `json:"duration_ms"`
	Latency      LatencyStats `json:"latency"`
	Timestamp    time.Time    `json:"timestamp"`
}

// StateChange reports a pipeline lifecycle transition.
type StateChange struct {
	SessionID string    `json:"session_id,omitempty"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectResult   = "dicto.result"
	SubjectEndpoint = "dicto.endpoint"
	SubjectState    = "dicto.state"
)
