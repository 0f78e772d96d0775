package pipeline

// State is the pipeline lifecycle position. Transitions form a total order
// (idle → initializing → running → stopping → idle); any step may move to
// StateError.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
