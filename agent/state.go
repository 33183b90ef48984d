package agent

// State is the position of an Agent in its round lifecycle.
type State int32

const (
	StateIdle State = iota
	StateAwaitingCompletion
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}
