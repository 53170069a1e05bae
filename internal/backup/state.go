package backup

// State is a backup state machine stage.
type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateKeyCracking
	StateStreaming
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateKeyCracking:
		return "key_cracking"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
