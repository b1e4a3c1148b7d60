package deploy

// State is a step of the session state machine. The machine is linear:
//
//	START -> LOCATE -> (BACKUP) -> SYNC -> REPORT -> END
//
// with ERROR reachable from LOCATE, BACKUP (interrupt only) and SYNC.
type State string

const (
	StateStart  State = "START"
	StateLocate State = "LOCATE"
	StateBackup State = "BACKUP"
	StateSync   State = "SYNC"
	StateReport State = "REPORT"
	StateEnd    State = "END"
	StateError  State = "ERROR"
)

var allowedTransitions = map[State][]State{
	StateStart:  {StateLocate},
	StateLocate: {StateBackup, StateSync, StateError},
	StateBackup: {StateSync, StateError},
	StateSync:   {StateReport, StateError},
	StateReport: {StateEnd},
}

// CanTransition reports whether the session may move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state ends a run.
func IsTerminal(s State) bool {
	return s == StateEnd || s == StateError
}
