package runner

// State is a phase of a run.
type State string

// Run states. A run moves Idle, Discovering, Verifying, Applying, Done, and
// enters Failed from any of the middle three.
const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateVerifying   State = "verifying"
	StateApplying    State = "applying"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func (s State) String() string { return string(s) }
