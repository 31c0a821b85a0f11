package stream

type Phase string

const (
	PhaseStarted         Phase = "started"
	PhasePlanning        Phase = "planning"
	PhaseResearching     Phase = "researching"
	PhaseWriting         Phase = "writing"
	PhaseStreamingReport Phase = "streaming_report"
	PhaseDone            Phase = "done"
	PhaseError           Phase = "error"
)

var phaseTransitions = map[Phase]Phase{
	PhaseStarted:         PhasePlanning,
	PhasePlanning:        PhaseResearching,
	PhaseResearching:     PhaseWriting,
	PhaseWriting:         PhaseStreamingReport,
	PhaseStreamingReport: PhaseDone,
}

func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// CanTransition reports whether a run in phase p may move to next. Every
// non-terminal phase may move to error.
func (p Phase) CanTransition(next Phase) bool {
	if p.Terminal() {
		return false
	}
	if next == PhaseError {
		return true
	}
	return phaseTransitions[p] == next
}
