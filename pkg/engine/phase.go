package engine

// Phase is the engine's position in one customer interaction.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseConnecting    Phase = "connecting"
	PhaseListening     Phase = "listening"
	PhaseOrderBuilding Phase = "order_building"
	PhaseCompleting    Phase = "completing"
	PhaseReset         Phase = "reset"
	PhaseDisconnected  Phase = "disconnected"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:          {PhaseConnecting, PhaseDisconnected},
	PhaseConnecting:    {PhaseListening, PhaseDisconnected},
	PhaseListening:     {PhaseOrderBuilding, PhaseCompleting, PhaseDisconnected},
	PhaseOrderBuilding: {PhaseListening, PhaseCompleting, PhaseDisconnected},
	PhaseCompleting:    {PhaseReset, PhaseDisconnected},
	PhaseReset:         {PhaseIdle},
	PhaseDisconnected:  {PhaseReset},
}

// CanTransition reports whether the engine may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether a session is attached and utterances are processed.
func (p Phase) Active() bool {
	return p == PhaseListening || p == PhaseOrderBuilding
}
