package controller

// State is the controller's position in a visit.
type State int

const (
	Idle State = iota
	Entered
	ArbitratingEntranceReward
	AwaitingContact
	Clamping
	ClampFailed
	Recording
	Releasing
	AwaitingExit
	Stopped
)

var stateNames = [...]string{
	Idle:                      "idle",
	Entered:                   "entered",
	ArbitratingEntranceReward: "arbitrating_entrance_reward",
	AwaitingContact:           "awaiting_contact",
	Clamping:                  "clamping",
	ClampFailed:               "clamp_failed",
	Recording:                 "recording",
	Releasing:                 "releasing",
	AwaitingExit:              "awaiting_exit",
	Stopped:                   "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
