package models

// SwapState is the position of a swap in the settlement state machine.
type SwapState string

const (
	SwapInitiated        SwapState = "initiated"
	SwapQuoted           SwapState = "quoted"
	SwapAwaitingApproval SwapState = "awaiting_approval"
	SwapProcessing       SwapState = "swap_processing"
	SwapSettled          SwapState = "swap_settled"
	SweepProcessing      SwapState = "sweep_processing"
	SweepSettled         SwapState = "sweep_settled"
	PayoutProcessing     SwapState = "payout_processing"
	SwapFinalized        SwapState = "finalized"
	SwapFailed           SwapState = "swap_failed"
	SweepFailed          SwapState = "sweep_failed"
)

var swapStateRank = map[SwapState]int{
	SwapInitiated:        0,
	SwapQuoted:           1,
	SwapAwaitingApproval: 2,
	SwapProcessing:       3,
	SwapSettled:          4,
	SweepProcessing:      5,
	SweepSettled:         6,
	PayoutProcessing:     7,
	SwapFinalized:        8,
}

var swapTransitions = map[SwapState][]SwapState{
	SwapInitiated:        {SwapQuoted},
	SwapQuoted:           {SwapAwaitingApproval},
	SwapAwaitingApproval: {SwapProcessing, SwapFailed},
	SwapProcessing:       {SwapSettled, SwapFailed},
	SwapSettled:          {SweepProcessing},
	SweepProcessing:      {SweepSettled, SweepFailed},
	SweepSettled:         {PayoutProcessing},
	PayoutProcessing:     {SwapFinalized},
}

func (s SwapState) Valid() bool {
	if _, ok := swapStateRank[s]; ok {
		return true
	}
	return s == SwapFailed || s == SweepFailed
}

// IsFailed reports whether s is one of the terminal failure branches.
func (s SwapState) IsFailed() bool {
	return s == SwapFailed || s == SweepFailed
}

// CanTransition reports whether a swap may move directly from one state to another.
func CanTransition(from, to SwapState) bool {
	for _, next := range swapTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reached reports whether a swap currently in state s has already passed
// through target on the main line. Failure branches only reach themselves.
func (s SwapState) Reached(target SwapState) bool {
	if s == target {
		return true
	}
	if s.IsFailed() || target.IsFailed() {
		return false
	}
	return swapStateRank[s] >= swapStateRank[target]
}
