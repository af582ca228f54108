package library

// allowedTransitions is the static adjacency table behind CanTransition.
// not_started is the sole entry state. stored_custom is the one terminal
// state with no reset edge; every other terminal state permits the manual
// -> not_started escape hatch. stage2_active -> awaiting_selection is part
// of the table: the cascade exercises it when content extraction discovers
// alternate identifiers.
var allowedTransitions = map[Status][]Status{
	StatusNotStarted: {
		StatusStage1Active,
		StatusStage2Active,
		StatusStage3Active,
		StatusIgnored,
		StatusArchived,
		StatusStoredCustom,
	},
	StatusStage1Active: {
		StatusStored,
		StatusStoredIncomplete,
		StatusStage2Active,
		StatusStage3Active,
		StatusExhausted,
	},
	StatusStage2Active: {
		StatusAwaitingSelection,
		StatusStage3Active,
		StatusExhausted,
	},
	StatusStage3Active: {
		StatusAwaitingReview,
		StatusExhausted,
	},
	StatusAwaitingSelection: {
		StatusStage1Active,
		StatusNotStarted,
		StatusIgnored,
	},
	StatusAwaitingReview: {
		StatusStored,
		StatusExhausted,
		StatusNotStarted,
		StatusIgnored,
	},
	StatusStored: {
		StatusNotStarted,
	},
	StatusStoredIncomplete: {
		StatusStored,
		StatusNotStarted,
	},
	StatusStoredCustom: {},
	StatusExhausted: {
		StatusStoredCustom,
		StatusNotStarted,
		StatusIgnored,
	},
	StatusIgnored: {
		StatusNotStarted,
	},
	StatusArchived: {
		StatusNotStarted,
	},
}

// CanTransition reports whether moving an item from one status to another is
// legal. It is pure and consults only the adjacency table, so UI code can
// gate actions without touching storage.
func CanTransition(from, to Status) bool {
	successors, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, successor := range successors {
		if successor == to {
			return true
		}
	}
	return false
}

// Successors returns the allowed successor set for a status.
func Successors(from Status) []Status {
	successors := allowedTransitions[from]
	cp := make([]Status, len(successors))
	copy(cp, successors)
	return cp
}

var terminalStatuses = map[Status]struct{}{
	StatusStored:           {},
	StatusStoredIncomplete: {},
	StatusStoredCustom:     {},
	StatusExhausted:        {},
	StatusIgnored:          {},
	StatusArchived:         {},
}

// IsTerminal reports whether automated processing stops at a status without
// a reset or human action.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}
