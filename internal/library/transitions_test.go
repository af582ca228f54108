package library

import "testing"

func TestCanTransitionCoversCascadeRouting(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusNotStarted, StatusStage1Active, true},
		{StatusNotStarted, StatusStage2Active, true},
		{StatusNotStarted, StatusStage3Active, true},
		{StatusNotStarted, StatusIgnored, true},
		{StatusNotStarted, StatusArchived, true},
		{StatusNotStarted, StatusStoredCustom, true},
		{StatusNotStarted, StatusStored, false},
		{StatusStage1Active, StatusStored, true},
		{StatusStage1Active, StatusStoredIncomplete, true},
		{StatusStage1Active, StatusStage2Active, true},
		{StatusStage1Active, StatusExhausted, true},
		{StatusStage1Active, StatusAwaitingReview, false},
		{StatusStage2Active, StatusAwaitingSelection, true},
		{StatusStage2Active, StatusStage3Active, true},
		{StatusStage2Active, StatusExhausted, true},
		{StatusStage2Active, StatusStored, false},
		{StatusStage3Active, StatusAwaitingReview, true},
		{StatusStage3Active, StatusExhausted, true},
		{StatusStage3Active, StatusStored, false},
		{StatusAwaitingSelection, StatusStage1Active, true},
		{StatusAwaitingReview, StatusStored, true},
		{StatusAwaitingReview, StatusExhausted, true},
		{StatusExhausted, StatusStoredCustom, true},
		{StatusStoredCustom, StatusNotStarted, false},
		{Status("bogus"), StatusStored, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestNoSelfTransitions(t *testing.T) {
	for _, status := range AllStatuses() {
		if CanTransition(status, status) {
			t.Errorf("self transition allowed for %s", status)
		}
	}
}

func TestTerminalStatesResetExceptStoredCustom(t *testing.T) {
	for _, status := range AllStatuses() {
		if !IsTerminal(status) {
			continue
		}
		wantReset := status != StatusStoredCustom
		if got := CanTransition(status, StatusNotStarted); got != wantReset {
			t.Errorf("reset from %s = %v, want %v", status, got, wantReset)
		}
	}
}

func TestTerminalStatesHaveNoStageSuccessors(t *testing.T) {
	stageStatuses := map[Status]struct{}{
		StatusStage1Active: {},
		StatusStage2Active: {},
		StatusStage3Active: {},
	}
	for _, status := range AllStatuses() {
		if !IsTerminal(status) {
			continue
		}
		for _, successor := range Successors(status) {
			if _, ok := stageStatuses[successor]; ok {
				t.Errorf("terminal %s allows direct stage entry %s", status, successor)
			}
		}
	}
}

func TestSuccessorsReturnsCopy(t *testing.T) {
	first := Successors(StatusNotStarted)
	first[0] = Status("mutated")
	second := Successors(StatusNotStarted)
	if second[0] == Status("mutated") {
		t.Fatal("Successors leaked internal slice")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus("  Awaiting_Selection "); !ok || status != StatusAwaitingSelection {
		t.Fatalf("ParseStatus normalization failed: %q %v", status, ok)
	}
	if _, ok := ParseStatus("finished"); ok {
		t.Fatal("ParseStatus accepted unknown status")
	}
	if _, ok := ParseStatus(""); ok {
		t.Fatal("ParseStatus accepted empty status")
	}
}

func TestUserIntentBlocksAutomation(t *testing.T) {
	cases := map[UserIntent]bool{
		IntentAuto:       false,
		IntentPriority:   false,
		IntentArchive:    false,
		IntentIgnore:     true,
		IntentManualOnly: true,
	}
	for intent, want := range cases {
		if got := intent.BlocksAutomation(); got != want {
			t.Errorf("%s.BlocksAutomation() = %v, want %v", intent, got, want)
		}
	}
}
