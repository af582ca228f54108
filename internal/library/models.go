package library

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a library item.
type Status string

const (
	StatusNotStarted        Status = "not_started"
	StatusStage1Active      Status = "stage1_active"
	StatusStage2Active      Status = "stage2_active"
	StatusStage3Active      Status = "stage3_active"
	StatusAwaitingSelection Status = "awaiting_selection"
	StatusAwaitingReview    Status = "awaiting_review"
	StatusStored            Status = "stored"
	StatusStoredIncomplete  Status = "stored_incomplete"
	StatusStoredCustom      Status = "stored_custom"
	StatusExhausted         Status = "exhausted"
	StatusIgnored           Status = "ignored"
	StatusArchived          Status = "archived"
)

var allStatuses = []Status{
	StatusNotStarted,
	StatusStage1Active,
	StatusStage2Active,
	StatusStage3Active,
	StatusAwaitingSelection,
	StatusAwaitingReview,
	StatusStored,
	StatusStoredIncomplete,
	StatusStoredCustom,
	StatusExhausted,
	StatusIgnored,
	StatusArchived,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusStage1Active: {},
	StatusStage2Active: {},
	StatusStage3Active: {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// UserIntent is the owner-set policy flag the orchestrator must honor
// before acting on an item.
type UserIntent string

const (
	IntentAuto       UserIntent = "auto"
	IntentIgnore     UserIntent = "ignore"
	IntentPriority   UserIntent = "priority"
	IntentManualOnly UserIntent = "manual_only"
	IntentArchive    UserIntent = "archive"
)

var intentSet = map[UserIntent]struct{}{
	IntentAuto:       {},
	IntentIgnore:     {},
	IntentPriority:   {},
	IntentManualOnly: {},
	IntentArchive:    {},
}

// ParseIntent converts a string into a known UserIntent.
func ParseIntent(value string) (UserIntent, bool) {
	normalized := UserIntent(strings.ToLower(strings.TrimSpace(value)))
	_, ok := intentSet[normalized]
	return normalized, ok
}

// BlocksAutomation reports whether the intent forbids every automatic stage.
func (i UserIntent) BlocksAutomation() bool {
	return i == IntentIgnore || i == IntentManualOnly
}

// Stage names one of the three acquisition strategies.
type Stage string

const (
	StageCiteLink     Stage = "citelink"
	StageContentFetch Stage = "contentfetch"
	StageExtract      Stage = "extract"
)

// Item represents a bookmarked resource persisted in SQLite.
type Item struct {
	ID                   int64
	URL                  string
	Title                string
	Status               Status
	UserIntent           UserIntent
	AttemptCount         int
	HasIdentifier        bool
	HasAlternateStrategy bool
	HasCachedContent     bool
	Identifier           string
	ContentKey           string
	CitationKey          string
	Citation             string
	MetadataJSON         string
	QualityScore         int
	AltIdentifiersJSON   string
	ErrorMessage         string
	NeedsReview          bool
	ReviewReason         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsProcessing returns true when the item is in an in-flight stage state.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// Attempt records one strategy execution against an item. Rows are appended
// when a stage starts and finalized in place when it concludes; they are
// never deleted.
type Attempt struct {
	ID            int64
	ItemID        int64
	Stage         Stage
	Success       bool
	Error         string
	ErrorCategory string
	CitationKey   string
	QualityScore  int
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total         int
	NotStarted    int
	Processing    int
	AwaitingHuman int
	Stored        int
	Exhausted     int
}
