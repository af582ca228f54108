package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"folio/internal/library"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/citelink"
	"folio/internal/services/contentfetch"
	"folio/internal/services/extract"
)

const (
	defaultMaxStageAttempts = 3
	defaultQualityThreshold = 70
)

// Linker resolves an identifier or URL into a reference key plus raw fields.
type Linker interface {
	Resolve(ctx context.Context, req citelink.Request) (*citelink.Result, error)
}

// Fetcher retrieves page content, caches the extracted text under a key, and
// serves that text back on demand.
type Fetcher interface {
	Fetch(ctx context.Context, req contentfetch.Request) (*contentfetch.Result, error)
	Content(ctx context.Context, key string) (string, error)
}

// Extractor runs model-based metadata extraction over cached content.
type Extractor interface {
	Extract(ctx context.Context, content string) (*extract.Extraction, error)
}

// Sleeper waits out a retry backoff. Implementations must return early with
// the context error when the context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Orchestrator owns the per-item cascade. It is safe for concurrent use by
// multiple workers; the store's guarded transitions arbitrate races.
type Orchestrator struct {
	store     *library.Store
	logger    *slog.Logger
	linker    Linker
	fetcher   Fetcher
	extractor Extractor

	maxStageAttempts int
	qualityThreshold int
	sleep            Sleeper

	enrichWG sync.WaitGroup
}

// Option adjusts orchestrator behavior.
type Option func(*Orchestrator)

// WithMaxStageAttempts caps how often one stage is retried in place before
// the cascade falls through to the next stage.
func WithMaxStageAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxStageAttempts = n
		}
	}
}

// WithQualityThreshold overrides the extraction score an item must exceed to
// reach review instead of exhausted.
func WithQualityThreshold(score int) Option {
	return func(o *Orchestrator) {
		if score >= 0 && score <= 100 {
			o.qualityThreshold = score
		}
	}
}

// WithSleeper replaces the backoff sleeper. Tests use this to skip real
// delays.
func WithSleeper(sleep Sleeper) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// NewOrchestrator wires the cascade against a store and the three strategy
// collaborators.
func NewOrchestrator(store *library.Store, linker Linker, fetcher Fetcher, extractor Extractor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		store:            store,
		logger:           logger.With(logging.String(logging.FieldComponent, "cascade")),
		linker:           linker,
		fetcher:          fetcher,
		extractor:        extractor,
		maxStageAttempts: defaultMaxStageAttempts,
		qualityThreshold: defaultQualityThreshold,
		sleep:            defaultSleeper,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result reports where one cascade run left its item.
type Result struct {
	ItemID       int64
	FinalStatus  library.Status
	Stage        library.Stage
	Skipped      bool
	ErrorMessage string
}

// Failed reports whether the run ended in exhausted.
func (r *Result) Failed() bool {
	return r != nil && !r.Skipped && r.FinalStatus == library.StatusExhausted
}

// Process drives one item through the cascade until it reaches a stored
// state, a human checkpoint, or exhausted. Collaborator failures are absorbed
// into the returned Result; only storage failures and policy violations come
// back as errors. A run that loses a transition race returns Skipped.
func (o *Orchestrator) Process(ctx context.Context, itemID int64) (*Result, error) {
	ctx = services.WithItemID(ctx, itemID)

	item, err := o.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", library.ErrNotFound, itemID)
	}
	if item.UserIntent.BlocksAutomation() {
		return nil, services.Wrap(services.ErrPolicy, "", "process",
			fmt.Sprintf("user intent %q blocks automatic processing of item %d", item.UserIntent, itemID), nil)
	}
	if item.IsProcessing() {
		o.logger.InfoContext(ctx, "cascade skipped, item already in flight",
			logging.Int64(logging.FieldItemID, itemID),
			logging.String(logging.FieldStatus, string(item.Status)))
		return &Result{ItemID: itemID, FinalStatus: item.Status, Skipped: true}, nil
	}

	result, err := o.runEntry(ctx, item)
	if errors.Is(err, library.ErrStateConflict) {
		o.logger.InfoContext(ctx, "cascade skipped, item advanced by another worker",
			logging.Int64(logging.FieldItemID, itemID))
		return &Result{ItemID: itemID, FinalStatus: item.Status, Skipped: true}, nil
	}
	return result, err
}

// runEntry picks the first viable stage for the item's capabilities. Items
// with an identifier or a selectable alternate strategy start at citation
// linking; everything else starts at content fetch, cached or not.
func (o *Orchestrator) runEntry(ctx context.Context, item *library.Item) (*Result, error) {
	from := item.Status
	if item.HasIdentifier || item.HasAlternateStrategy {
		return o.runStage1(ctx, item, from)
	}
	return o.runStage2(ctx, item, from)
}

// WaitEnrichment blocks until every in-flight background enrichment has
// finished. Callers invoke it before shutdown so enrichment writes are not
// abandoned mid-flight.
func (o *Orchestrator) WaitEnrichment() {
	o.enrichWG.Wait()
}
