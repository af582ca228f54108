package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"folio/internal/citation"
	"folio/internal/classify"
	"folio/internal/library"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/citelink"
	"folio/internal/services/contentfetch"
	"folio/internal/services/extract"
)

// activateStage flips the item into a stage's active status. The carry patch
// lets a preceding stage's results land in the same write; the error message
// from any earlier failure is cleared on entry.
func (o *Orchestrator) activateStage(ctx context.Context, item *library.Item, from, to library.Status, carry *library.Patch) error {
	patch := carry
	if patch == nil {
		patch = &library.Patch{}
	}
	if patch.ErrorMessage == nil {
		cleared := ""
		patch.ErrorMessage = &cleared
	}
	if err := o.store.Transition(ctx, item.ID, from, to, patch); err != nil {
		return err
	}
	item.Status = to
	return nil
}

// withRetry runs one collaborator call with in-place retries. Backoff and the
// retry decision come from the failure category; the final error is returned
// once the category is non-retryable or attempts run out.
func (o *Orchestrator) withRetry(ctx context.Context, stage library.Stage, call func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		category := classify.Categorize(err)
		if !classify.CategoryRetryable(category) || attempt >= o.maxStageAttempts {
			return err
		}
		delay := classify.RetryDelay(category, attempt)
		o.logger.WarnContext(ctx, "stage attempt failed, retrying",
			logging.String(logging.FieldStage, string(stage)),
			logging.String(logging.FieldErrorCategory, string(category)),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err))
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

// failStage finalizes the attempt record for a failed stage and routes the
// cascade: permanent failures and final stages end in exhausted, everything
// else falls through to the next stage.
func (o *Orchestrator) failStage(ctx context.Context, item *library.Item, stage library.Stage, active library.Status, attemptID int64, stageErr error, next func(context.Context, *library.Item) (*Result, error)) (*Result, error) {
	category := classify.Categorize(stageErr)
	if err := o.store.FinishAttempt(ctx, attemptID, library.AttemptResult{
		Error:         stageErr.Error(),
		ErrorCategory: string(category),
	}); err != nil {
		return nil, err
	}
	if err := o.store.IncrementAttemptCount(ctx, item.ID); err != nil {
		return nil, err
	}

	if category == classify.CategoryPermanent || next == nil {
		message := stageErr.Error()
		if err := o.store.Transition(ctx, item.ID, active, library.StatusExhausted, &library.Patch{ErrorMessage: &message}); err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "cascade exhausted",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldStage, string(stage)),
			logging.String(logging.FieldErrorCategory, string(category)),
			logging.Error(stageErr))
		return &Result{ItemID: item.ID, FinalStatus: library.StatusExhausted, Stage: stage, ErrorMessage: message}, nil
	}

	o.logger.InfoContext(ctx, "stage failed, cascading to next stage",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldStage, string(stage)),
		logging.String(logging.FieldErrorCategory, string(category)),
		logging.Error(stageErr))
	return next(ctx, item)
}

func (o *Orchestrator) runStage1(ctx context.Context, item *library.Item, from library.Status) (*Result, error) {
	if err := o.activateStage(ctx, item, from, library.StatusStage1Active, nil); err != nil {
		return nil, err
	}
	return o.executeStage1(ctx, item)
}

// executeStage1 runs citation linking for an item already in stage1_active.
func (o *Orchestrator) executeStage1(ctx context.Context, item *library.Item) (*Result, error) {
	ctx = services.WithStage(ctx, string(library.StageCiteLink))

	attemptID, err := o.store.StartAttempt(ctx, item.ID, library.StageCiteLink)
	if err != nil {
		return nil, err
	}

	var resolved *citelink.Result
	stageErr := o.withRetry(ctx, library.StageCiteLink, func(ctx context.Context) error {
		result, err := o.linker.Resolve(ctx, citelink.Request{URL: item.URL, Identifier: item.Identifier})
		if err != nil {
			return err
		}
		resolved = result
		return nil
	})
	if stageErr != nil {
		return o.failStage(ctx, item, library.StageCiteLink, library.StatusStage1Active, attemptID, stageErr,
			func(ctx context.Context, item *library.Item) (*Result, error) {
				return o.runStage2(ctx, item, library.StatusStage1Active)
			})
	}

	fields := prepareFields(resolved.Fields, item.URL)
	citationText := citation.Format(fields)
	metadataJSON, err := fields.Encode()
	if err != nil {
		return nil, err
	}

	if err := o.store.FinishAttempt(ctx, attemptID, library.AttemptResult{
		Success:     true,
		CitationKey: resolved.CitationKey,
	}); err != nil {
		return nil, err
	}

	patch := &library.Patch{
		CitationKey:  &resolved.CitationKey,
		Citation:     &citationText,
		MetadataJSON: &metadataJSON,
	}

	validation := citation.Validate(citationText, fields)
	if validation.Complete {
		if err := o.store.Transition(ctx, item.ID, library.StatusStage1Active, library.StatusStored, patch); err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "citation linked and stored",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("citation_key", resolved.CitationKey))
		return &Result{ItemID: item.ID, FinalStatus: library.StatusStored, Stage: library.StageCiteLink}, nil
	}

	reason := "citation missing: " + strings.Join(validation.Missing, ", ")
	patch.ReviewReason = &reason
	if err := o.store.Transition(ctx, item.ID, library.StatusStage1Active, library.StatusStoredIncomplete, patch); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "citation stored incomplete, scheduling enrichment",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("missing", strings.Join(validation.Missing, ",")))
	o.spawnEnrichment(ctx, item.ID)
	return &Result{ItemID: item.ID, FinalStatus: library.StatusStoredIncomplete, Stage: library.StageCiteLink}, nil
}

func (o *Orchestrator) runStage2(ctx context.Context, item *library.Item, from library.Status) (*Result, error) {
	if err := o.activateStage(ctx, item, from, library.StatusStage2Active, nil); err != nil {
		return nil, err
	}
	return o.executeStage2(ctx, item)
}

// executeStage2 runs content fetch for an item already in stage2_active.
func (o *Orchestrator) executeStage2(ctx context.Context, item *library.Item) (*Result, error) {
	ctx = services.WithStage(ctx, string(library.StageContentFetch))

	attemptID, err := o.store.StartAttempt(ctx, item.ID, library.StageContentFetch)
	if err != nil {
		return nil, err
	}

	var fetched *contentfetch.Result
	stageErr := o.withRetry(ctx, library.StageContentFetch, func(ctx context.Context) error {
		result, err := o.fetcher.Fetch(ctx, contentfetch.Request{URL: item.URL, UseCache: item.HasCachedContent})
		if err != nil {
			return err
		}
		fetched = result
		return nil
	})
	if stageErr != nil {
		return o.failStage(ctx, item, library.StageContentFetch, library.StatusStage2Active, attemptID, stageErr,
			func(ctx context.Context, item *library.Item) (*Result, error) {
				return o.runStage3(ctx, item, library.StatusStage2Active, nil)
			})
	}

	if err := o.store.FinishAttempt(ctx, attemptID, library.AttemptResult{Success: true}); err != nil {
		return nil, err
	}

	item.ContentKey = fetched.ContentKey
	item.HasCachedContent = true
	cached := true
	patch := &library.Patch{
		ContentKey:       &fetched.ContentKey,
		HasCachedContent: &cached,
	}
	if len(fetched.AltIdentifiers) > 0 {
		encoded, err := json.Marshal(fetched.AltIdentifiers)
		if err != nil {
			return nil, fmt.Errorf("encode alternate identifiers: %w", err)
		}
		altJSON := string(encoded)
		patch.AltIdentifiersJSON = &altJSON

		if err := o.store.Transition(ctx, item.ID, library.StatusStage2Active, library.StatusAwaitingSelection, patch); err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "alternate identifiers found, awaiting selection",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Int("identifiers", len(fetched.AltIdentifiers)))
		return &Result{ItemID: item.ID, FinalStatus: library.StatusAwaitingSelection, Stage: library.StageContentFetch}, nil
	}

	// No identifiers to choose from; hand the cached content straight to
	// extraction, landing the fetch results in the activation write.
	return o.runStage3(ctx, item, library.StatusStage2Active, patch)
}

func (o *Orchestrator) runStage3(ctx context.Context, item *library.Item, from library.Status, carry *library.Patch) (*Result, error) {
	if err := o.activateStage(ctx, item, from, library.StatusStage3Active, carry); err != nil {
		return nil, err
	}
	return o.executeStage3(ctx, item)
}

// executeStage3 runs model extraction for an item already in stage3_active.
// Extraction is the last strategy, so every failure here ends in exhausted.
func (o *Orchestrator) executeStage3(ctx context.Context, item *library.Item) (*Result, error) {
	ctx = services.WithStage(ctx, string(library.StageExtract))

	attemptID, err := o.store.StartAttempt(ctx, item.ID, library.StageExtract)
	if err != nil {
		return nil, err
	}

	var extraction *extract.Extraction
	stageErr := o.withRetry(ctx, library.StageExtract, func(ctx context.Context) error {
		if item.ContentKey == "" {
			return errors.New("validation failed: no cached content available for extraction")
		}
		content, err := o.fetcher.Content(ctx, item.ContentKey)
		if err != nil {
			return err
		}
		result, err := o.extractor.Extract(ctx, content)
		if err != nil {
			return err
		}
		extraction = result
		return nil
	})
	if stageErr != nil {
		return o.failStage(ctx, item, library.StageExtract, library.StatusStage3Active, attemptID, stageErr, nil)
	}

	if err := o.store.FinishAttempt(ctx, attemptID, library.AttemptResult{
		Success:      true,
		QualityScore: extraction.QualityScore,
	}); err != nil {
		return nil, err
	}

	fields := prepareFields(extraction.Fields, item.URL)
	citationText := citation.Format(fields)
	metadataJSON, err := fields.Encode()
	if err != nil {
		return nil, err
	}

	if extraction.QualityScore > o.qualityThreshold {
		needsReview := true
		reason := fmt.Sprintf("extracted metadata scored %d, awaiting confirmation", extraction.QualityScore)
		patch := &library.Patch{
			Citation:     &citationText,
			MetadataJSON: &metadataJSON,
			QualityScore: &extraction.QualityScore,
			NeedsReview:  &needsReview,
			ReviewReason: &reason,
		}
		if err := o.store.Transition(ctx, item.ID, library.StatusStage3Active, library.StatusAwaitingReview, patch); err != nil {
			return nil, err
		}
		o.logger.InfoContext(ctx, "extraction succeeded, awaiting review",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Int("quality_score", extraction.QualityScore))
		return &Result{ItemID: item.ID, FinalStatus: library.StatusAwaitingReview, Stage: library.StageExtract}, nil
	}

	message := fmt.Sprintf("extraction quality score %d at or below threshold %d", extraction.QualityScore, o.qualityThreshold)
	patch := &library.Patch{
		MetadataJSON: &metadataJSON,
		QualityScore: &extraction.QualityScore,
		ErrorMessage: &message,
	}
	if err := o.store.Transition(ctx, item.ID, library.StatusStage3Active, library.StatusExhausted, patch); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "extraction below quality threshold",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.Int("quality_score", extraction.QualityScore))
	return &Result{ItemID: item.ID, FinalStatus: library.StatusExhausted, Stage: library.StageExtract, ErrorMessage: message}, nil
}

// prepareFields normalizes collaborator fields for storage. Titles are
// case-repaired and the item URL fills in when the collaborator omits one.
func prepareFields(raw map[string]string, itemURL string) citation.Fields {
	fields := citation.Fields{}
	for key, value := range raw {
		fields[key] = strings.TrimSpace(value)
	}
	if title := fields["title"]; title != "" {
		fields["title"] = citation.NormalizeTitle(title)
	}
	if fields["url"] == "" && itemURL != "" {
		fields["url"] = itemURL
	}
	return fields
}
