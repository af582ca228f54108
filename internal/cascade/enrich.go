package cascade

import (
	"context"
	"errors"

	"folio/internal/citation"
	"folio/internal/classify"
	"folio/internal/library"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/contentfetch"
)

// spawnEnrichment starts a background extraction pass for an item that just
// landed in stored_incomplete. The goroutine outlives the caller's context on
// purpose; the item already holds a successful result and must keep it no
// matter how enrichment ends.
func (o *Orchestrator) spawnEnrichment(ctx context.Context, itemID int64) {
	bg := context.WithoutCancel(ctx)
	o.enrichWG.Add(1)
	go func() {
		defer o.enrichWG.Done()
		if err := o.enrich(bg, itemID); err != nil {
			o.logger.WarnContext(bg, "background enrichment failed",
				logging.Int64(logging.FieldItemID, itemID),
				logging.Error(err))
		}
	}()
}

// enrich reruns extraction over the item's content and merges any new fields
// into the stored metadata. When the merged citation becomes complete the
// item is upgraded to stored; on any failure, or when the item has moved on,
// the stored_incomplete result is left exactly as it was.
func (o *Orchestrator) enrich(ctx context.Context, itemID int64) error {
	ctx = services.WithItemID(ctx, itemID)
	ctx = services.WithStage(ctx, string(library.StageExtract))

	item, err := o.store.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil || item.Status != library.StatusStoredIncomplete {
		return nil
	}

	attemptID, err := o.store.StartAttempt(ctx, item.ID, library.StageExtract)
	if err != nil {
		return err
	}

	content, err := o.enrichmentContent(ctx, item)
	if err != nil {
		return o.finishFailedEnrichment(ctx, attemptID, err)
	}
	extraction, err := o.extractor.Extract(ctx, content)
	if err != nil {
		return o.finishFailedEnrichment(ctx, attemptID, err)
	}
	if err := o.store.FinishAttempt(ctx, attemptID, library.AttemptResult{
		Success:      true,
		QualityScore: extraction.QualityScore,
	}); err != nil {
		return err
	}

	// Merge against the latest persisted metadata so a concurrent write does
	// not get clobbered. Existing fields win; enrichment only fills gaps.
	current, err := o.store.GetByID(ctx, item.ID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != library.StatusStoredIncomplete {
		return nil
	}
	merged, err := citation.ParseFields(current.MetadataJSON)
	if err != nil {
		return err
	}
	for key, value := range prepareFields(extraction.Fields, current.URL) {
		if merged[key] == "" {
			merged[key] = value
		}
	}

	citationText := citation.Format(merged)
	validation := citation.Validate(citationText, merged)
	if !validation.Complete {
		return nil
	}

	metadataJSON, err := merged.Encode()
	if err != nil {
		return err
	}
	clearedReason := ""
	err = o.store.Transition(ctx, current.ID, library.StatusStoredIncomplete, library.StatusStored, &library.Patch{
		Citation:     &citationText,
		MetadataJSON: &metadataJSON,
		ReviewReason: &clearedReason,
	})
	if errors.Is(err, library.ErrStateConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "enrichment completed citation, item upgraded to stored",
		logging.Int64(logging.FieldItemID, current.ID))
	return nil
}

// enrichmentContent serves cached content when the item has some and fetches
// the page otherwise.
func (o *Orchestrator) enrichmentContent(ctx context.Context, item *library.Item) (string, error) {
	if item.HasCachedContent && item.ContentKey != "" {
		return o.fetcher.Content(ctx, item.ContentKey)
	}
	fetched, err := o.fetcher.Fetch(ctx, contentfetch.Request{URL: item.URL, UseCache: true})
	if err != nil {
		return "", err
	}
	return o.fetcher.Content(ctx, fetched.ContentKey)
}

func (o *Orchestrator) finishFailedEnrichment(ctx context.Context, attemptID int64, cause error) error {
	if err := o.store.FinishAttempt(ctx, attemptID, library.AttemptResult{
		Error:         cause.Error(),
		ErrorCategory: string(classify.Categorize(cause)),
	}); err != nil {
		return err
	}
	return cause
}
