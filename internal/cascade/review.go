package cascade

import (
	"context"
	"fmt"
	"strings"

	"folio/internal/library"
	"folio/internal/logging"
	"folio/internal/services"
)

// ResolveSelection records the identifier a human picked for an item parked
// in awaiting_selection and immediately re-enters citation linking with it.
// The selection write and the stage activation happen in one guarded
// transition, so a concurrent selection loses cleanly with ErrStateConflict.
func (o *Orchestrator) ResolveSelection(ctx context.Context, itemID int64, identifier string) (*Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, services.Wrap(services.ErrValidation, string(library.StageCiteLink), "select", "identifier required", nil)
	}
	ctx = services.WithItemID(ctx, itemID)

	item, err := o.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", library.ErrNotFound, itemID)
	}
	if item.Status != library.StatusAwaitingSelection {
		return nil, fmt.Errorf("%w: %s -> %s", library.ErrInvalidTransition, item.Status, library.StatusStage1Active)
	}

	hasIdentifier := true
	cleared := ""
	err = o.store.Transition(ctx, itemID, library.StatusAwaitingSelection, library.StatusStage1Active, &library.Patch{
		Identifier:    &identifier,
		HasIdentifier: &hasIdentifier,
		ErrorMessage:  &cleared,
	})
	if err != nil {
		return nil, err
	}
	item.Status = library.StatusStage1Active
	item.Identifier = identifier
	item.HasIdentifier = true

	o.logger.InfoContext(ctx, "identifier selected, re-entering citation linking",
		logging.Int64(logging.FieldItemID, itemID),
		logging.String("identifier", identifier))
	return o.executeStage1(ctx, item)
}

// ApproveReview confirms extracted metadata and stores the item.
func (o *Orchestrator) ApproveReview(ctx context.Context, itemID int64) error {
	needsReview := false
	cleared := ""
	err := o.store.Transition(ctx, itemID, library.StatusAwaitingReview, library.StatusStored, &library.Patch{
		NeedsReview:  &needsReview,
		ReviewReason: &cleared,
	})
	if err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "review approved", logging.Int64(logging.FieldItemID, itemID))
	return nil
}

// RejectReview discards extracted metadata and marks the item exhausted, the
// queue for manual citation creation.
func (o *Orchestrator) RejectReview(ctx context.Context, itemID int64) error {
	needsReview := false
	message := "extracted metadata rejected during review"
	err := o.store.Transition(ctx, itemID, library.StatusAwaitingReview, library.StatusExhausted, &library.Patch{
		NeedsReview:  &needsReview,
		ErrorMessage: &message,
	})
	if err != nil {
		return err
	}
	o.logger.InfoContext(ctx, "review rejected", logging.Int64(logging.FieldItemID, itemID))
	return nil
}
