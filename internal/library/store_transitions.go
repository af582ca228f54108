package library

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Patch carries optional field updates applied atomically alongside a status
// transition. Nil fields are left untouched.
type Patch struct {
	Title              *string
	Identifier         *string
	HasIdentifier      *bool
	ContentKey         *string
	CitationKey        *string
	Citation           *string
	MetadataJSON       *string
	QualityScore       *int
	AltIdentifiersJSON *string
	ErrorMessage       *string
	NeedsReview        *bool
	ReviewReason       *string
	HasCachedContent   *bool
}

// Transition moves an item from one status to another in a single UPDATE
// guarded by the expected source status. The guard makes racing workers safe:
// whichever writer loses sees ErrStateConflict and must abandon its run.
// Illegal edges fail with ErrInvalidTransition before any write.
func (s *Store) Transition(ctx context.Context, id int64, from, to Status, patch *Patch) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	assignments := []string{"status = ?", "updated_at = ?"}
	args := []any{to, time.Now().UTC().Format(time.RFC3339Nano)}

	if patch != nil {
		if patch.Title != nil {
			assignments = append(assignments, "title = ?")
			args = append(args, nullableString(*patch.Title))
		}
		if patch.Identifier != nil {
			assignments = append(assignments, "identifier = ?")
			args = append(args, nullableString(*patch.Identifier))
		}
		if patch.HasIdentifier != nil {
			assignments = append(assignments, "has_identifier = ?")
			args = append(args, boolToInt(*patch.HasIdentifier))
		}
		if patch.ContentKey != nil {
			assignments = append(assignments, "content_key = ?")
			args = append(args, nullableString(*patch.ContentKey))
		}
		if patch.CitationKey != nil {
			assignments = append(assignments, "citation_key = ?")
			args = append(args, nullableString(*patch.CitationKey))
		}
		if patch.Citation != nil {
			assignments = append(assignments, "citation = ?")
			args = append(args, nullableString(*patch.Citation))
		}
		if patch.MetadataJSON != nil {
			assignments = append(assignments, "metadata_json = ?")
			args = append(args, nullableString(*patch.MetadataJSON))
		}
		if patch.QualityScore != nil {
			assignments = append(assignments, "quality_score = ?")
			args = append(args, *patch.QualityScore)
		}
		if patch.AltIdentifiersJSON != nil {
			assignments = append(assignments, "alt_identifiers_json = ?")
			args = append(args, nullableString(*patch.AltIdentifiersJSON))
		}
		if patch.ErrorMessage != nil {
			assignments = append(assignments, "error_message = ?")
			args = append(args, nullableString(*patch.ErrorMessage))
		}
		if patch.NeedsReview != nil {
			assignments = append(assignments, "needs_review = ?")
			args = append(args, boolToInt(*patch.NeedsReview))
		}
		if patch.ReviewReason != nil {
			assignments = append(assignments, "review_reason = ?")
			args = append(args, nullableString(*patch.ReviewReason))
		}
		if patch.HasCachedContent != nil {
			assignments = append(assignments, "has_cached_content = ?")
			args = append(args, boolToInt(*patch.HasCachedContent))
		}
	}

	args = append(args, id, from)
	query := `UPDATE items SET ` + strings.Join(assignments, ", ") + ` WHERE id = ? AND status = ?`

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: item %d is %s, expected %s", ErrStateConflict, id, current.Status, from)
}

// ResetToNotStarted applies the universal manual reset from a terminal state.
func (s *Store) ResetToNotStarted(ctx context.Context, id int64) error {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	cleared := ""
	return s.Transition(ctx, id, item.Status, StatusNotStarted, &Patch{ErrorMessage: &cleared})
}
