package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AttemptResult finalizes an open attempt record.
type AttemptResult struct {
	Success       bool
	Error         string
	ErrorCategory string
	CitationKey   string
	QualityScore  int
}

// StartAttempt appends a placeholder attempt row for a stage that is about to
// run and returns its identifier. The row is finalized by FinishAttempt.
func (s *Store) StartAttempt(ctx context.Context, itemID int64, stage Stage) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO attempts (item_id, stage, success, started_at) VALUES (?, ?, 0, ?)`,
		itemID,
		stage,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("start attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// FinishAttempt records the outcome of an attempt in place. The single-row
// UPDATE keeps history writes atomic even when the background enrichment runs
// concurrently with the main cascade.
func (s *Store) FinishAttempt(ctx context.Context, attemptID int64, result AttemptResult) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE attempts
         SET success = ?, error = ?, error_category = ?, citation_key = ?,
             quality_score = ?, finished_at = ?
         WHERE id = ?`,
		boolToInt(result.Success),
		nullableString(result.Error),
		nullableString(result.ErrorCategory),
		nullableString(result.CitationKey),
		result.QualityScore,
		time.Now().UTC().Format(time.RFC3339Nano),
		attemptID,
	)
	if err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: attempt %d", ErrNotFound, attemptID)
	}
	return nil
}

// IncrementAttemptCount bumps the item's attempt counter. The counter only
// ever increases.
func (s *Store) IncrementAttemptCount(ctx context.Context, itemID int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET attempt_count = attempt_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		itemID,
	)
	if err != nil {
		return fmt.Errorf("increment attempt count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	return nil
}

// Attempts returns the full attempt history for an item, oldest first.
func (s *Store) Attempts(ctx context.Context, itemID int64) ([]*Attempt, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, stage, success, error, error_category, citation_key,
                quality_score, started_at, finished_at
         FROM attempts WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*Attempt, error) {
	var (
		id            int64
		itemID        int64
		stageStr      string
		success       int
		errMessage    sql.NullString
		errorCategory sql.NullString
		citationKey   sql.NullString
		qualityScore  sql.NullInt64
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemID,
		&stageStr,
		&success,
		&errMessage,
		&errorCategory,
		&citationKey,
		&qualityScore,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:            id,
		ItemID:        itemID,
		Stage:         Stage(stageStr),
		Success:       success != 0,
		Error:         errMessage.String,
		ErrorCategory: errorCategory.String,
		CitationKey:   citationKey.String,
		QualityScore:  int(qualityScore.Int64),
	}

	if started, err := parseTimeString(startedRaw.String); err == nil {
		attempt.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			attempt.FinishedAt = &finished
		}
	}
	return attempt, nil
}
