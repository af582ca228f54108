package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/config"
)

// Store manages item persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "library.db"))
}

// OpenPath initializes or connects to the library database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Add inserts a new item for a bookmarked URL awaiting processing.
func (s *Store) Add(ctx context.Context, url, title string) (*Item, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("url must not be empty")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO items (url, title, status, user_intent, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		url,
		nullableString(strings.TrimSpace(title)),
		StatusNotStarted,
		IntentAuto,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches an item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindByURL returns the item registered for a URL, if any.
func (s *Store) FindByURL(ctx context.Context, url string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE url = ?`, strings.TrimSpace(url))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by url: %w", err)
	}
	return item, nil
}

// UpdateFields persists non-status changes to an existing item. Status moves
// must go through Transition instead so the optimistic concurrency guard is
// never bypassed.
func (s *Store) UpdateFields(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE items
         SET url = ?, title = ?, user_intent = ?,
             has_identifier = ?, has_alternate_strategy = ?, has_cached_content = ?,
             identifier = ?, content_key = ?, citation_key = ?, citation = ?, metadata_json = ?,
             quality_score = ?, alt_identifiers_json = ?, error_message = ?,
             needs_review = ?, review_reason = ?, updated_at = ?
         WHERE id = ?`,
		item.URL,
		nullableString(item.Title),
		item.UserIntent,
		boolToInt(item.HasIdentifier),
		boolToInt(item.HasAlternateStrategy),
		boolToInt(item.HasCachedContent),
		nullableString(item.Identifier),
		nullableString(item.ContentKey),
		nullableString(item.CitationKey),
		nullableString(item.Citation),
		nullableString(item.MetadataJSON),
		item.QualityScore,
		nullableString(item.AltIdentifiersJSON),
		nullableString(item.ErrorMessage),
		boolToInt(item.NeedsReview),
		nullableString(item.ReviewReason),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// SetUserIntent updates the owner policy flag for an item.
func (s *Store) SetUserIntent(ctx context.Context, id int64, intent UserIntent) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE items SET user_intent = ?, updated_at = ? WHERE id = ?`,
		intent,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set user intent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns items filtered by status set (or all items when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// IDsByStatus returns item identifiers matching any of the provided statuses.
func (s *Store) IDsByStatus(ctx context.Context, statuses ...Status) ([]int64, error) {
	items, err := s.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates library state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusNotStarted:
			health.NotStarted += count
		case StatusAwaitingSelection, StatusAwaitingReview:
			health.AwaitingHuman += count
		case StatusStored, StatusStoredIncomplete, StatusStoredCustom:
			health.Stored += count
		case StatusExhausted:
			health.Exhausted += count
		default:
			if IsProcessingStatus(status) {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// Remove deletes an item and its attempt history.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const itemColumns = "id, url, title, status, user_intent, attempt_count, has_identifier, has_alternate_strategy, has_cached_content, identifier, content_key, citation_key, citation, metadata_json, quality_score, alt_identifiers_json, error_message, needs_review, review_reason, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id             int64
		url            string
		title          sql.NullString
		statusStr      string
		intentStr      string
		attemptCount   sql.NullInt64
		hasIdentifier  sql.NullInt64
		hasAlternate   sql.NullInt64
		hasCached      sql.NullInt64
		identifier     sql.NullString
		contentKey     sql.NullString
		citationKey    sql.NullString
		citation       sql.NullString
		metadata       sql.NullString
		qualityScore   sql.NullInt64
		altIdentifiers sql.NullString
		errorMessage   sql.NullString
		needsReview    sql.NullInt64
		reviewReason   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&url,
		&title,
		&statusStr,
		&intentStr,
		&attemptCount,
		&hasIdentifier,
		&hasAlternate,
		&hasCached,
		&identifier,
		&contentKey,
		&citationKey,
		&citation,
		&metadata,
		&qualityScore,
		&altIdentifiers,
		&errorMessage,
		&needsReview,
		&reviewReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:                   id,
		URL:                  url,
		Title:                title.String,
		Status:               Status(statusStr),
		UserIntent:           UserIntent(intentStr),
		AttemptCount:         int(attemptCount.Int64),
		HasIdentifier:        hasIdentifier.Int64 != 0,
		HasAlternateStrategy: hasAlternate.Int64 != 0,
		HasCachedContent:     hasCached.Int64 != 0,
		Identifier:           identifier.String,
		ContentKey:           contentKey.String,
		CitationKey:          citationKey.String,
		Citation:             citation.String,
		MetadataJSON:         metadata.String,
		QualityScore:         int(qualityScore.Int64),
		AltIdentifiersJSON:   altIdentifiers.String,
		ErrorMessage:         errorMessage.String,
		NeedsReview:          needsReview.Int64 != 0,
		ReviewReason:         reviewReason.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
