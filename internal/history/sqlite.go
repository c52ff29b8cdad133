package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// timestampLayout is fixed-width so created_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteRepository implements Repository on the parse_history table.
type SQLiteRepository struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// NewSQLiteRepository creates a repository over an already migrated database.
//
// Parameters:
//   - db: Open SQLite connection
//   - maxEntries: Number of newest entries kept by Record; 0 keeps everything
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB, maxEntries int) *SQLiteRepository {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &SQLiteRepository{
		db:         db,
		maxEntries: maxEntries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record inserts entry and trims the table in one transaction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entry: Entry to persist; ID and CreatedAt are filled in when unset
//
// Returns:
//   - error: ErrInvalidSource, ErrInvalidEntry, or the underlying database error
func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", ErrInvalidEntry)
	}
	if !ValidSource(entry.Source) {
		return fmt.Errorf("%w: %q", ErrInvalidSource, entry.Source)
	}
	if !entry.Success && entry.ErrorMessage == "" {
		return fmt.Errorf("%w: failed entry needs an error message", ErrInvalidEntry)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	messages := entry.Messages
	if messages == nil {
		messages = []dlms.Message{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshalling messages: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO parse_history
		 (id, created_at, source, input, messages, message_count, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreatedAt.Format(timestampLayout),
		entry.Source,
		entry.Input,
		string(messagesJSON),
		len(messages),
		boolToInt(entry.Success),
		nullString(entry.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if r.maxEntries > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM parse_history
			 WHERE id NOT IN (
			     SELECT id FROM parse_history
			     ORDER BY created_at DESC, rowid DESC
			     LIMIT ?
			 )`,
			r.maxEntries,
		)
		if err != nil {
			return fmt.Errorf("trimming history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history entry: %w", err)
	}
	return nil
}

// List returns recent entries ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 500)
//
// Returns:
//   - []Entry: History entries (may be empty, never nil)
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, source, input, messages, success, error_message
		 FROM parse_history
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	return entries, nil
}

// Get returns a single entry by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, created_at, source, input, messages, success, error_message
		 FROM parse_history
		 WHERE id = ?`,
		id,
	)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes a single entry by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM parse_history WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting history entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every entry.
func (r *SQLiteRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM parse_history")
	if err != nil {
		return 0, fmt.Errorf("clearing history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Prune deletes entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM parse_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry        Entry
		createdAt    string
		messagesJSON string
		success      int
		errorMessage sql.NullString
	)

	err := row.Scan(&entry.ID, &createdAt, &entry.Source, &entry.Input, &messagesJSON, &success, &errorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning history entry: %w", err)
	}

	entry.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return nil, err
	}

	entry.Messages, err = dlms.UnmarshalMessages([]byte(messagesJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshalling messages for %s: %w", entry.ID, err)
	}

	entry.Success = success == 1
	entry.ErrorMessage = errorMessage.String
	return &entry, nil
}

// parseTimestamp parses a created_at value.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(timestampLayout, value)
	if err == nil {
		return timestamp, nil
	}

	// Rows inserted by hand (sqlite3 shell) tend to use plain RFC 3339.
	fallback, fallbackErr := time.Parse(time.RFC3339Nano, value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
