// Package history persists parse results so operators can revisit, export
// or delete them later.
//
// Each call to the pipeline produces one Entry: the raw input (a single hex
// frame or a multi-line batch), the decoded messages on success, or the
// error message on failure. The table is capped at a configurable number of
// entries; the oldest rows are trimmed on every Record.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/Terminal3D/DLMS-Parser/internal/dlms"
)

// Entry sources.
const (
	SourceAPI  = "api"
	SourceCLI  = "cli"
	SourceMQTT = "mqtt"
)

var (
	// ErrNotFound is returned when an entry ID does not exist.
	ErrNotFound = errors.New("history: entry not found")

	// ErrInvalidSource is returned when an entry's source is not api, cli or mqtt.
	ErrInvalidSource = errors.New("history: invalid source")

	// ErrInvalidEntry is returned for entries missing required fields.
	ErrInvalidEntry = errors.New("history: invalid entry")
)

// Entry is one recorded parse.
type Entry struct {
	// ID is a UUID assigned by Record when empty.
	ID string `json:"id"`

	// CreatedAt is assigned by Record when zero (UTC).
	CreatedAt time.Time `json:"createdAt"`

	// Source is where the input came from (api, cli, mqtt).
	Source string `json:"source"`

	// Input is the raw text as submitted, before normalization.
	Input string `json:"input"`

	// Messages holds the decoded records; empty when Success is false.
	Messages []dlms.Message `json:"messages"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Repository stores and retrieves parse history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record persists entry, filling ID and CreatedAt when unset, and trims
	// the store to its configured maximum.
	Record(ctx context.Context, entry *Entry) error

	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Get returns one entry or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)

	// Delete removes one entry or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Clear removes every entry and reports how many were deleted.
	Clear(ctx context.Context) (int64, error)

	// Prune removes entries older than olderThan and reports how many were deleted.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ValidSource reports whether s is a known entry source.
func ValidSource(s string) bool {
	switch s {
	case SourceAPI, SourceCLI, SourceMQTT:
		return true
	}
	return false
}
