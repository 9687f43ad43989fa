// Package metastore provides durable storage for file metadata and chat
// sessions. It is the only state shared across requests.
package metastore

import (
	"context"
	"errors"

	"github.com/hypersignal/backend/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("metastore: not found")

// Store is the metadata persistence interface. It exclusively owns
// FileRecord and ChatSession persistence; callers never share in-process
// mutable state outside of it.
type Store interface {
	// SaveFile inserts a new FileRecord. Records are never updated in place.
	SaveFile(ctx context.Context, rec *models.FileRecord) error
	// GetFile returns the record for a file ID, or ErrNotFound.
	GetFile(ctx context.Context, fileID string) (*models.FileRecord, error)
	// ListFiles returns all records, newest first. All versions are listed.
	ListFiles(ctx context.Context) ([]*models.FileRecord, error)
	// NextVersion returns max(version)+1 across records with this filename,
	// or 1 when none exist.
	NextVersion(ctx context.Context, filename string) (int, error)
	// DeleteFile removes a file record. Chat sessions referencing the file
	// are kept; the reference simply stops resolving.
	DeleteFile(ctx context.Context, fileID string) error

	// GetChat returns a session by ID, or ErrNotFound.
	GetChat(ctx context.Context, chatID string) (*models.ChatSession, error)
	// SaveChat upserts a whole session (messages included).
	SaveChat(ctx context.Context, sess *models.ChatSession) error
	// ListChatsByFile returns sessions for a file, most recently updated first.
	ListChatsByFile(ctx context.Context, fileID string) ([]*models.ChatSession, error)
	// ListChats returns summaries of all sessions, most recently updated first.
	ListChats(ctx context.Context) ([]models.ChatSummary, error)
	// DeleteChat removes a session. Deleting a missing session is not an error.
	DeleteChat(ctx context.Context, chatID string) error

	// GetSuggestions returns the stored suggestion pool for a file
	// (empty slice when none).
	GetSuggestions(ctx context.Context, fileID string) ([]string, error)
	// SaveSuggestions replaces the suggestion pool for a file.
	SaveSuggestions(ctx context.Context, fileID string, questions []string) error

	Close() error
}
