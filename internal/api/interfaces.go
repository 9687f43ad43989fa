// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/models"
	"github.com/hypersignal/backend/internal/orchestrator"
)

// FileHandler handles file ingestion and retrieval operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleGetFileData(c echo.Context) error
	HandleGetFileDataMsgpack(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// ChatHandler handles conversational pipeline operations
type ChatHandler interface {
	HandleChatMessage(c echo.Context) error
	HandleChatMessageStream(c echo.Context) error
	HandleSuggestions(c echo.Context) error
	HandleGetChat(c echo.Context) error
	HandleListChatsByFile(c echo.Context) error
	HandleListChats(c echo.Context) error
	HandleDeleteChat(c echo.Context) error
}

// QueryHandler handles the ad-hoc SQL workbench operations
type QueryHandler interface {
	HandleExecuteQuery(c echo.Context) error
	HandleAIAssist(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Ingestor runs the upload pipeline. Satisfied by *ingest.Ingestor;
// narrowed here so handler tests can substitute it.
type Ingestor interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*models.FileRecord, error)
}

// QueryEngine executes validated SQL for one file record.
type QueryEngine interface {
	Execute(ctx context.Context, rec *models.FileRecord, query string) (*engine.Result, error)
	Preview(ctx context.Context, rec *models.FileRecord, limit int) (*engine.Result, error)
	Evict(fileID string)
}

// Conversation drives the chat pipeline.
type Conversation interface {
	HandleMessage(ctx context.Context, req models.ChatRequest, emit orchestrator.EmitFunc) (*models.ChatResponse, error)
	GenerateQuery(ctx context.Context, fileID, prompt string) (string, error)
}

// SuggestionSource produces follow-up questions for a file.
type SuggestionSource interface {
	Suggest(ctx context.Context, rec *models.FileRecord, forceNew bool) ([]string, error)
}
