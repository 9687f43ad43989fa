// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/hypersignal/backend/internal/metastore"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Meta         metastore.Store
	Ingestor     Ingestor
	Engine       QueryEngine
	Conversation Conversation
	Suggestions  SuggestionSource
	// StoreCleanup removes a deleted file's columnar data.
	StoreCleanup func(fileID string) error
	Version      string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Files  FileHandler
	Chat   ChatHandler
	Query  QueryHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version),
		Files:  NewFileHandler(deps.Meta, deps.Ingestor, deps.Engine, deps.StoreCleanup),
		Chat:   NewChatHandler(deps.Meta, deps.Conversation, deps.Suggestions),
		Query:  NewQueryHandler(deps.Meta, deps.Engine, deps.Conversation),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// File routes
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.GET("", handlers.Files.HandleListFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.GET("/:id/data", handlers.Files.HandleGetFileData)
	fileGroup.GET("/:id/data/msgpack", handlers.Files.HandleGetFileDataMsgpack)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)

	// Chat routes
	chatGroup := e.Group("/api/chat")
	chatGroup.POST("/message", handlers.Chat.HandleChatMessage)
	chatGroup.POST("/message/stream", handlers.Chat.HandleChatMessageStream)
	chatGroup.POST("/suggestions", handlers.Chat.HandleSuggestions)
	chatGroup.GET("", handlers.Chat.HandleListChats)
	chatGroup.GET("/:id", handlers.Chat.HandleGetChat)
	chatGroup.GET("/file/:fileId", handlers.Chat.HandleListChatsByFile)
	chatGroup.DELETE("/:id", handlers.Chat.HandleDeleteChat)

	// Query workbench routes
	queryGroup := e.Group("/api/query")
	queryGroup.POST("/execute", handlers.Query.HandleExecuteQuery)
	queryGroup.POST("/ai-assist", handlers.Query.HandleAIAssist)
}
