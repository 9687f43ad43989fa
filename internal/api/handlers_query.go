// handlers_query.go - Ad-hoc SQL workbench handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hypersignal/backend/internal/metastore"
)

// QueryHandlerImpl implements the QueryHandler interface
type QueryHandlerImpl struct {
	meta   metastore.Store
	engine QueryEngine
	conv   Conversation
}

// NewQueryHandler creates a new query handler instance
func NewQueryHandler(meta metastore.Store, engine QueryEngine, conv Conversation) QueryHandler {
	return &QueryHandlerImpl{meta: meta, engine: engine, conv: conv}
}

type executeQueryRequest struct {
	FileID string `json:"file_id"`
	Query  string `json:"query"`
}

type aiAssistRequest struct {
	FileID string `json:"file_id"`
	Prompt string `json:"prompt"`
}

// HandleExecuteQuery runs user-supplied SQL against one file's data view.
func (h *QueryHandlerImpl) HandleExecuteQuery(c echo.Context) error {
	var req executeQueryRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID == "" {
		return NewValidationError("file_id")
	}
	if strings.TrimSpace(req.Query) == "" {
		return NewValidationError("query")
	}

	ctx := c.Request().Context()
	rec, err := h.meta.GetFile(ctx, req.FileID)
	if err != nil {
		return MapDomainError(err)
	}

	res, err := h.engine.Execute(ctx, rec, req.Query)
	if err != nil {
		return MapDomainError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleAIAssist generates SQL for a prompt without executing it.
func (h *QueryHandlerImpl) HandleAIAssist(c echo.Context) error {
	var req aiAssistRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID == "" {
		return NewValidationError("file_id")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return NewValidationError("prompt")
	}

	query, err := h.conv.GenerateQuery(c.Request().Context(), req.FileID, req.Prompt)
	if err != nil {
		return MapDomainError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"query": query})
}
