// handlers_chat.go - Conversational pipeline handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
	"github.com/hypersignal/backend/internal/orchestrator"
)

// streamBuffer is the event channel depth per streaming request. Status
// events beyond it are dropped for slow readers; terminal events never
// are.
const streamBuffer = 32

// ChatHandlerImpl implements the ChatHandler interface
type ChatHandlerImpl struct {
	meta metastore.Store
	conv Conversation
	sugg SuggestionSource
}

// NewChatHandler creates a new chat handler instance
func NewChatHandler(meta metastore.Store, conv Conversation, sugg SuggestionSource) ChatHandler {
	return &ChatHandlerImpl{meta: meta, conv: conv, sugg: sugg}
}

func bindChatRequest(c echo.Context) (models.ChatRequest, error) {
	var req models.ChatRequest
	if err := c.Bind(&req); err != nil {
		return req, NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID == "" {
		return req, NewValidationError("file_id")
	}
	if strings.TrimSpace(req.Message) == "" {
		return req, NewValidationError("message")
	}
	return req, nil
}

// HandleChatMessage runs the pipeline synchronously and returns only the
// terminal payload.
func (h *ChatHandlerImpl) HandleChatMessage(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return err
	}

	resp, err := h.conv.HandleMessage(c.Request().Context(), req, nil)
	if err != nil {
		return MapDomainError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleChatMessageStream runs the pipeline while streaming progress
// events over SSE: zero or more status events, then exactly one complete
// or error event.
func (h *ChatHandlerImpl) HandleChatMessageStream(c echo.Context) error {
	req, err := bindChatRequest(c)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	events := make(chan orchestrator.Event, streamBuffer)
	go func() {
		defer close(events)
		emit := func(e orchestrator.Event) {
			if e.Type == "status" {
				// Never block the pipeline on a slow reader.
				select {
				case events <- e:
				default:
				}
				return
			}
			events <- e
		}
		// Pipeline errors surface as the terminal error event.
		h.conv.HandleMessage(c.Request().Context(), req, emit)
	}()

	for e := range events {
		h.sendSSEData(c, e)
	}
	return nil
}

func (h *ChatHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

// HandleSuggestions returns follow-up questions for a file.
func (h *ChatHandlerImpl) HandleSuggestions(c echo.Context) error {
	var req models.SuggestionsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.FileID == "" {
		return NewValidationError("file_id")
	}

	ctx := c.Request().Context()
	rec, err := h.meta.GetFile(ctx, req.FileID)
	if err != nil {
		return MapDomainError(err)
	}

	questions, err := h.sugg.Suggest(ctx, rec, req.ForceNew)
	if err != nil {
		return NewInternalError("failed to generate suggestions", err)
	}
	return c.JSON(http.StatusOK, models.SuggestionsResponse{Questions: questions})
}

// HandleGetChat returns one full chat session. Sessions stay readable
// after their file is deleted.
func (h *ChatHandlerImpl) HandleGetChat(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	sess, err := h.meta.GetChat(c.Request().Context(), id)
	if err != nil {
		return MapDomainError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleListChatsByFile returns all sessions for a file.
func (h *ChatHandlerImpl) HandleListChatsByFile(c echo.Context) error {
	fileID := c.Param("fileId")
	if fileID == "" {
		return NewValidationError("fileId")
	}

	chats, err := h.meta.ListChatsByFile(c.Request().Context(), fileID)
	if err != nil {
		return NewInternalError("failed to list chats", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": chats})
}

// HandleListChats returns summaries of all sessions.
func (h *ChatHandlerImpl) HandleListChats(c echo.Context) error {
	chats, err := h.meta.ListChats(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list chats", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"chats": chats})
}

// HandleDeleteChat removes a session. Deleting an already-deleted
// session succeeds.
func (h *ChatHandlerImpl) HandleDeleteChat(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.meta.DeleteChat(c.Request().Context(), id); err != nil {
		return NewInternalError("failed to delete chat", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted", "chat_id": id})
}
