// Package orchestrator drives one chat message through the pipeline:
// classify, then either a direct metadata answer or SQL generation,
// execution, and answer synthesis, then suggestions and persistence.
// Stage transitions are reported through an emit callback so transports
// can stream progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hypersignal/backend/internal/agent"
	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
)

// Pipeline stages, in transition order.
const (
	StageReceived     = "received"
	StageClassifying  = "classifying"
	StageMetadata     = "metadata_answer"
	StageSQLGen       = "sql_generation"
	StageExecuting    = "executing"
	StageSynthesizing = "synthesizing_answer"
	StageSuggesting   = "suggesting"
	StagePersisted    = "persisted"
	StageDone         = "done"
)

// Event is one server-push progress or terminal event. Message is a
// human-readable string for status and error events and the full
// assistant ChatMessage for the complete event.
type Event struct {
	Type               string   `json:"type"` // status | complete | error
	Stage              string   `json:"stage,omitempty"`
	Message            any      `json:"message,omitempty"`
	ChatID             string   `json:"chat_id,omitempty"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
	// SQLQuery carries partial work on error events for diagnostics.
	SQLQuery string `json:"sql_query,omitempty"`
}

// EmitFunc receives events in order. Implementations must not block; the
// transport is responsible for buffering or dropping.
type EmitFunc func(Event)

// statusMessages are the user-facing progress lines per stage.
var statusMessages = map[string]string{
	StageClassifying:  "질문을 분석하고 있어요...",
	StageMetadata:     "파일 정보를 확인하고 있어요...",
	StageSQLGen:       "질문에 맞는 쿼리를 만들고 있어요...",
	StageExecuting:    "데이터를 조회하고 있어요...",
	StageSynthesizing: "답변을 정리하고 있어요...",
	StageSuggesting:   "추천 질문을 준비하고 있어요...",
}

const meaninglessAnswer = "질문을 이해하지 못했어요. 데이터에 대해 조금 더 구체적으로 질문해 주세요."

// chatTitleLimit caps the session title derived from the first message.
const chatTitleLimit = 50

// Orchestrator coordinates the pipeline components. All cross-request
// state lives in the metadata store; the orchestrator itself only holds
// per-session write locks.
type Orchestrator struct {
	meta  metastore.Store
	eng   *engine.Engine
	agent *agent.Agent
	sugg  *agent.Suggester
	cfg   *config.Config
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator.
func New(meta metastore.Store, eng *engine.Engine, ag *agent.Agent, sugg *agent.Suggester, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		meta:  meta,
		eng:   eng,
		agent: ag,
		sugg:  sugg,
		cfg:   cfg,
		log:   log.With("component", "orchestrator"),
		locks: make(map[string]*sync.Mutex),
	}
}

// HandleMessage runs the full pipeline for one user message. Events are
// emitted in order; the returned response mirrors the terminal complete
// event. On error the terminal error event has already been emitted.
//
// The user message is persisted before any processing; the assistant
// message only after successful synthesis. Writes to one chat are
// serialized so concurrent submissions persist in submission order.
func (o *Orchestrator) HandleMessage(ctx context.Context, req models.ChatRequest, emit EmitFunc) (*models.ChatResponse, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	rec, err := o.meta.GetFile(ctx, req.FileID)
	if err != nil {
		return nil, o.fail(emit, StageReceived, "", err)
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.New().String()
	}

	unlock := o.lockChat(chatID)
	defer unlock()

	sess, err := o.loadOrCreateSession(ctx, chatID, req)
	if err != nil {
		return nil, o.fail(emit, StageReceived, "", err)
	}

	history := append([]models.ChatMessage(nil), sess.Messages...)

	now := time.Now().UTC()
	sess.Messages = append(sess.Messages, models.ChatMessage{
		Role:      models.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	})
	sess.UpdatedAt = now
	if err := o.meta.SaveChat(ctx, sess); err != nil {
		return nil, o.fail(emit, StageReceived, "", err)
	}

	o.status(emit, StageClassifying)
	cls, err := o.agent.Classify(ctx, req.Message, history, rec)
	if err != nil {
		return nil, o.fail(emit, StageClassifying, "", err)
	}
	if cls.Fallback {
		o.log.Warn("classification fallback in effect", "chat_id", chatID)
	}

	assistant := models.ChatMessage{Role: models.RoleAssistant}
	suggest := true

	switch cls.Intent {
	case agent.IntentMeaningless:
		assistant.Content = meaninglessAnswer
		suggest = false

	case agent.IntentMetadata:
		o.status(emit, StageMetadata)
		assistant.Content = o.agent.MetadataAnswer(rec)

	default:
		o.status(emit, StageSQLGen)
		query, err := o.agent.GenerateSQL(ctx, req.Message, history, rec)
		if err != nil {
			return nil, o.fail(emit, StageSQLGen, "", err)
		}

		o.status(emit, StageExecuting)
		res, err := o.eng.Execute(ctx, rec, query)
		if err != nil {
			return nil, o.fail(emit, StageExecuting, query, err)
		}

		o.status(emit, StageSynthesizing)
		answer, err := o.agent.SynthesizeAnswer(ctx, req.Message, query, res)
		if err != nil {
			return nil, o.fail(emit, StageSynthesizing, query, err)
		}

		assistant.Content = answer
		assistant.SQLQuery = query
		assistant.Chart = agent.BuildChart(res, rec, req.Message)
	}

	var questions []string
	if suggest {
		o.status(emit, StageSuggesting)
		if questions, err = o.sugg.Suggest(ctx, rec, false); err != nil {
			o.log.Warn("suggestion generation failed", "chat_id", chatID, "error", err)
			questions = nil
		}
	}

	assistant.Timestamp = time.Now().UTC()
	sess.Messages = append(sess.Messages, assistant)
	sess.UpdatedAt = assistant.Timestamp
	if err := o.meta.SaveChat(ctx, sess); err != nil {
		return nil, o.fail(emit, StagePersisted, assistant.SQLQuery, err)
	}

	emit(Event{
		Type:               "complete",
		ChatID:             chatID,
		Message:            assistant,
		SuggestedQuestions: questions,
	})

	return &models.ChatResponse{
		ChatID:             chatID,
		Message:            assistant,
		SuggestedQuestions: questions,
	}, nil
}

// GenerateQuery exposes SQL synthesis without execution, for the query
// workbench's ai-assist endpoint.
func (o *Orchestrator) GenerateQuery(ctx context.Context, fileID, prompt string) (string, error) {
	rec, err := o.meta.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return o.agent.GenerateSQL(ctx, prompt, nil, rec)
}

func (o *Orchestrator) loadOrCreateSession(ctx context.Context, chatID string, req models.ChatRequest) (*models.ChatSession, error) {
	sess, err := o.meta.GetChat(ctx, chatID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, metastore.ErrNotFound) {
		return nil, err
	}
	if req.ChatID != "" {
		// The caller referenced a session that no longer exists.
		return nil, err
	}

	now := time.Now().UTC()
	return &models.ChatSession{
		ChatID:    chatID,
		FileID:    req.FileID,
		Title:     deriveTitle(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func deriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) > chatTitleLimit {
		return string(runes[:chatTitleLimit])
	}
	return message
}

func (o *Orchestrator) lockChat(chatID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[chatID] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (o *Orchestrator) status(emit EmitFunc, stage string) {
	emit(Event{Type: "status", Stage: stage, Message: statusMessages[stage]})
}

// fail logs the failure, emits the terminal error event with any partial
// work attached, and returns err unchanged for the transport to map.
func (o *Orchestrator) fail(emit EmitFunc, stage, sqlQuery string, err error) error {
	o.log.Error("pipeline failed", "stage", stage, "error", err)
	emit(Event{
		Type:     "error",
		Stage:    stage,
		Message:  userFacingMessage(err),
		SQLQuery: sqlQuery,
	})
	return err
}

// userFacingMessage maps pipeline errors onto messages safe to show the
// user; anything unrecognized gets a generic line.
func userFacingMessage(err error) string {
	var genErr *agent.SQLGenerationError
	var synErr *engine.SyntaxError
	var toErr *engine.TimeoutError
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		return "요청한 파일이나 대화를 찾을 수 없습니다."
	case errors.As(err, &genErr):
		return "질문에 맞는 쿼리를 만들지 못했어요. 질문을 조금 바꿔서 다시 시도해 주세요."
	case errors.As(err, &synErr):
		return fmt.Sprintf("쿼리 실행에 실패했습니다: %s", synErr.Message)
	case errors.As(err, &toErr):
		return "조회 시간이 초과되었습니다. 조건을 좁혀서 다시 질문해 주세요."
	default:
		return "요청을 처리하는 중 문제가 발생했습니다. 잠시 후 다시 시도해 주세요."
	}
}
