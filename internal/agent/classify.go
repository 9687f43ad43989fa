package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/models"
)

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentMeaningless Intent = "meaningless"
	IntentMetadata    Intent = "metadata_question"
	IntentDataQuery   Intent = "data_query"
)

// Classification is the classifier outcome. Fallback marks a soft
// failure where malformed model output defaulted to data_query.
type Classification struct {
	Intent   Intent `json:"intent"`
	Fallback bool   `json:"-"`
}

// Agent runs the LLM pipeline stages against one client.
type Agent struct {
	llm LLMClient
	cfg config.AgentConfig
	log *slog.Logger
}

// New creates an Agent.
func New(llm LLMClient, cfg config.AgentConfig, log *slog.Logger) *Agent {
	return &Agent{llm: llm, cfg: cfg, log: log.With("component", "agent")}
}

// Classify determines the intent of message. Trivial inputs short-circuit
// without an LLM call. Malformed model output is retried once, then
// defaults to data_query so the user still gets an attempt at an answer.
func (a *Agent) Classify(ctx context.Context, message string, history []models.ChatMessage, rec *models.FileRecord) (*Classification, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" || utf8.RuneCountInString(trimmed) <= 1 || isJamoOnly(trimmed) {
		return &Classification{Intent: IntentMeaningless}, nil
	}

	userPrompt := fmt.Sprintf("%s%s\nMessage to classify: %s",
		historySummary(history, a.cfg.HistoryWindow), SchemaSummary(rec), trimmed)

	for attempt := 0; attempt < 2; attempt++ {
		response, err := a.llm.Complete(ctx, classifySystemPrompt, userPrompt)
		if err != nil {
			return nil, err
		}
		if intent, ok := parseIntent(response); ok {
			return &Classification{Intent: intent}, nil
		}
		a.log.Warn("classifier returned malformed output", "attempt", attempt+1, "response", truncate(response, 200))
	}

	a.log.Warn("classification fell back to data_query", "message", truncate(trimmed, 100))
	return &Classification{Intent: IntentDataQuery, Fallback: true}, nil
}

func parseIntent(response string) (Intent, bool) {
	var parsed struct {
		Intent Intent `json:"intent"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &parsed); err != nil {
		return "", false
	}
	switch parsed.Intent {
	case IntentMeaningless, IntentMetadata, IntentDataQuery:
		return parsed.Intent, true
	}
	return "", false
}

// isJamoOnly reports whether s consists entirely of unsyllabified Hangul
// jamo (ㅋㅋ, ㅎㅇ and the like), which never form a real question.
func isJamoOnly(s string) bool {
	for _, r := range s {
		if r == ' ' {
			continue
		}
		inCompat := r >= 0x3131 && r <= 0x318E
		inJamo := r >= 0x1100 && r <= 0x11FF
		if !inCompat && !inJamo {
			return false
		}
	}
	return true
}

// stripCodeFence removes a surrounding markdown code block, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 3 {
		return s
	}
	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:end], "\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
