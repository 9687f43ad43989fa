package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChartDataset is one numeric series of a chart payload.
type ChartDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
	// Type is set per-dataset only for combo charts ("bar" or "line").
	Type string `json:"type,omitempty"`
}

// ChartPayload is the structured chart data attached to an assistant message.
type ChartPayload struct {
	ChartType string         `json:"chart_type"` // pie | area | line | combo | bar
	Labels    []string       `json:"labels"`
	Datasets  []ChartDataset `json:"datasets"`
}

// ChatMessage is a single turn in a chat session. Messages are append-only.
type ChatMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	SQLQuery  string        `json:"sql_query,omitempty"`
	Chart     *ChartPayload `json:"chart_payload,omitempty"`
}

// ChatSession holds one conversation about one file. The file reference is
// weak: the file may be deleted while the session remains readable.
type ChatSession struct {
	ChatID    string        `json:"chat_id"`
	FileID    string        `json:"file_id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ChatSummary is the list-view projection of a session (no message bodies).
type ChatSummary struct {
	ChatID       string    `json:"chat_id"`
	FileID       string    `json:"file_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatRequest is the incoming chat-message request. ChatID is optional;
// when empty a new session is created lazily.
type ChatRequest struct {
	ChatID  string `json:"chat_id,omitempty"`
	FileID  string `json:"file_id"`
	Message string `json:"message"`
}

// ChatResponse is the terminal payload of a chat exchange.
type ChatResponse struct {
	ChatID             string      `json:"chat_id"`
	Message            ChatMessage `json:"message"`
	SuggestedQuestions []string    `json:"suggested_questions,omitempty"`
}

// SuggestionsRequest asks for follow-up question suggestions for a file.
type SuggestionsRequest struct {
	FileID   string `json:"file_id"`
	ForceNew bool   `json:"force_new"`
}

// SuggestionsResponse carries the generated suggestions.
type SuggestionsResponse struct {
	Questions []string `json:"questions"`
}
