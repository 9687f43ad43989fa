package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/models"
)

// SQLGenerationError marks generation that still produced unusable SQL
// after the retry. LastOutput carries the final model output for
// diagnostics; nothing is ever executed from it.
type SQLGenerationError struct {
	Reason     string
	LastOutput string
}

func (e *SQLGenerationError) Error() string {
	return "sql generation failed: " + e.Reason
}

// GenerateSQL produces one validated SELECT statement for the question.
// An invalid first attempt is retried once with the validation error
// appended as a hint. The returned SQL has passed ValidateSQL but has
// not been executed.
func (a *Agent) GenerateSQL(ctx context.Context, question string, history []models.ChatMessage, rec *models.FileRecord) (string, error) {
	base := fmt.Sprintf("%s%s\nQuestion: %s",
		historySummary(history, a.cfg.HistoryWindow), SchemaSummary(rec), question)

	userPrompt := base
	var lastOutput, lastProblem string
	for attempt := 0; attempt < 2; attempt++ {
		response, err := a.llm.Complete(ctx, sqlSystemPrompt, userPrompt)
		if err != nil {
			return "", err
		}
		lastOutput = response

		query := ExtractSQL(response)
		if query == "" {
			lastProblem = "no SQL statement found in the output"
		} else if err := engine.ValidateSQL(query); err != nil {
			lastProblem = err.Error()
		} else {
			return query, nil
		}

		a.log.Warn("generated SQL rejected", "attempt", attempt+1, "problem", lastProblem)
		userPrompt = fmt.Sprintf("%s\n\nYour previous attempt was rejected: %s\nProduce a corrected single SELECT statement.", base, lastProblem)
	}

	return "", &SQLGenerationError{Reason: lastProblem, LastOutput: lastOutput}
}

// ExtractSQL pulls the SQL statement out of a model response: a ```sql
// fence if present, any ``` fence otherwise, else the raw text when it
// already looks like a statement.
func ExtractSQL(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```sql"); idx >= 0 {
		rest := response[idx+len("```sql"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if strings.HasPrefix(response, "```") {
		return strings.TrimSpace(stripCodeFence(response))
	}

	upper := strings.ToUpper(response)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return response
	}
	return ""
}
