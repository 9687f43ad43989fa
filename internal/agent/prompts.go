package agent

import (
	"fmt"
	"strings"

	"github.com/hypersignal/backend/internal/models"
)

const classifySystemPrompt = `You classify a user's message about an uploaded data file.
Respond with ONLY a JSON object: {"intent": "<intent>"}

Intents:
- "meaningless": greetings, gibberish, or messages unrelated to any data question.
- "metadata_question": questions about the file itself or its structure (column names, column types, row count, file size). These need no SQL.
- "data_query": questions whose answer requires reading or aggregating the data.

When unsure between metadata_question and data_query, choose data_query.`

const sqlSystemPrompt = `You write DuckDB SQL for a table named data.

Rules:
- Output exactly ONE SELECT statement inside a ` + "```sql" + ` code block.
- Query ONLY the table data. Never reference files, other tables, or catalogs.
- Use only the column names given in the schema, quoted with double quotes if they contain spaces or non-ASCII characters.
- Prefer aggregation with GROUP BY over returning raw rows when the question asks for totals, counts, averages, or rankings.
- Add ORDER BY where the question implies an ordering and LIMIT for top-N questions.
- Do not add explanations outside the code block.`

const answerSystemPrompt = `You explain query results to the user in plain language.

Rules:
- Answer in the same language the question was asked in.
- Be concise: a short paragraph, citing the concrete numbers from the results.
- Do not mention SQL, tables, or that a query was run.
- If the results were truncated, mention that only part of the data is shown.`

const suggestSystemPrompt = `You propose follow-up questions a user could ask about a data file.
Respond with ONLY a JSON array of question strings, in the same language as the column names suggest the data is in (use Korean when column names are Korean).
Each question must be answerable from the listed columns alone. Keep questions short and concrete.`

// SchemaSummary renders a FileRecord schema for inclusion in prompts.
func SchemaSummary(rec *models.FileRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s (%d rows)\nColumns:\n", rec.Filename, rec.RowCount)
	for _, col := range rec.Columns {
		fmt.Fprintf(&b, "- %s (%s", col.Name, col.Type)
		if col.Nullable {
			b.WriteString(", nullable")
		}
		b.WriteString(")")
		if len(col.SampleValues) > 0 {
			fmt.Fprintf(&b, " e.g. %s", strings.Join(col.SampleValues, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// historySummary renders the last window exchanges for prompt context.
// Assistant turns are truncated so history never dominates the budget.
func historySummary(history []models.ChatMessage, window int) string {
	if len(history) == 0 || window < 1 {
		return ""
	}
	start := len(history) - window*2
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, msg := range history[start:] {
		content := msg.Content
		if msg.Role == models.RoleAssistant {
			if len(content) > 500 {
				content = content[:500] + "..."
			}
			fmt.Fprintf(&b, "Assistant: %s\n", content)
			if msg.SQLQuery != "" {
				fmt.Fprintf(&b, "[SQL used: %s]\n", msg.SQLQuery)
			}
		} else {
			fmt.Fprintf(&b, "User: %s\n", content)
		}
	}
	b.WriteString("\n")
	return b.String()
}
