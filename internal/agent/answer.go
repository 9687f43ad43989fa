package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/models"
)

const noDataAnswer = "조건에 맞는 데이터가 없습니다. 다른 조건으로 다시 질문해 보세요."

// answerSampleRows caps how many result rows are shown to the model.
const answerSampleRows = 10

// SynthesizeAnswer turns an executed result into prose. Zero-row results
// short-circuit to a fixed no-data answer without an LLM call.
func (a *Agent) SynthesizeAnswer(ctx context.Context, question, sqlQuery string, res *engine.Result) (string, error) {
	if res.TotalRows == 0 {
		return noDataAnswer, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	if sqlQuery != "" {
		fmt.Fprintf(&b, "Query semantics (do not mention): %s\n\n", sqlQuery)
	}
	fmt.Fprintf(&b, "Result (%d rows", res.TotalRows)
	if res.Truncated {
		b.WriteString(", truncated")
	}
	b.WriteString("):\n")
	b.WriteString(renderResultTable(res, answerSampleRows))

	answer, err := a.llm.Complete(ctx, answerSystemPrompt, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// MetadataAnswer answers schema questions directly from the record,
// without an LLM call.
func (a *Agent) MetadataAnswer(rec *models.FileRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 파일에는 %d개의 행과 %d개의 컬럼이 있습니다.\n\n컬럼 목록:\n",
		rec.Filename, rec.RowCount, len(rec.Columns))
	for _, col := range rec.Columns {
		fmt.Fprintf(&b, "- %s (%s)\n", col.Name, koreanTypeName(col.Type))
	}
	return strings.TrimRight(b.String(), "\n")
}

func koreanTypeName(t models.ColumnType) string {
	switch t {
	case models.ColumnTypeInteger:
		return "정수"
	case models.ColumnTypeFloat:
		return "실수"
	case models.ColumnTypeDate:
		return "날짜"
	case models.ColumnTypeDatetime:
		return "날짜시간"
	case models.ColumnTypeBoolean:
		return "참/거짓"
	default:
		return "문자"
	}
}

// renderResultTable renders up to limit rows as a compact text table.
func renderResultTable(res *engine.Result, limit int) string {
	var b strings.Builder
	b.WriteString(strings.Join(res.Columns, " | "))
	b.WriteString("\n")

	n := len(res.Rows)
	if n > limit {
		n = limit
	}
	for _, row := range res.Rows[:n] {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(res.Rows) > n {
		fmt.Fprintf(&b, "... and %d more rows\n", len(res.Rows)-n)
	}
	return b.String()
}
