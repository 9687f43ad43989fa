package agent

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/models"
	"github.com/hypersignal/backend/internal/testutil"
)

func testRecord() *models.FileRecord {
	return &models.FileRecord{
		FileID:   "f1",
		Filename: "sales.csv",
		RowCount: 100,
		Columns: []models.ColumnInfo{
			{Name: "date", Type: models.ColumnTypeDate},
			{Name: "region", Type: models.ColumnTypeString, SampleValues: []string{"서울", "부산"}},
			{Name: "amount", Type: models.ColumnTypeFloat, Nullable: true},
		},
	}
}

func newTestAgent(llm LLMClient) *Agent {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(llm, config.Default().Agent, log)
}

func TestClassifyPreChecks(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	a := newTestAgent(llm)

	for _, msg := range []string{"", "   ", "ㅋㅋㅋ", "ㅎ", "ㅏㅏㅏ", "a"} {
		c, err := a.Classify(context.Background(), msg, nil, testRecord())
		require.NoError(t, err, msg)
		assert.Equal(t, IntentMeaningless, c.Intent, msg)
	}
	// None of these should cost an LLM call.
	assert.Equal(t, 0, llm.CallCount())
}

func TestClassifyIntents(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Intent
	}{
		{"data query", `{"intent": "data_query"}`, IntentDataQuery},
		{"metadata", `{"intent": "metadata_question"}`, IntentMetadata},
		{"meaningless", `{"intent": "meaningless"}`, IntentMeaningless},
		{"fenced json", "```json\n{\"intent\": \"data_query\"}\n```", IntentDataQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAgent(testutil.NewScriptedLLM(tt.response))
			c, err := a.Classify(context.Background(), "지역별 매출 알려줘", nil, testRecord())
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Intent)
			assert.False(t, c.Fallback)
		})
	}
}

func TestClassifyRetriesThenFallsBack(t *testing.T) {
	llm := testutil.NewScriptedLLM("not json at all", "still not json")
	a := newTestAgent(llm)

	c, err := a.Classify(context.Background(), "지역별 매출 알려줘", nil, testRecord())
	require.NoError(t, err)
	assert.Equal(t, IntentDataQuery, c.Intent)
	assert.True(t, c.Fallback)
	assert.Equal(t, 2, llm.CallCount())
}

func TestClassifyRecoversOnRetry(t *testing.T) {
	llm := testutil.NewScriptedLLM("garbage", `{"intent": "metadata_question"}`)
	a := newTestAgent(llm)

	c, err := a.Classify(context.Background(), "컬럼이 뭐야?", nil, testRecord())
	require.NoError(t, err)
	assert.Equal(t, IntentMetadata, c.Intent)
	assert.False(t, c.Fallback)
}

func TestClassifyPropagatesAPIError(t *testing.T) {
	llm := testutil.NewScriptedLLM()
	llm.Err = context.DeadlineExceeded
	a := newTestAgent(llm)

	_, err := a.Classify(context.Background(), "지역별 매출 알려줘", nil, testRecord())
	require.Error(t, err)
}
