package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hypersignal/backend/internal/config"
	"github.com/hypersignal/backend/internal/metastore"
	"github.com/hypersignal/backend/internal/models"
)

// shownTTL bounds how long a file's last-shown suggestion set is
// remembered for force_new exclusion.
const shownTTL = 30 * time.Minute

// Suggester produces follow-up questions for a file. Generated questions
// accumulate in a per-file pool in the metadata store; serving draws a
// random subset, and force_new serves a set disjoint from the previous
// one when the pool allows it.
type Suggester struct {
	meta  metastore.Store
	llm   LLMClient
	cfg   config.AgentConfig
	log   *slog.Logger
	shown *ttlcache.Cache[string, []string]
}

// NewSuggester creates a Suggester.
func NewSuggester(meta metastore.Store, llm LLMClient, cfg config.AgentConfig, log *slog.Logger) *Suggester {
	shown := ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](shownTTL),
	)
	go shown.Start()
	return &Suggester{meta: meta, llm: llm, cfg: cfg, log: log.With("component", "suggest"), shown: shown}
}

// Close stops the shown-set janitor.
func (s *Suggester) Close() {
	s.shown.Stop()
	s.shown.DeleteAll()
}

// Suggest returns up to the configured number of questions for rec.
// forceNew excludes the set served last time for this file. LLM failure
// degrades to schema-derived canned questions, never to an error.
func (s *Suggester) Suggest(ctx context.Context, rec *models.FileRecord, forceNew bool) ([]string, error) {
	pool, err := s.meta.GetSuggestions(ctx, rec.FileID)
	if err != nil {
		return nil, err
	}

	exclude := make(map[string]struct{})
	if forceNew {
		if item := s.shown.Get(rec.FileID); item != nil {
			for _, q := range item.Value() {
				exclude[q] = struct{}{}
			}
		}
	}

	candidates := filterOut(pool, exclude)
	if len(candidates) < s.cfg.MaxSuggestions {
		generated := s.generate(ctx, rec, pool)
		added := false
		for _, q := range generated {
			if !containsQuestion(pool, q) {
				pool = append(pool, q)
				added = true
			}
		}
		if added {
			if err := s.meta.SaveSuggestions(ctx, rec.FileID, pool); err != nil {
				s.log.Warn("failed to persist suggestion pool", "file_id", rec.FileID, "error", err)
			}
		}
		candidates = filterOut(pool, exclude)
		if len(candidates) == 0 {
			// The pool cannot satisfy disjointness; reuse it rather than
			// returning nothing.
			candidates = pool
		}
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > s.cfg.MaxSuggestions {
		candidates = candidates[:s.cfg.MaxSuggestions]
	}

	s.shown.Set(rec.FileID, append([]string(nil), candidates...), ttlcache.DefaultTTL)
	return candidates, nil
}

// generate asks the LLM for fresh questions, falling back to canned
// schema-derived ones on any failure.
func (s *Suggester) generate(ctx context.Context, rec *models.FileRecord, existing []string) []string {
	var b strings.Builder
	b.WriteString(SchemaSummary(rec))
	if len(existing) > 0 {
		b.WriteString("\nAlready suggested (do not repeat):\n")
		for _, q := range existing {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	fmt.Fprintf(&b, "\nPropose %d new questions.", s.cfg.MaxSuggestions*2)

	response, err := s.llm.Complete(ctx, suggestSystemPrompt, b.String())
	if err != nil {
		s.log.Warn("suggestion generation failed, using canned questions", "error", err)
		return cannedQuestions(rec)
	}

	var questions []string
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &questions); err != nil {
		s.log.Warn("suggestion output unparseable, using canned questions", "error", err)
		return cannedQuestions(rec)
	}

	out := questions[:0]
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

// cannedQuestions derives generic but schema-aware questions so the
// feature still works without a reachable LLM.
func cannedQuestions(rec *models.FileRecord) []string {
	questions := []string{
		"전체 데이터를 요약해 줘",
		"상위 10개 행을 보여줘",
	}
	for _, col := range rec.Columns {
		switch {
		case col.Type.IsNumeric():
			questions = append(questions,
				fmt.Sprintf("%s의 평균은 얼마야?", col.Name),
				fmt.Sprintf("%s이 가장 큰 행은 뭐야?", col.Name))
		case col.Type.IsTemporal():
			questions = append(questions,
				fmt.Sprintf("%s 기준으로 추이를 보여줘", col.Name))
		case col.Type == models.ColumnTypeString:
			questions = append(questions,
				fmt.Sprintf("%s별로 몇 건씩 있어?", col.Name))
		}
	}
	return questions
}

func filterOut(pool []string, exclude map[string]struct{}) []string {
	out := make([]string, 0, len(pool))
	for _, q := range pool {
		if _, skip := exclude[q]; !skip {
			out = append(out, q)
		}
	}
	return out
}

func containsQuestion(pool []string, q string) bool {
	for _, p := range pool {
		if p == q {
			return true
		}
	}
	return false
}
