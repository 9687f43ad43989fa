// llm.go - Scripted LLM client for testing
package testutil

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedLLM implements agent.LLMClient with a fixed response sequence.
// Calls past the end of the script return an error.
type ScriptedLLM struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Calls     []ScriptedCall
}

// ScriptedCall records the prompts of one Complete invocation.
type ScriptedCall struct {
	System string
	User   string
}

// NewScriptedLLM creates a client that replies with responses in order.
func NewScriptedLLM(responses ...string) *ScriptedLLM {
	return &ScriptedLLM{Responses: responses}
}

func (s *ScriptedLLM) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, ScriptedCall{System: systemPrompt, User: userPrompt})
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Calls) > len(s.Responses) {
		return "", fmt.Errorf("scripted LLM exhausted after %d responses", len(s.Responses))
	}
	return s.Responses[len(s.Calls)-1], nil
}

// CallCount returns how many times Complete was invoked.
func (s *ScriptedLLM) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
