package llm

import (
	"context"
	"fmt"
	"sync"

	"cymbytes.com/cymlure/internal/generator/prompts"
)

// Reply is one scripted answer: raw text or an error.
type Reply struct {
	Text string
	Err  error
}

// Call records one Generate invocation.
type Call struct {
	Task   prompts.Task
	System string
	User   string
}

// ScriptedClient replays queued replies per task and records every call.
// When a task's queue is empty it delegates to Fallback, if set.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  map[prompts.Task][]Reply
	calls    []Call
	Fallback Client
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{replies: make(map[prompts.Task][]Reply)}
}

// Queue appends replies for a task.
func (s *ScriptedClient) Queue(task prompts.Task, replies ...Reply) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[task] = append(s.replies[task], replies...)
	return s
}

// Generate implements Client.
func (s *ScriptedClient) Generate(ctx context.Context, system, user string) (string, error) {
	task := prompts.TaskOf(system)

	s.mu.Lock()
	s.calls = append(s.calls, Call{Task: task, System: system, User: user})
	queue := s.replies[task]
	var r Reply
	ok := len(queue) > 0
	if ok {
		r = queue[0]
		s.replies[task] = queue[1:]
	}
	fallback := s.Fallback
	s.mu.Unlock()

	if !ok {
		if fallback != nil {
			return fallback.Generate(ctx, system, user)
		}
		return "", &TransportError{Provider: "scripted", Err: fmt.Errorf("no reply queued for %q", task)}
	}
	return r.Text, r.Err
}

// Calls returns the recorded calls.
func (s *ScriptedClient) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsFor counts calls for a task.
func (s *ScriptedClient) CallsFor(task prompts.Task) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Task == task {
			n++
		}
	}
	return n
}
