package oracle

import (
	"context"
	"sync"
	"time"
)

// Reply is one canned oracle answer.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Scripted replays canned replies in order; the last one repeats.
// It stands in for a model in tests.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	prompts []string
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	var r Reply
	if len(s.replies) > 0 {
		idx := s.next
		if idx >= len(s.replies) {
			idx = len(s.replies) - 1
		} else {
			s.next++
		}
		r = s.replies[idx]
	}
	s.mu.Unlock()

	return bounded(ctx, timeout, func(ctx context.Context) (string, error) {
		if r.Delay > 0 {
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return r.Text, r.Err
	})
}

// Prompts returns every prompt seen so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Calls returns how many times Generate ran.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}
