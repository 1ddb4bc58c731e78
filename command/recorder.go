package command

import (
	"context"
	"sync"
)

// Recorder is a Runner that records invocations instead of spawning processes.
// Handler, when set, decides the outcome of each call.
type Recorder struct {
	Handler func(ctx context.Context, cmd Command) (*Result, error)

	mu    sync.Mutex
	calls []Command
}

// Run records cmd and delegates to Handler
func (r *Recorder) Run(ctx context.Context, cmd Command) (*Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Handler != nil {
		return r.Handler(ctx, cmd)
	}
	return &Result{}, nil
}

// Calls returns a copy of the recorded commands in call order
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded commands whose Name matches
func (r *Recorder) CallsTo(name string) []Command {
	var out []Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
