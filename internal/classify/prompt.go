package classify

import (
	"context"
	"sync"
)

// ReauthPrompt is an observable "please sign in again" flag.
type ReauthPrompt struct {
	mu        sync.Mutex
	requested bool
	subs      map[int]func(bool)
	nextID    int
}

// NewReauthPrompt returns a cleared prompt.
func NewReauthPrompt() *ReauthPrompt {
	return &ReauthPrompt{subs: make(map[int]func(bool))}
}

// RequestReauthentication implements Prompter.
func (p *ReauthPrompt) RequestReauthentication(context.Context) {
	p.set(true)
}

// Resolve clears the prompt after the user has signed in or given up.
func (p *ReauthPrompt) Resolve() {
	p.set(false)
}

// Requested reports whether the prompt is raised.
func (p *ReauthPrompt) Requested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requested
}

// Subscribe calls fn whenever the flag changes. The returned func
// unsubscribes.
func (p *ReauthPrompt) Subscribe(fn func(requested bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *ReauthPrompt) set(v bool) {
	p.mu.Lock()
	if p.requested == v {
		p.mu.Unlock()
		return
	}
	p.requested = v
	fns := make([]func(bool), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
