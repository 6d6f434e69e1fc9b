package engine

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Registry holds the live worker handles keyed by sanitized item name. It
// never holds two live handles for one key.
type Registry struct {
	mu      sync.Mutex
	procs   map[string]*Process
	timeout time.Duration
}

func NewRegistry(killTimeout time.Duration) *Registry {
	return &Registry{procs: map[string]*Process{}, timeout: killTimeout}
}

// Insert stores p under its item. A live handle already under that key is
// killed and waited for first, so it is never orphaned.
func (r *Registry) Insert(ctx context.Context, p *Process) error {
	for {
		r.mu.Lock()
		prev, ok := r.procs[p.Item]
		if !ok || prev == p || prev.Exited() {
			r.procs[p.Item] = p
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		prev.Kill()
		if err := prev.WaitExit(ctx, r.timeout); err != nil {
			return err
		}
		r.mu.Lock()
		if r.procs[p.Item] == prev {
			delete(r.procs, p.Item)
		}
		r.mu.Unlock()
	}
}

// Evict kills the live handle registered for item, waits for it to exit
// and drops it. It returns whether a live handle was evicted.
func (r *Registry) Evict(ctx context.Context, item string) (bool, error) {
	r.mu.Lock()
	prev, ok := r.procs[item]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	live := !prev.Exited()
	if live {
		prev.Kill()
		if err := prev.WaitExit(ctx, r.timeout); err != nil {
			return false, err
		}
	}
	r.Remove(item, prev)
	return live, nil
}

// Remove deletes the entry for item only if it still points at p.
func (r *Registry) Remove(item string, p *Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.procs[item] != p {
		return false
	}
	delete(r.procs, item)
	return true
}

// Take removes and returns the handle for item.
func (r *Registry) Take(item string) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[item]
	if ok {
		delete(r.procs, item)
	}
	return p, ok
}

func (r *Registry) Lookup(item string) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[item]
	return p, ok
}

// Items lists registered keys in sorted order.
func (r *Registry) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]string, 0, len(r.procs))
	for item := range r.procs {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}
