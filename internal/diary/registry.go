package diary

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Registry tracks open workspaces by id. A workspace untouched for the idle
// TTL is evicted and closed.
type Registry struct {
	c    *cache.Cache
	idle time.Duration
}

func NewRegistry(idle time.Duration) *Registry {
	c := cache.New(idle, idle/2)
	c.OnEvicted(func(_ string, v interface{}) {
		if w, ok := v.(*Workspace); ok {
			w.Close()
		}
	})
	return &Registry{c: c, idle: idle}
}

func (r *Registry) Add(w *Workspace) {
	r.c.SetDefault(w.ID(), w)
}

// Get returns the workspace and restarts its idle timer. An expired or
// closed workspace is never put back.
func (r *Registry) Get(id string) (*Workspace, bool) {
	v, ok := r.c.Get(id)
	if !ok {
		return nil, false
	}
	w := v.(*Workspace)
	if w.Closed() {
		r.c.Delete(id)
		return nil, false
	}
	// Replace fails if the janitor removed the item since the Get above.
	if err := r.c.Replace(id, w, cache.DefaultExpiration); err != nil {
		return nil, false
	}
	return w, true
}

// KeepAlive is how often a long-lived connection should call Get to hold
// its workspace open. Zero means workspaces never expire.
func (r *Registry) KeepAlive() time.Duration {
	if r.idle <= 0 {
		return 0
	}
	return r.idle / 3
}

// Remove closes the workspace.
func (r *Registry) Remove(id string) {
	r.c.Delete(id)
}

func (r *Registry) Len() int { return r.c.ItemCount() }

// CloseAll closes every workspace; used on shutdown.
func (r *Registry) CloseAll() {
	for id := range r.c.Items() {
		r.c.Delete(id)
	}
}
