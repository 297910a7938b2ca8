// Package registry is the single source of truth for account-session
// bindings and their live window handles.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hbeckert/concierge/internal/browser"
	"github.com/hbeckert/concierge/internal/models"
	"github.com/hbeckert/concierge/internal/store"
	"github.com/rs/zerolog"
)

// ErrNotFound means an operation referenced an account id with no binding.
var ErrNotFound = errors.New("registry: account not found")

// ErrAlreadyOpen guards the one-live-window-per-account invariant at the
// lowest level. Callers normally check before attaching and degrade to focus.
var ErrAlreadyOpen = errors.New("registry: window already open")

// Purger clears an account's storage partition. Implemented by the window
// supervisor.
type Purger interface {
	Purge(partitionKey string) error
}

// Handle is the supervising process's live window state for one binding. The
// registry holds at most one per account id.
type Handle struct {
	Surface  browser.Surface
	Title    string
	URL      string
	Focused  bool
	Seq      uint64 // creation order, stable for tab cycling
	OpenedAt time.Time
}

// OpenSession is a snapshot of one open window for read models.
type OpenSession struct {
	Binding models.AccountBinding
	Title   string
	URL     string
	Focused bool
	Seq     uint64
}

// Registry maps account ids to bindings and live handles. All mutations are
// serialized under one mutex; persistence happens synchronously before a
// mutation returns.
type Registry struct {
	store  *store.Store
	log    zerolog.Logger
	purger Purger

	mu        sync.Mutex
	bindings  map[string]models.AccountBinding
	handles   map[string]*Handle
	seq       uint64
	listeners []func()
}

// New loads the persisted bindings and returns a ready registry. Called once
// at startup, before any window is opened.
func New(st *store.Store, log zerolog.Logger) (*Registry, error) {
	persisted, err := st.ListBindings()
	if err != nil {
		return nil, fmt.Errorf("registry: load: %w", err)
	}
	bindings := make(map[string]models.AccountBinding, len(persisted))
	for _, b := range persisted {
		bindings[b.ID] = b
	}
	return &Registry{
		store:    st,
		log:      log,
		bindings: bindings,
		handles:  make(map[string]*Handle),
	}, nil
}

// SetPurger wires the partition purger used on unregister.
func (r *Registry) SetPurger(p Purger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purger = p
}

// OnChange registers a listener invoked after every change to the open set or
// the read-model fields (title, focus, URL). Listeners run outside the
// registry lock and may call back into the registry.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notify() {
	r.mu.Lock()
	listeners := make([]func(), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Register upserts a binding and persists it before returning. The partition
// key of an existing binding is never replaced.
func (r *Registry) Register(b models.AccountBinding) error {
	if b.ID == "" {
		return fmt.Errorf("registry: register: id is required")
	}
	if !b.Platform.Valid() {
		return fmt.Errorf("registry: register: unknown platform %q", b.Platform)
	}
	if b.PartitionKey == "" {
		return fmt.Errorf("registry: register: partition key is required")
	}

	r.mu.Lock()
	if existing, ok := r.bindings[b.ID]; ok {
		b.PartitionKey = existing.PartitionKey
		b.CreatedAt = existing.CreatedAt
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()
	if err := r.store.UpsertBinding(b); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: register %s: %w", b.ID, err)
	}
	r.bindings[b.ID] = b
	_, open := r.handles[b.ID]
	r.mu.Unlock()

	if open {
		// The display name shows in the tab strip; refresh the read model.
		r.notify()
	}
	return nil
}

// Unregister closes the live window if open, purges the partition's storage
// (best-effort), removes the binding and persists. The store write commits
// before any in-memory state moves: a failed write leaves the binding and the
// live handle fully intact, so the window stays reachable and the persisted
// row cannot resurrect a half-removed account on restart. A failed purge is
// logged and does not block the removal.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	b, ok := r.bindings[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if err := r.store.DeleteBinding(id); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: unregister %s: %w", id, err)
	}
	var surface browser.Surface
	if h := r.handles[id]; h != nil {
		surface = h.Surface
		delete(r.handles, id)
	}
	delete(r.bindings, id)
	purger := r.purger
	r.mu.Unlock()

	if surface != nil {
		_ = surface.Close()
	}
	if purger != nil {
		if err := purger.Purge(b.PartitionKey); err != nil {
			r.log.Warn().Err(err).Str("account", id).Msg("partition purge failed")
		}
	}
	r.notify()
	return nil
}

// Mirror replaces the binding set with the backend's, closing windows of
// removed accounts and preserving the immutable partition keys of kept ones.
// The store write is a single wholesale rewrite.
func (r *Registry) Mirror(incoming []models.AccountBinding) error {
	r.mu.Lock()
	next := make(map[string]models.AccountBinding, len(incoming))
	for _, b := range incoming {
		if b.ID == "" || !b.Platform.Valid() {
			continue
		}
		if existing, ok := r.bindings[b.ID]; ok {
			b.PartitionKey = existing.PartitionKey
			b.CreatedAt = existing.CreatedAt
		}
		if b.PartitionKey == "" {
			b.PartitionKey = "acct-" + b.ID
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now()
		}
		b.UpdatedAt = time.Now()
		next[b.ID] = b
	}

	// Removals are only collected here; nothing is applied until the store
	// write commits, so a failed sync leaves every window attached.
	var removedIDs []string
	var purgeKeys []string
	for id, b := range r.bindings {
		if _, kept := next[id]; kept {
			continue
		}
		removedIDs = append(removedIDs, id)
		purgeKeys = append(purgeKeys, b.PartitionKey)
	}

	flat := make([]models.AccountBinding, 0, len(next))
	for _, b := range next {
		flat = append(flat, b)
	}
	if err := r.store.ReplaceBindings(flat); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: mirror: %w", err)
	}
	var closedSurfaces []browser.Surface
	for _, id := range removedIDs {
		if h := r.handles[id]; h != nil {
			closedSurfaces = append(closedSurfaces, h.Surface)
			delete(r.handles, id)
		}
	}
	r.bindings = next
	purger := r.purger
	r.mu.Unlock()

	for _, s := range closedSurfaces {
		_ = s.Close()
	}
	if purger != nil {
		for _, key := range purgeKeys {
			if err := purger.Purge(key); err != nil {
				r.log.Warn().Err(err).Str("partition", key).Msg("partition purge failed")
			}
		}
	}
	if len(closedSurfaces) > 0 || len(purgeKeys) > 0 {
		r.notify()
	}
	return nil
}

// Get returns the binding for id.
func (r *Registry) Get(id string) (models.AccountBinding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[id]
	return b, ok
}

// List returns all bindings sorted by creation time.
func (r *Registry) List() []models.AccountBinding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AccountBinding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Attach records the live window for id. Fails if a live handle already
// exists: at most one live window per account.
func (r *Registry) Attach(id string, s browser.Surface, url string) error {
	r.mu.Lock()
	b, ok := r.bindings[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if _, open := r.handles[id]; open {
		r.mu.Unlock()
		return ErrAlreadyOpen
	}
	r.seq++
	r.handles[id] = &Handle{
		Surface:  s,
		Title:    b.DisplayName,
		URL:      url,
		Seq:      r.seq,
		OpenedAt: time.Now(),
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// Detach clears the live handle for id. Idempotent; called synchronously on
// every destruction path so no registry entry outlives its window.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	_, open := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if open {
		r.notify()
	}
}

// SurfaceOf returns the live surface for id, if any.
func (r *Registry) SurfaceOf(id string) (browser.Surface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, false
	}
	return h.Surface, true
}

// IsOpen reports whether id has a live window.
func (r *Registry) IsOpen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

// ListOpen snapshots all open sessions in creation order.
func (r *Registry) ListOpen() []OpenSession {
	r.mu.Lock()
	out := make([]OpenSession, 0, len(r.handles))
	for id, h := range r.handles {
		out = append(out, OpenSession{
			Binding: r.bindings[id],
			Title:   h.Title,
			URL:     h.URL,
			Focused: h.Focused,
			Seq:     h.Seq,
		})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// UpdateTitle refreshes a live window's title in the read model.
func (r *Registry) UpdateTitle(id, title string) {
	r.mu.Lock()
	h, ok := r.handles[id]
	if ok && h.Title != title {
		h.Title = title
	} else {
		ok = false
	}
	r.mu.Unlock()
	if ok {
		r.notify()
	}
}

// UpdateURL tracks a live window's last-known navigated URL.
func (r *Registry) UpdateURL(id, url string) {
	r.mu.Lock()
	if h, ok := r.handles[id]; ok {
		h.URL = url
	}
	r.mu.Unlock()
}

// SetFocused marks id as the focused window and clears the flag elsewhere.
func (r *Registry) SetFocused(id string) {
	r.mu.Lock()
	changed := false
	for hid, h := range r.handles {
		want := hid == id
		if h.Focused != want {
			h.Focused = want
			changed = true
		}
	}
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}
