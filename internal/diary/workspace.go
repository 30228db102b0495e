// Package diary keeps one client's diary state consistent: the identity it
// is bound to, the live entry list and the draft being edited.
package diary

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mydiary/internal/metrics"
	"mydiary/internal/models"
	"mydiary/internal/store"
)

// EntryStore is the document store a workspace reads and writes.
type EntryStore interface {
	Create(ctx context.Context, doc models.Entry) (string, error)
	DeleteByID(ctx context.Context, ownerID, id string) error
	Subscribe(ctx context.Context, q store.Query) (*store.Subscription, error)
}

// SessionProvider reports identity changes; Subscribe must call onChange
// with the current identity before returning.
type SessionProvider interface {
	Subscribe(onChange func(*models.Identity)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

type Options struct {
	ID           string
	Clock        func() time.Time
	WriteTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

const defaultWriteTimeout = 15 * time.Second

// Workspace serialises every state change through one goroutine. Commands,
// identity changes and snapshots all arrive there as messages; store writes
// run on the caller's goroutine and report back when acknowledged.
type Workspace struct {
	id           string
	store        EntryStore
	session      SessionProvider
	clock        func() time.Time
	writeTimeout time.Duration
	log          *zap.Logger
	metrics      *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
	unbind    func()

	// Owned by the loop goroutine.
	gate       Gate
	identity   *models.Identity
	sub        *store.Subscription
	stale      bool
	projection Projection
	draft      models.Entry
	overlay    bool
	pending    int
	version    uint64
	watchers   map[chan View]struct{}
}

func New(st EntryStore, sess SessionProvider, opts Options) *Workspace {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		id:           opts.ID,
		store:        st,
		session:      sess,
		clock:        opts.Clock,
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger.Named("workspace").With(zap.String("workspace_id", opts.ID)),
		metrics:      opts.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		inbox:        make(chan func()),
		done:         make(chan struct{}),
		gate:         GateLoading,
		projection:   NewProjection(),
		draft:        EmptyDraft(),
		watchers:     make(map[chan View]struct{}),
	}
	go w.run()
	w.metrics.WorkspaceOpened()
	w.unbind = sess.Subscribe(w.onIdentity)
	return w
}

func (w *Workspace) ID() string { return w.id }

// Closed reports whether Close has been called.
func (w *Workspace) Closed() bool { return w.ctx.Err() != nil }

// Session is the identity source the workspace is bound to.
func (w *Workspace) Session() SessionProvider { return w.session }

// Close releases the live query and stops the loop. Writes already in
// flight still reach the store.
func (w *Workspace) Close() {
	w.closeOnce.Do(func() {
		w.unbind()
		w.cancel()
		<-w.done
		w.metrics.WorkspaceClosed()
	})
}

func (w *Workspace) run() {
	defer close(w.done)
	for {
		var updates <-chan store.Snapshot
		if w.sub != nil {
			updates = w.sub.Snapshots()
		}
		select {
		case <-w.ctx.Done():
			w.release()
			for ch := range w.watchers {
				close(ch)
			}
			w.watchers = nil
			return
		case fn := <-w.inbox:
			fn()
		case snap, ok := <-updates:
			if !ok {
				// The list keeps its last snapshot until the next identity
				// event subscribes again.
				w.log.Warn("live query ended")
				w.release()
				w.stale = true
				w.touch()
				continue
			}
			w.applySnapshot(snap)
		}
	}
}

// post hands fn to the loop. It fails only if ctx ends first or the workspace is closed.
func (w *Workspace) post(ctx context.Context, fn func()) error {
	select {
	case w.inbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrClosed
	}
}

// exec runs fn on the loop and returns its result.
func (w *Workspace) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	if err := w.post(ctx, func() { errc <- fn() }); err != nil {
		return err
	}
	return <-errc
}

func (w *Workspace) onIdentity(id *models.Identity) {
	_ = w.post(context.Background(), func() { w.bind(id) })
}

// bind keeps exactly one live query, for the current identity. The old
// subscription is closed, and can deliver nothing more, before a new one opens.
// An event for the current identity opens a new one if the last has ended.
func (w *Workspace) bind(id *models.Identity) {
	defer w.touch()
	switch {
	case id == nil:
		w.release()
		w.projection.Clear()
		if w.identity != nil {
			w.draft = EmptyDraft()
		}
		w.identity = nil
		w.stale = false
		w.gate = GateSignedOut
	case w.identity != nil && w.identity.ID == id.ID && w.sub != nil:
		w.identity = id
	default:
		w.release()
		w.projection.Clear()
		w.identity = id
		w.gate = GateSignedIn
		sub, err := w.store.Subscribe(w.ctx, store.Query{OwnerID: id.ID})
		if err != nil {
			w.log.Error("subscribe to entries failed", zap.String("owner", id.ID), zap.Error(err))
			w.stale = true
			return
		}
		w.sub = sub
		w.stale = false
	}
}

func (w *Workspace) release() {
	if w.sub != nil {
		w.sub.Close()
		w.sub = nil
	}
}

func (w *Workspace) applySnapshot(snap store.Snapshot) {
	if w.identity == nil {
		return
	}
	entries := make([]models.Entry, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		if e.OwnerID != w.identity.ID {
			w.log.Warn("dropping foreign entry from snapshot", zap.String("entry_id", e.ID))
			continue
		}
		entries = append(entries, e)
	}
	w.projection.Replace(entries)
	w.metrics.SnapshotApplied()
	w.touch()
}

// touch bumps the version and hands the new view to every watcher,
// replacing any view a slow watcher has not picked up yet.
func (w *Workspace) touch() {
	w.version++
	if len(w.watchers) == 0 {
		return
	}
	v := w.view()
	for ch := range w.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func (w *Workspace) view() View {
	v := View{
		Gate:        w.gate,
		Tab:         w.projection.Tab(),
		OverlayOpen: w.overlay,
		Busy:        w.pending > 0,
		Stale:       w.stale,
		Version:     w.version,
	}
	if w.identity != nil {
		cp := *w.identity
		v.Identity = &cp
	}
	if w.gate == GateSignedIn {
		v.Entries = w.projection.Displayed()
		v.Total = w.projection.Len()
		v.Draft = w.draft.Clone()
	}
	return v
}

func (w *Workspace) View(ctx context.Context) (View, error) {
	var v View
	err := w.exec(ctx, func() error {
		v = w.view()
		return nil
	})
	return v, err
}

// Draft returns the draft whatever the gate.
func (w *Workspace) Draft(ctx context.Context) (models.Entry, error) {
	var d models.Entry
	err := w.exec(ctx, func() error {
		d = w.draft.Clone()
		return nil
	})
	return d, err
}

// Watch streams a view after every change, starting with the current one.
// The channel is closed when ctx ends or the workspace closes.
func (w *Workspace) Watch(ctx context.Context) (<-chan View, error) {
	ch := make(chan View, 1)
	err := w.exec(ctx, func() error {
		w.watchers[ch] = struct{}{}
		ch <- w.view()
		return nil
	})
	if err != nil {
		return nil, err
	}
	context.AfterFunc(ctx, func() {
		_ = w.post(context.Background(), func() {
			if _, ok := w.watchers[ch]; ok {
				delete(w.watchers, ch)
				close(ch)
			}
		})
	})
	return ch, nil
}

func (w *Workspace) UpdateField(ctx context.Context, name string, value any) error {
	return w.exec(ctx, func() error {
		if err := setField(&w.draft, name, value); err != nil {
			return err
		}
		w.touch()
		return nil
	})
}

func (w *Workspace) AddImage(ctx context.Context, d models.Descriptor) error {
	return w.exec(ctx, func() error {
		w.draft.Images = append(w.draft.Images, d)
		w.touch()
		return nil
	})
}

func (w *Workspace) RemoveImage(ctx context.Context, id string) error {
	return w.exec(ctx, func() error {
		w.draft.Images = removeDescriptor(w.draft.Images, id)
		w.touch()
		return nil
	})
}

func (w *Workspace) AddAttachment(ctx context.Context, d models.Descriptor) error {
	return w.exec(ctx, func() error {
		w.draft.Attachments = append(w.draft.Attachments, d)
		w.touch()
		return nil
	})
}

func (w *Workspace) RemoveAttachment(ctx context.Context, id string) error {
	return w.exec(ctx, func() error {
		w.draft.Attachments = removeDescriptor(w.draft.Attachments, id)
		w.touch()
		return nil
	})
}

// SelectEntry opens a persisted entry in the draft and closes the overlay.
func (w *Workspace) SelectEntry(ctx context.Context, e models.Entry) error {
	return w.exec(ctx, func() error {
		w.draft = selected(e)
		w.overlay = false
		w.touch()
		return nil
	})
}

// SelectByID selects an entry of the current list.
func (w *Workspace) SelectByID(ctx context.Context, id string) error {
	return w.exec(ctx, func() error {
		e, ok := w.projection.Find(id)
		if !ok {
			return ErrNotFound
		}
		w.draft = selected(e)
		w.overlay = false
		w.touch()
		return nil
	})
}

func (w *Workspace) SetTab(ctx context.Context, t models.Tab) error {
	return w.exec(ctx, func() error {
		if err := w.projection.SetTab(t); err != nil {
			return err
		}
		w.touch()
		return nil
	})
}

// SetOverlay opens or closes the mobile entry list overlay.
func (w *Workspace) SetOverlay(ctx context.Context, open bool) error {
	return w.exec(ctx, func() error {
		w.overlay = open
		w.touch()
		return nil
	})
}

// Save creates a new entry from the draft and empties the draft once the
// store acknowledges. On failure the draft is left exactly as it was.
func (w *Workspace) Save(ctx context.Context) (string, error) {
	var doc models.Entry
	err := w.exec(ctx, func() error {
		d, err := document(w.draft, w.identity, w.clock())
		if err != nil {
			return err
		}
		doc = d
		w.pending++
		w.touch()
		return nil
	})
	if err != nil {
		return "", err
	}

	wctx, cancel := w.writeContext(ctx)
	id, err := w.store.Create(wctx, doc)
	cancel()
	w.metrics.StoreWrite("create", err)
	if err != nil {
		w.log.Error("save entry failed", zap.String("owner", doc.OwnerID), zap.Error(err))
		err = &StoreError{Op: "create", Err: err}
	} else {
		w.log.Info("entry saved", zap.String("entry_id", id))
	}

	failed := err != nil
	_ = w.post(context.Background(), func() {
		w.pending--
		if !failed {
			w.draft = EmptyDraft()
		}
		w.touch()
	})
	return id, err
}

// Delete removes an entry. The list changes only when the store pushes the
// next snapshot; the draft is emptied if it shows the deleted entry.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	var owner string
	err := w.exec(ctx, func() error {
		if w.identity == nil {
			return ErrNotSignedIn
		}
		owner = w.identity.ID
		w.pending++
		w.touch()
		return nil
	})
	if err != nil {
		return err
	}

	wctx, cancel := w.writeContext(ctx)
	err = w.store.DeleteByID(wctx, owner, id)
	cancel()
	w.metrics.StoreWrite("delete", err)
	if err != nil {
		w.log.Error("delete entry failed", zap.String("entry_id", id), zap.Error(err))
		err = &StoreError{Op: "delete", Err: err}
	}

	failed := err != nil
	_ = w.post(context.Background(), func() {
		w.pending--
		if !failed && w.draft.ID == id {
			w.draft = EmptyDraft()
		}
		w.touch()
	})
	return err
}

// Logout signs the session out; the identity change unbinds the list.
func (w *Workspace) Logout(ctx context.Context) error {
	if err := w.session.SignOut(ctx); err != nil {
		w.log.Error("sign out failed", zap.Error(err))
		return err
	}
	return nil
}

// writeContext detaches the write from the caller so a vanished client does
// not abort it halfway.
func (w *Workspace) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
}
