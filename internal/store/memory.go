package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mydiary/internal/models"
)

type memoryDoc struct {
	entry models.Entry
	seq   uint64
}

// MemoryStore keeps entries in process. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]memoryDoc
	seq   uint64
	last  time.Time
	clock func() time.Time

	hub    *Hub
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewMemoryStore(log *zap.Logger) *MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryStore{
		docs:   make(map[string]memoryDoc),
		clock:  time.Now,
		hub:    NewHub(),
		log:    log.Named("memory_store"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Create stores a copy of doc under a fresh id. createdAt never goes backwards.
func (s *MemoryStore) Create(ctx context.Context, doc models.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.OwnerID == "" {
		return "", ErrMissingOwner
	}
	if s.ctx.Err() != nil {
		return "", ErrClosed
	}

	s.mu.Lock()
	e := doc.Clone()
	e.ID = uuid.NewString()
	now := s.clock()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	e.CreatedAt = now
	s.seq++
	s.docs[e.ID] = memoryDoc{entry: e, seq: s.seq}
	s.mu.Unlock()

	s.hub.Notify(e.OwnerID)
	return e.ID, nil
}

// DeleteByID removes the entry if it belongs to ownerID. Missing ids are not an error.
func (s *MemoryStore) DeleteByID(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	s.mu.Lock()
	d, ok := s.docs[id]
	if ok && d.entry.OwnerID == ownerID {
		delete(s.docs, id)
	}
	s.mu.Unlock()

	if ok {
		s.hub.Notify(ownerID)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, ownerID string) ([]models.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var docs []memoryDoc
	for _, d := range s.docs {
		if d.entry.OwnerID == ownerID {
			docs = append(docs, d)
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]models.Entry, len(docs))
	for i, d := range docs {
		out[i] = d.entry.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if q.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	parent, stop := mergeCancel(ctx, s.ctx)
	return subscribe(parent, s.hub, q, s.List, s.log, stop), nil
}

// Close ends every live subscription.
func (s *MemoryStore) Close() error {
	s.cancel()
	return nil
}

// mergeCancel returns a context cancelled when either a or b is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
