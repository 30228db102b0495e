// Package store holds the entry collection: owner-scoped documents ordered
// newest first, with live subscriptions that push whole snapshots.
package store

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"mydiary/internal/models"
)

var (
	ErrMissingOwner = errors.New("store: entry has no owner")
	ErrClosed       = errors.New("store: closed")
)

// Query selects the entries of one owner, ordered by createdAt descending.
type Query struct {
	OwnerID string
}

// Snapshot is the complete result set of a query at one point in time.
type Snapshot struct {
	Entries []models.Entry
}

type fetchFunc func(ctx context.Context, ownerID string) ([]models.Entry, error)

// Subscription delivers snapshots in order until Close is called or the
// store shuts down, at which point Snapshots is closed.
type Subscription struct {
	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Snapshots() <-chan Snapshot { return s.ch }

// Close stops the subscription and waits until it can no longer deliver.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// subscribe starts the refetch loop: one snapshot up front, then one per wake-up.
// Wake-ups are coalesced by the hub so a burst of writes costs a single query.
func subscribe(parent context.Context, h *Hub, q Query, fetch fetchFunc, log *zap.Logger, onDone func()) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	wake, unwatch := h.Watch(q.OwnerID)
	s := &Subscription{
		ch:     make(chan Snapshot),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer onDone()
		defer close(s.ch)
		defer unwatch()
		for {
			entries, err := fetch(ctx, q.OwnerID)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				log.Warn("live query refetch failed", zap.String("owner", q.OwnerID), zap.Error(err))
			default:
				select {
				case s.ch <- Snapshot{Entries: entries}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}
