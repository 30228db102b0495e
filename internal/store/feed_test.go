package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mydiary/internal/models"
)

// entrySource stands in for the database a live query refetches from.
type entrySource struct {
	mu      sync.Mutex
	entries []models.Entry
}

func (s *entrySource) add(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]models.Entry{{OwnerID: "u1", Title: title}}, s.entries...)
}

func (s *entrySource) fetch(_ context.Context, ownerID string) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func liveQuery(t *testing.T, hub *Hub, src *entrySource) *Subscription {
	t.Helper()
	sub := subscribe(context.Background(), hub, Query{OwnerID: "u1"}, src.fetch, zap.NewNop(), func() {})
	t.Cleanup(sub.Close)
	assert.Empty(t, next(t, sub).Entries)
	return sub
}

// background runs fn until the returned stop func is called.
func background(fn func(ctx context.Context) error) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func assertQuiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		t.Fatalf("unexpected snapshot %v", titles(snap.Entries))
	case <-time.After(100 * time.Millisecond):
	}
}

func newRedisFeed(t *testing.T) (*miniredis.Miniredis, *RedisFeed) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisFeed(client, "diary_entries", zap.NewNop())
}

func TestRedisFeed_PublishRefetches(t *testing.T) {
	_, feed := newRedisFeed(t)
	hub := NewHub()
	src := &entrySource{}
	sub := liveQuery(t, hub, src)

	stop := background(func(ctx context.Context) error { return feed.Run(ctx, hub) })
	defer stop()
	// Subscribing wakes every live query once.
	assert.Empty(t, next(t, sub).Entries)

	src.add("from another instance")
	require.NoError(t, feed.Publish(context.Background(), "u1"))
	assert.Equal(t, []string{"from another instance"}, titles(next(t, sub).Entries))

	require.NoError(t, feed.Publish(context.Background(), "someone-else"))
	assertQuiet(t, sub)
}

func TestRedisFeed_RestartCatchesUp(t *testing.T) {
	_, feed := newRedisFeed(t)
	hub := NewHub()
	src := &entrySource{}
	sub := liveQuery(t, hub, src)

	stop := background(func(ctx context.Context) error { return feed.Run(ctx, hub) })
	next(t, sub)
	stop()

	// Published while nobody listens: the message is gone.
	src.add("written during outage")
	require.NoError(t, feed.Publish(context.Background(), "u1"))
	assertQuiet(t, sub)

	stop = background(func(ctx context.Context) error { return feed.Run(ctx, hub) })
	defer stop()
	assert.Equal(t, []string{"written during outage"}, titles(next(t, sub).Entries))
}

func TestRedisFeed_ServerRestartCatchesUp(t *testing.T) {
	mr, feed := newRedisFeed(t)
	hub := NewHub()
	src := &entrySource{}
	sub := liveQuery(t, hub, src)

	stop := background(func(ctx context.Context) error { return feed.Run(ctx, hub) })
	defer stop()
	next(t, sub)

	mr.Close()
	src.add("written while redis was down")
	require.NoError(t, mr.Restart())

	select {
	case snap := <-sub.Snapshots():
		assert.Equal(t, []string{"written while redis was down"}, titles(snap.Entries))
	case <-time.After(10 * time.Second):
		t.Fatal("no refetch after redis came back")
	}
}

type fakeNotifyConn struct {
	mu     sync.Mutex
	execs  []string
	events chan any
}

func newFakeNotifyConn() *fakeNotifyConn {
	return &fakeNotifyConn{events: make(chan any)}
}

func (c *fakeNotifyConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeNotifyConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	select {
	case ev := <-c.events:
		if err, ok := ev.(error); ok {
			return nil, err
		}
		return ev.(*pgconn.Notification), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeNotifyConn) Close(context.Context) error { return nil }

func (c *fakeNotifyConn) statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

func TestPGListener_NotifyAndReconnect(t *testing.T) {
	first, second := newFakeNotifyConn(), newFakeNotifyConn()
	conns := make(chan notifyConn, 2)
	conns <- first
	conns <- second

	l := NewPGListener("", "diary_entries", zap.NewNop())
	l.retry = 10 * time.Millisecond
	l.dial = func(ctx context.Context) (notifyConn, error) {
		select {
		case c := <-conns:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	hub := NewHub()
	src := &entrySource{}
	sub := liveQuery(t, hub, src)

	stop := background(func(ctx context.Context) error { return l.Run(ctx, hub) })
	defer stop()
	next(t, sub)
	assert.Equal(t, []string{`LISTEN "diary_entries"`}, first.statements())

	src.add("a1")
	first.events <- &pgconn.Notification{Channel: "diary_entries", Payload: "u1"}
	assert.Equal(t, []string{"a1"}, titles(next(t, sub).Entries))

	// a2 commits while the connection is down; its NOTIFY never arrives.
	src.add("a2")
	first.events <- errors.New("connection reset by peer")
	assert.Equal(t, []string{"a2", "a1"}, titles(next(t, sub).Entries))
	assert.Equal(t, []string{`LISTEN "diary_entries"`}, second.statements())
}
