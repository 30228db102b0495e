package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const feedRetryDelay = 2 * time.Second

// notifyConn is the part of *pgx.Conn the listener uses.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGListener turns Postgres NOTIFY messages on channel into hub wake-ups.
type PGListener struct {
	channel string
	dial    func(ctx context.Context) (notifyConn, error)
	retry   time.Duration
	log     *zap.Logger
}

func NewPGListener(dsn, channel string, log *zap.Logger) *PGListener {
	return &PGListener{
		channel: channel,
		dial: func(ctx context.Context) (notifyConn, error) {
			return pgx.Connect(ctx, dsn)
		},
		retry: feedRetryDelay,
		log:   log.Named("pg_listener"),
	}
}

// Run listens until ctx is done, reconnecting after connection loss.
func (l *PGListener) Run(ctx context.Context, hub *Hub) error {
	for {
		err := l.listen(ctx, hub)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("listener disconnected", zap.Error(err))
		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *PGListener) listen(ctx context.Context, hub *Hub) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.log.Info("listening", zap.String("channel", l.channel))
	// Writes made while no one was listening sent their NOTIFY into the void.
	hub.NotifyAll()
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		hub.Notify(n.Payload)
	}
}

// RedisFeed carries change notifications over Redis pub/sub so several
// server instances can share one set of live queries.
type RedisFeed struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisFeed(client *redis.Client, channel string, log *zap.Logger) *RedisFeed {
	return &RedisFeed{client: client, channel: channel, log: log.Named("redis_feed")}
}

func (f *RedisFeed) Publish(ctx context.Context, ownerID string) error {
	return f.client.Publish(ctx, f.channel, ownerID).Err()
}

// Run relays messages until ctx is done or the subscription closes. go-redis
// resubscribes by itself after a dropped connection; each confirmation,
// including the first, wakes all live queries since messages published in
// between are lost.
func (f *RedisFeed) Run(ctx context.Context, hub *Hub) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	f.log.Info("listening", zap.String("channel", f.channel))
	hub.NotifyAll()

	ch := sub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			switch m := msg.(type) {
			case *redis.Message:
				hub.Notify(m.Payload)
			case *redis.Subscription:
				f.log.Info("resubscribed", zap.String("channel", m.Channel))
				hub.NotifyAll()
			}
		}
	}
}
