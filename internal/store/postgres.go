package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"mydiary/internal/models"
	"mydiary/internal/services"
)

// Publisher announces that an owner's entries changed. Used when the change
// feed is not driven by the database trigger.
type Publisher interface {
	Publish(ctx context.Context, ownerID string) error
}

type entryRow struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	Title       string         `db:"title"`
	Content     string         `db:"content"`
	Mood        string         `db:"mood"`
	EntryDate   string         `db:"entry_date"`
	Images      types.JSONText `db:"images"`
	Attachments types.JSONText `db:"attachments"`
	IsFavorite  bool           `db:"is_favorite"`
	IsLocked    bool           `db:"is_locked"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r entryRow) entry() (models.Entry, error) {
	e := models.Entry{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Title:      r.Title,
		Content:    r.Content,
		Mood:       models.Mood(r.Mood),
		Date:       r.EntryDate,
		IsFavorite: r.IsFavorite,
		IsLocked:   r.IsLocked,
		CreatedAt:  r.CreatedAt,
	}
	if err := r.Images.Unmarshal(&e.Images); err != nil {
		return e, fmt.Errorf("images: %w", err)
	}
	if err := r.Attachments.Unmarshal(&e.Attachments); err != nil {
		return e, fmt.Errorf("attachments: %w", err)
	}
	return e, nil
}

// PostgresStore keeps entries in the entries table. Live queries are woken by
// the Hub, which a change feed (LISTEN/NOTIFY or Redis) drives.
type PostgresStore struct {
	db     *sqlx.DB
	encSvc *services.EncryptionService
	pub    Publisher
	hub    *Hub
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPostgresStore wires the store. encSvc and pub may be nil.
func NewPostgresStore(db *sqlx.DB, encSvc *services.EncryptionService, pub Publisher, log *zap.Logger) *PostgresStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresStore{
		db:     db,
		encSvc: encSvc,
		pub:    pub,
		hub:    NewHub(),
		log:    log.Named("postgres_store"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Hub is the notification target for change feeds.
func (s *PostgresStore) Hub() *Hub { return s.hub }

func (s *PostgresStore) Create(ctx context.Context, doc models.Entry) (string, error) {
	if doc.OwnerID == "" {
		return "", ErrMissingOwner
	}
	e := doc.Clone()
	if e.Images == nil {
		e.Images = []models.Descriptor{}
	}
	if e.Attachments == nil {
		e.Attachments = []models.Descriptor{}
	}
	if s.encSvc != nil {
		if err := s.encSvc.EncryptEntry(&e); err != nil {
			return "", fmt.Errorf("encrypt entry: %w", err)
		}
	}
	images, err := json.Marshal(e.Images)
	if err != nil {
		return "", err
	}
	attachments, err := json.Marshal(e.Attachments)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	// created_at never goes below the owner's newest entry, so a wall clock
	// stepping back cannot reorder the list.
	_, err = s.db.ExecContext(ctx, `INSERT INTO entries (id, owner_id, title, content, mood, entry_date, images, attachments, is_favorite, is_locked, created_at)
	                                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	                                        GREATEST(clock_timestamp(), (SELECT max(created_at) FROM entries WHERE owner_id = $2)))`,
		id, e.OwnerID, e.Title, e.Content, string(e.Mood), e.Date, string(images), string(attachments), e.IsFavorite, e.IsLocked)
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}
	s.publish(ctx, e.OwnerID)
	return id, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(ctx, ownerID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]models.Entry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, owner_id, title, content, mood, entry_date, images, attachments, is_favorite, is_locked, created_at
	                                       FROM entries WHERE owner_id = $1 ORDER BY created_at DESC, seq DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]models.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			s.log.Warn("skipping malformed entry", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		if s.encSvc != nil {
			if err := s.encSvc.DecryptEntry(&e); err != nil {
				s.log.Warn("skipping undecryptable entry", zap.String("id", r.ID), zap.Error(err))
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if q.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	parent, stop := mergeCancel(ctx, s.ctx)
	return subscribe(parent, s.hub, q, s.List, s.log, stop), nil
}

// Close ends every live subscription. The DB handle is owned by the caller.
func (s *PostgresStore) Close() error {
	s.cancel()
	return nil
}

func (s *PostgresStore) publish(ctx context.Context, ownerID string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ownerID); err != nil {
		s.log.Warn("publish change failed", zap.String("owner", ownerID), zap.Error(err))
	}
}
