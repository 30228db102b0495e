package session

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"mydiary/internal/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// UserDirectory persists the accounts sessions sign in to.
type UserDirectory interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpsertFederated(ctx context.Context, provider string, p *FederatedProfile) (*models.User, error)
}

const userColumns = `id, email, password_hash, display_name, photo_url, provider, provider_subject, created_at`

type PostgresUsers struct {
	db *sqlx.DB
}

func NewPostgresUsers(db *sqlx.DB) *PostgresUsers { return &PostgresUsers{db: db} }

func (r *PostgresUsers) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Provider == "" {
		u.Provider = "password"
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (id, email, password_hash, display_name, photo_url, provider, provider_subject)
	                                   VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.PhotoURL, u.Provider, u.ProviderSubject).Scan(&u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

func (r *PostgresUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UpsertFederated links the provider subject to a user, creating one on first sign-in.
func (r *PostgresUsers) UpsertFederated(ctx context.Context, provider string, p *FederatedProfile) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (id, email, display_name, photo_url, provider, provider_subject)
	                                   VALUES ($1, $2, $3, $4, $5, $6)
	                                   ON CONFLICT (provider, provider_subject)
	                                   DO UPDATE SET display_name = EXCLUDED.display_name, photo_url = EXCLUDED.photo_url
	                                   RETURNING `+userColumns,
		uuid.NewString(), p.Email, nullable(p.DisplayName), nullable(p.PhotoURL), provider, p.Subject).StructScan(&u)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// The email belongs to an account of another provider.
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUsers) get(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	if err := r.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MemoryUsers is a UserDirectory for running without a database.
type MemoryUsers struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	clock func() time.Time
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byID: make(map[string]*models.User), clock: time.Now}
}

func (m *MemoryUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrUserExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Provider == "" {
		u.Provider = "password"
	}
	u.CreatedAt = m.clock()
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUsers) UpsertFederated(_ context.Context, provider string, p *FederatedProfile) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Provider == provider && u.ProviderSubject != nil && *u.ProviderSubject == p.Subject {
			u.DisplayName = nullable(p.DisplayName)
			u.PhotoURL = nullable(p.PhotoURL)
			cp := *u
			return &cp, nil
		}
		if strings.EqualFold(u.Email, p.Email) {
			return nil, ErrUserExists
		}
	}
	subject := p.Subject
	u := &models.User{
		ID:              uuid.NewString(),
		Email:           p.Email,
		DisplayName:     nullable(p.DisplayName),
		PhotoURL:        nullable(p.PhotoURL),
		Provider:        provider,
		ProviderSubject: &subject,
		CreatedAt:       m.clock(),
	}
	m.byID[u.ID] = u
	cp := *u
	return &cp, nil
}
