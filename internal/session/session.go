// Package session is the identity provider of a workspace: it signs users in
// with a password, a federated ID token or a previously issued token, and
// tells subscribers whenever the identity changes.
package session

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mydiary/internal/models"
)

const minPasswordLen = 6

// Authenticator checks credentials against the user directory. It is shared
// by all sessions of the process.
type Authenticator struct {
	users     UserDirectory
	tokens    *TokenIssuer
	federated map[string]FederatedVerifier
	log       *zap.Logger
}

func NewAuthenticator(users UserDirectory, tokens *TokenIssuer, log *zap.Logger) *Authenticator {
	return &Authenticator{
		users:     users,
		tokens:    tokens,
		federated: make(map[string]FederatedVerifier),
		log:       log.Named("auth"),
	}
}

// RegisterProvider enables SignInWithFederatedProvider for name.
func (a *Authenticator) RegisterProvider(name string, v FederatedVerifier) {
	a.federated[name] = v
}

func (a *Authenticator) NewSession() *Session {
	return &Session{auth: a, listeners: make(map[int]func(*models.Identity))}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (a *Authenticator) signUp(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, newError(CodeInvalidEmail, err)
	}
	if len(password) < minPasswordLen {
		return nil, newError(CodeWeakPassword, nil)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hash := string(hashed)
	u := &models.User{Email: email, PasswordHash: &hash}
	if err := a.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, newError(CodeEmailInUse, err)
		}
		return nil, err
	}
	return u, nil
}

func (a *Authenticator) signIn(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, newError(CodeInvalidCredential, nil)
	}
	u, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, newError(CodeUserNotFound, err)
		}
		return nil, err
	}
	if u.PasswordHash == nil {
		// Account exists through a federated provider only.
		return nil, newError(CodeInvalidCredential, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)); err != nil {
		return nil, newError(CodeWrongPassword, nil)
	}
	return u, nil
}

func (a *Authenticator) signInFederated(ctx context.Context, provider, idToken string) (*models.User, error) {
	v, ok := a.federated[provider]
	if !ok {
		return nil, &Error{Code: CodeFederatedFailed, Provider: provider, Err: errors.New("unknown provider")}
	}
	profile, err := v.Verify(ctx, idToken)
	if err != nil {
		return nil, &Error{Code: CodeFederatedFailed, Provider: provider, Err: err}
	}
	profile.Email = normalizeEmail(profile.Email)
	u, err := a.users.UpsertFederated(ctx, provider, profile)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, newError(CodeEmailInUse, err)
		}
		return nil, err
	}
	return u, nil
}

func (a *Authenticator) restore(ctx context.Context, token string) (*models.User, error) {
	userID, err := a.tokens.Parse(token)
	if err != nil {
		return nil, newError(CodeInvalidCredential, err)
	}
	u, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, newError(CodeInvalidCredential, err)
		}
		return nil, err
	}
	return u, nil
}

// Session holds the identity of one client. Listeners are called in the
// order identity changes happen, never concurrently with each other.
type Session struct {
	auth *Authenticator

	notifyMu  sync.Mutex
	mu        sync.Mutex
	current   *models.Identity
	token     string
	listeners map[int]func(*models.Identity)
	nextID    int
}

// Subscribe registers onChange and immediately reports the current identity
// (nil when signed out). The returned func unregisters it.
func (s *Session) Subscribe(onChange func(*models.Identity)) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = onChange
	current := copyIdentity(s.current)
	s.mu.Unlock()

	onChange(current)
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Session) Current() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIdentity(s.current)
}

// Token is the bearer token of the signed-in identity.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) SignUpWithCredential(ctx context.Context, email, password string) (*models.Identity, error) {
	u, err := s.auth.signUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(u)
}

func (s *Session) SignInWithCredential(ctx context.Context, email, password string) (*models.Identity, error) {
	u, err := s.auth.signIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(u)
}

func (s *Session) SignInWithFederatedProvider(ctx context.Context, provider, idToken string) (*models.Identity, error) {
	u, err := s.auth.signInFederated(ctx, provider, idToken)
	if err != nil {
		return nil, err
	}
	return s.establish(u)
}

// Restore signs in with a token issued by an earlier session.
func (s *Session) Restore(ctx context.Context, token string) (*models.Identity, error) {
	u, err := s.auth.restore(ctx, token)
	if err != nil {
		return nil, err
	}
	s.set(u.Identity(), token)
	return u.Identity(), nil
}

func (s *Session) SignOut(_ context.Context) error {
	s.set(nil, "")
	return nil
}

func (s *Session) establish(u *models.User) (*models.Identity, error) {
	token, err := s.auth.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	s.auth.log.Info("signed in", zap.String("user_id", u.ID), zap.String("provider", u.Provider))
	s.set(u.Identity(), token)
	return u.Identity(), nil
}

func (s *Session) set(identity *models.Identity, token string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.current = identity
	s.token = token
	listeners := make([]func(*models.Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(copyIdentity(identity))
	}
}

func copyIdentity(id *models.Identity) *models.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
