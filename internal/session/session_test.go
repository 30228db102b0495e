package session

import (
	"context"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mydiary/internal/models"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newAuth(t *testing.T) *Authenticator {
	t.Helper()
	a := NewAuthenticator(NewMemoryUsers(), NewTokenIssuer(testSecret, time.Hour), zap.NewNop())
	a.RegisterProvider("google", NewHMACVerifier([]byte("google-secret"), "mydiary"))
	return a
}

type recorder struct {
	mu  sync.Mutex
	got []*models.Identity
}

func (r *recorder) record(id *models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, id)
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, id := range r.got {
		if id != nil {
			out[i] = id.Email
		}
	}
	return out
}

func TestSession_SubscribeReportsCurrentImmediately(t *testing.T) {
	s := newAuth(t).NewSession()
	var rec recorder
	unsubscribe := s.Subscribe(rec.record)
	defer unsubscribe()

	assert.Equal(t, []string{""}, rec.ids())
}

func TestSession_SignUpSignOutSignIn(t *testing.T) {
	ctx := context.Background()
	a := newAuth(t)
	s := a.NewSession()
	var rec recorder
	unsubscribe := s.Subscribe(rec.record)

	id, err := s.SignUpWithCredential(ctx, "  Ann@Example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", id.Email)
	assert.NotEmpty(t, s.Token())

	require.NoError(t, s.SignOut(ctx))
	assert.Nil(t, s.Current())
	assert.Empty(t, s.Token())

	again, err := s.SignInWithCredential(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id.ID, again.ID)

	unsubscribe()
	require.NoError(t, s.SignOut(ctx))
	assert.Equal(t, []string{"", "ann@example.com", "", "ann@example.com"}, rec.ids())
}

func TestSession_CredentialErrors(t *testing.T) {
	ctx := context.Background()
	s := newAuth(t).NewSession()
	_, err := s.SignUpWithCredential(ctx, "bo@example.com", "secret1")
	require.NoError(t, err)

	cases := []struct {
		name     string
		run      func() error
		code     Code
		contains string
	}{
		{"email in use", func() error { _, err := s.SignUpWithCredential(ctx, "BO@example.com", "another1"); return err }, CodeEmailInUse, "already registered"},
		{"weak password", func() error { _, err := s.SignUpWithCredential(ctx, "cy@example.com", "123"); return err }, CodeWeakPassword, "at least 6"},
		{"invalid email", func() error { _, err := s.SignUpWithCredential(ctx, "not-an-email", "secret1"); return err }, CodeInvalidEmail, "valid email"},
		{"wrong password", func() error { _, err := s.SignInWithCredential(ctx, "bo@example.com", "nope!!"); return err }, CodeWrongPassword, "Incorrect password"},
		{"unknown user", func() error { _, err := s.SignInWithCredential(ctx, "zed@example.com", "secret1"); return err }, CodeUserNotFound, "No account"},
		{"empty", func() error { _, err := s.SignInWithCredential(ctx, "", ""); return err }, CodeInvalidCredential, "Invalid email or password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			assert.Equal(t, tc.code, CodeOf(err))
			assert.Contains(t, Message(err), tc.contains)
		})
	}
}

func TestSession_RestoreFromToken(t *testing.T) {
	ctx := context.Background()
	a := newAuth(t)
	first := a.NewSession()
	id, err := first.SignUpWithCredential(ctx, "dee@example.com", "secret1")
	require.NoError(t, err)

	second := a.NewSession()
	restored, err := second.Restore(ctx, first.Token())
	require.NoError(t, err)
	assert.Equal(t, id.ID, restored.ID)
	assert.Equal(t, first.Token(), second.Token())

	_, err = a.NewSession().Restore(ctx, "garbage")
	assert.Equal(t, CodeInvalidCredential, CodeOf(err))
}

func googleToken(t *testing.T, secret string, claims idTokenClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestSession_FederatedSignIn(t *testing.T) {
	ctx := context.Background()
	a := newAuth(t)
	claims := idTokenClaims{
		Email: "Eve@Example.com",
		Name:  "Eve",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "g-123",
			Audience:  jwt.ClaimStrings{"mydiary"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}

	s := a.NewSession()
	id, err := s.SignInWithFederatedProvider(ctx, "google", googleToken(t, "google-secret", claims))
	require.NoError(t, err)
	assert.Equal(t, "eve@example.com", id.Email)
	assert.Equal(t, "Eve", id.DisplayName)

	// Second sign-in lands on the same account.
	again, err := a.NewSession().SignInWithFederatedProvider(ctx, "google", googleToken(t, "google-secret", claims))
	require.NoError(t, err)
	assert.Equal(t, id.ID, again.ID)

	_, err = s.SignInWithFederatedProvider(ctx, "google", googleToken(t, "wrong-secret", claims))
	require.Error(t, err)
	assert.Equal(t, CodeFederatedFailed, CodeOf(err))
	assert.Equal(t, "Google Sign In failed. Try again.", Message(err))

	_, err = s.SignInWithFederatedProvider(ctx, "github", "whatever")
	assert.Equal(t, CodeFederatedFailed, CodeOf(err))

	// Federated-only accounts cannot sign in with a password.
	_, err = s.SignInWithCredential(ctx, "eve@example.com", "secret1")
	assert.Equal(t, CodeInvalidCredential, CodeOf(err))
}

func TestMessage_Fallback(t *testing.T) {
	assert.Equal(t, genericMessage, Message(assert.AnError))
	assert.Equal(t, genericMessage, Message(&Error{Code: "auth/unmapped"}))
}
