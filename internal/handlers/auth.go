package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mydiary/internal/metrics"
	mw "mydiary/internal/middleware"
	"mydiary/internal/models"
	"mydiary/internal/session"
)

// signer is the part of a workspace session the auth routes drive.
type signer interface {
	SignUpWithCredential(ctx context.Context, email, password string) (*models.Identity, error)
	SignInWithCredential(ctx context.Context, email, password string) (*models.Identity, error)
	SignInWithFederatedProvider(ctx context.Context, provider, idToken string) (*models.Identity, error)
	Token() string
}

type AuthHandler struct {
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewAuthHandler(m *metrics.Metrics, log *zap.Logger) *AuthHandler {
	return &AuthHandler{metrics: m, log: log.Named("auth_handler")}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string           `json:"token"`
	User  *models.Identity `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.signIn(w, r, "signup", func(s signer) (*models.Identity, error) {
		return s.SignUpWithCredential(r.Context(), c.Email, c.Password)
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.signIn(w, r, "password", func(s signer) (*models.Identity, error) {
		return s.SignInWithCredential(r.Context(), c.Email, c.Password)
	})
}

// Federated signs in with an ID token issued by the provider in the path.
func (h *AuthHandler) Federated(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDToken string `json:"idToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IDToken == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	provider := chi.URLParam(r, "provider")
	h.signIn(w, r, provider, func(s signer) (*models.Identity, error) {
		return s.SignInWithFederatedProvider(r.Context(), provider, body.IDToken)
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Could not sign out.", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, method string, fn func(signer) (*models.Identity, error)) {
	ws := mw.WorkspaceFrom(r.Context())
	s, ok := ws.Session().(signer)
	if !ok {
		http.Error(w, "sign-in unavailable", http.StatusNotImplemented)
		return
	}
	id, err := fn(s)
	h.metrics.AuthAttempt(method, err)
	if err != nil {
		var se *session.Error
		if !errors.As(err, &se) {
			h.log.Error("sign-in failed", zap.String("method", method), zap.Error(err))
			writeError(w, http.StatusInternalServerError, session.Message(err), "")
			return
		}
		writeError(w, authStatus(se.Code), session.Message(err), string(se.Code))
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: s.Token(), User: id})
}

func authStatus(code session.Code) int {
	switch code {
	case session.CodeEmailInUse:
		return http.StatusConflict
	case session.CodeWeakPassword, session.CodeInvalidEmail:
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}
