package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mydiary/internal/diary"
	mw "mydiary/internal/middleware"
	"mydiary/internal/models"
	"mydiary/internal/session"
)

const (
	liveWriteWait  = 10 * time.Second
	livePingPeriod = 30 * time.Second
)

type WorkspaceHandler struct {
	store    diary.EntryStore
	auth     *session.Authenticator
	registry *diary.Registry
	opts     diary.Options
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWorkspaceHandler opens workspaces over st. opts is the template every
// new workspace starts from; its ID is replaced. origins limits which pages
// may open the live socket, as ALLOWED_ORIGINS does for plain requests.
func NewWorkspaceHandler(st diary.EntryStore, auth *session.Authenticator, reg *diary.Registry, opts diary.Options, origins []string, log *zap.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		store:    st,
		auth:     auth,
		registry: reg,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browsers skip CORS for WebSocket handshakes, so the origin
			// list is checked here.
			CheckOrigin: originChecker(origins),
		},
		log: log.Named("workspace_handler"),
	}
}

type createResponse struct {
	ID    string  `json:"id"`
	Token string  `json:"token,omitempty"`
	View  ViewDTO `json:"view"`
}

// Create opens a workspace. A bearer token from an earlier sign-in restores
// that identity; a stale token just leaves the workspace signed out.
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	sess := h.auth.NewSession()
	if token, ok := mw.BearerToken(r); ok {
		if _, err := sess.Restore(r.Context(), token); err != nil {
			h.log.Debug("token restore failed", zap.Error(err))
		}
	}

	opts := h.opts
	opts.ID = uuid.NewString()
	ws := diary.New(h.store, sess, opts)
	h.registry.Add(ws)

	v, err := ws.View(r.Context())
	if err != nil {
		writeDiaryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: ws.ID(), Token: sess.Token(), View: ToViewDTO(v)})
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeView(w, r, mw.WorkspaceFrom(r.Context()))
}

func (h *WorkspaceHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.registry.Remove(mw.WorkspaceFrom(r.Context()).ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspaceHandler) SetTab(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tab models.Tab `json:"tab"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.SetTab(r.Context(), body.Tab); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeView(w, r, ws)
}

func (h *WorkspaceHandler) SetOverlay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Open bool `json:"open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.SetOverlay(r.Context(), body.Open); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeView(w, r, ws)
}

// Live streams a view over a WebSocket after every state change.
func (h *WorkspaceHandler) Live(w http.ResponseWriter, r *http.Request) {
	ws := mw.WorkspaceFrom(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Client frames are ignored; a read error means the peer went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	views, err := ws.Watch(ctx)
	if err != nil {
		h.closeLive(conn, websocket.CloseGoingAway, diary.UserMessage(err))
		return
	}

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()
	// The socket holds the workspace open; without it the registry would
	// evict a client that only listens.
	var keepAlive <-chan time.Time
	if d := h.registry.KeepAlive(); d > 0 {
		t := time.NewTicker(d)
		defer t.Stop()
		keepAlive = t.C
	}
	for {
		select {
		case v, ok := <-views:
			if !ok {
				h.closeLive(conn, websocket.CloseGoingAway, "workspace closed")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(ToViewDTO(v)); err != nil {
				h.log.Debug("live write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-keepAlive:
			h.registry.Get(ws.ID())
		case <-ctx.Done():
			return
		}
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and those whose Origin is listed. "*" allows any.
func originChecker(origins []string) func(*http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(origins, func(o string) bool {
			return strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
		})
	}
}

func (h *WorkspaceHandler) closeLive(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
}

func writeView(w http.ResponseWriter, r *http.Request, ws *diary.Workspace) {
	v, err := ws.View(r.Context())
	if err != nil {
		writeDiaryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToViewDTO(v))
}
