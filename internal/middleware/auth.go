package middleware

import (
	"context"
	"net/http"
	"strings"

	"mydiary/internal/diary"
)

// WorkspaceHeader addresses a workspace on every workspace-scoped route.
const WorkspaceHeader = "X-Workspace-ID"

type ctxKey int

const workspaceKey ctxKey = iota

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return token, token != ""
}

type WorkspaceMiddleware struct {
	registry *diary.Registry
}

func NewWorkspaceMiddleware(reg *diary.Registry) *WorkspaceMiddleware {
	return &WorkspaceMiddleware{registry: reg}
}

// RequireWorkspace resolves the workspace named by the X-Workspace-ID header,
// or the "workspace" query parameter for clients that cannot set headers.
func (m *WorkspaceMiddleware) RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(WorkspaceHeader)
		if id == "" {
			id = r.URL.Query().Get("workspace")
		}
		if id == "" {
			http.Error(w, "missing workspace id", http.StatusBadRequest)
			return
		}
		ws, ok := m.registry.Get(id)
		if !ok {
			http.Error(w, "unknown workspace", http.StatusNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), workspaceKey, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WorkspaceFrom returns the workspace RequireWorkspace stored in ctx.
func WorkspaceFrom(ctx context.Context) *diary.Workspace {
	ws, _ := ctx.Value(workspaceKey).(*diary.Workspace)
	return ws
}
