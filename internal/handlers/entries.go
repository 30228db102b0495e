package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "mydiary/internal/middleware"
)

type EntriesHandler struct{}

func NewEntriesHandler() *EntriesHandler { return &EntriesHandler{} }

// Delete removes an entry of the signed-in user. The list drops it when the
// next snapshot arrives.
func (h *EntriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := mw.WorkspaceFrom(r.Context()).Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDiaryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
