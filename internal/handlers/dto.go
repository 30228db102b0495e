package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"mydiary/internal/diary"
	"mydiary/internal/models"
)

// ViewDTO is the JSON form of a workspace view. Entries and draft are left
// out unless the gate is signed_in.
type ViewDTO struct {
	Gate        diary.Gate       `json:"gate"`
	User        *models.Identity `json:"user,omitempty"`
	Tab         models.Tab       `json:"tab"`
	Entries     []models.Entry   `json:"entries,omitempty"`
	Total       int              `json:"total"`
	Draft       *models.Entry    `json:"draft,omitempty"`
	OverlayOpen bool             `json:"overlayOpen"`
	Busy        bool             `json:"busy"`
	Stale       bool             `json:"stale,omitempty"`
	Version     uint64           `json:"version"`
}

func ToViewDTO(v diary.View) ViewDTO {
	dto := ViewDTO{
		Gate:        v.Gate,
		User:        v.Identity,
		Tab:         v.Tab,
		Total:       v.Total,
		OverlayOpen: v.OverlayOpen,
		Busy:        v.Busy,
		Stale:       v.Stale,
		Version:     v.Version,
	}
	if v.Gate == diary.GateSignedIn {
		dto.Entries = v.Entries
		d := v.Draft
		dto.Draft = &d
	}
	return dto
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeDiaryError maps a workspace error to a status and its alert text.
func writeDiaryError(w http.ResponseWriter, err error) {
	var se *diary.StoreError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, diary.ErrEmptyDraft), errors.Is(err, diary.ErrInvalidDate),
		errors.Is(err, diary.ErrInvalidTab), errors.Is(err, diary.ErrUnknownField),
		errors.Is(err, diary.ErrFieldType):
		status = http.StatusBadRequest
	case errors.Is(err, diary.ErrNotSignedIn):
		status = http.StatusUnauthorized
	case errors.Is(err, diary.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, diary.ErrClosed):
		status = http.StatusGone
	case errors.As(err, &se):
		status = http.StatusBadGateway
	}
	writeError(w, status, diary.UserMessage(err), "")
}
