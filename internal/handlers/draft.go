package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mydiary/internal/diary"
	mw "mydiary/internal/middleware"
	"mydiary/internal/models"
)

type DraftHandler struct{}

func NewDraftHandler() *DraftHandler { return &DraftHandler{} }

type fieldRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// UpdateField sets one draft attribute: {"field": "mood", "value": "happy"}.
func (h *DraftHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req fieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Field == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	value, err := decodeFieldValue(req.Field, req.Value)
	if err != nil {
		writeDiaryError(w, err)
		return
	}
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.UpdateField(r.Context(), req.Field, value); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeView(w, r, ws)
}

func decodeFieldValue(field string, raw json.RawMessage) (any, error) {
	var (
		v   any
		err error
	)
	switch field {
	case diary.FieldTitle, diary.FieldContent, diary.FieldDate, diary.FieldMood:
		var s string
		err = json.Unmarshal(raw, &s)
		v = s
	case diary.FieldIsFavorite, diary.FieldIsLocked:
		var b bool
		err = json.Unmarshal(raw, &b)
		v = b
	case diary.FieldImages, diary.FieldAttachments:
		var ds []models.Descriptor
		err = json.Unmarshal(raw, &ds)
		if ds == nil {
			ds = []models.Descriptor{}
		}
		v = ds
	default:
		// Let the workspace reject it.
		return raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", diary.ErrFieldType, field, err)
	}
	return v, nil
}

func (h *DraftHandler) Select(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.SelectByID(r.Context(), body.ID); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeView(w, r, ws)
}

func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, err := mw.WorkspaceFrom(r.Context()).Save(r.Context())
	if err != nil {
		writeDiaryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "message": "Entry saved!"})
}

type imageRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	LocalRef string `json:"localRef"`
}

func (h *DraftHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.URL == "" && req.LocalRef == "") {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	d := diary.NewImage(req.Name, req.URL, req.LocalRef)
	if err := mw.WorkspaceFrom(r.Context()).AddImage(r.Context(), d); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DraftHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.RemoveImage(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeView(w, r, ws)
}

type attachmentRequest struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	LocalRef string `json:"localRef"`
}

func (h *DraftHandler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	var req attachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Size < 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	d := diary.NewAttachment(req.Name, req.Size, req.LocalRef)
	if err := mw.WorkspaceFrom(r.Context()).AddAttachment(r.Context(), d); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DraftHandler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	ws := mw.WorkspaceFrom(r.Context())
	if err := ws.RemoveAttachment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDiaryError(w, err)
		return
	}
	writeView(w, r, ws)
}
