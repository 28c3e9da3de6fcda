package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/platform/upload"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type CreateSessionRequest struct {
	Persona string `json:"persona"`
}

type SendMessageRequest struct {
	Text          string `json:"text"`
	ImageBase64   string `json:"image_base64,omitempty"`
	ImageMIMEType string `json:"image_mime_type,omitempty"`
}

type AssessmentRequest struct {
	Symptoms string              `json:"symptoms"`
	Vitals   *domain.VitalSample `json:"vitals,omitempty"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	upload.LimitBody(w, r)
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	persona, err := ParsePersona(req.Persona)
	if err != nil {
		http.Error(w, "Unknown persona", http.StatusBadRequest)
		return
	}

	session, err := h.svc.CreateSession(r.Context(), persona)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func parseMessage(r *http.Request) (string, *domain.Attachment, error) {
	if upload.IsMultipart(r) {
		if err := r.ParseMultipartForm(upload.MaxSize); err != nil {
			return "", nil, err
		}
		img, err := upload.ImageFromForm(r, "image")
		if err != nil {
			return "", nil, err
		}
		return r.FormValue("text"), img, nil
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, err
	}
	img, err := upload.ImageFromBase64(req.ImageBase64, req.ImageMIMEType)
	if err != nil {
		return "", nil, err
	}
	return req.Text, img, nil
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	upload.LimitBody(w, r)
	text, img, err := parseMessage(r)
	if upload.IsTooLarge(err) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	session, err := h.svc.Send(r.Context(), id, text, img)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrEmptyMessage):
		http.Error(w, "Message is empty", http.StatusBadRequest)
		return
	case errors.Is(err, ErrBusy):
		http.Error(w, "A reply is already in progress", http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "Failed to send message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":   session.Messages[len(session.Messages)-1].Text,
		"session": session,
	})
}

func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	upload.LimitBody(w, r)
	var req AssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	a, err := h.svc.Assess(r.Context(), req.Symptoms, req.Vitals)
	if err != nil {
		http.Error(w, "Assessment failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/chat/sessions", h.CreateSession)
	r.Get("/chat/sessions/{id}", h.GetSession)
	r.Post("/chat/sessions/{id}/messages", h.SendMessage)
	r.Post("/patient/assessment", h.Assess)
}
