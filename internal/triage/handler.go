package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"triage-assistant/internal/domain"
	"triage-assistant/internal/platform/upload"
)

// Transcriber turns dictated audio into note text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

type Handler struct {
	svc *Service
	stt Transcriber
}

// NewHandler builds the HTTP layer. stt may be nil, which disables dictation.
func NewHandler(svc *Service, stt Transcriber) *Handler {
	return &Handler{svc: svc, stt: stt}
}

type StartTriageRequest struct {
	Note          string              `json:"note"`
	Vitals        *domain.VitalSample `json:"vitals,omitempty"`
	ImageBase64   string              `json:"image_base64,omitempty"`
	ImageMIMEType string              `json:"image_mime_type,omitempty"`
}

func (h *Handler) parseStart(r *http.Request) (Request, error) {
	if upload.IsMultipart(r) {
		if err := r.ParseMultipartForm(upload.MaxSize); err != nil {
			return Request{}, err
		}
		img, err := upload.ImageFromForm(r, "image")
		if err != nil {
			return Request{}, err
		}
		vitals, err := vitalsFromForm(r)
		if err != nil {
			return Request{}, err
		}
		return Request{Note: r.FormValue("note"), Vitals: vitals, Image: img}, nil
	}

	var req StartTriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return Request{}, err
	}
	img, err := upload.ImageFromBase64(req.ImageBase64, req.ImageMIMEType)
	if err != nil {
		return Request{}, err
	}
	return Request{Note: req.Note, Vitals: req.Vitals, Image: img}, nil
}

// vitalsFromForm returns nil unless every field is present.
func vitalsFromForm(r *http.Request) (*domain.VitalSample, error) {
	fields := []string{"heart_rate", "spo2", "bp_systolic", "bp_diastolic"}
	values := make([]int, len(fields))
	for i, f := range fields {
		raw := r.FormValue(f)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer", f)
		}
		values[i] = v
	}
	return &domain.VitalSample{
		HeartRate:   values[0],
		SpO2:        values[1],
		BPSystolic:  values[2],
		BPDiastolic: values[3],
	}, nil
}

func (h *Handler) StartTriage(w http.ResponseWriter, r *http.Request) {
	upload.LimitBody(w, r)
	req, err := h.parseStart(r)
	if upload.IsTooLarge(err) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.svc.Start(r.Context(), req)
	if errors.Is(err, ErrEmptyNote) {
		http.Error(w, "Note is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Failed to start triage", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID.String(),
		"run":    run,
	})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	run, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// StreamRun sends the current run and then every stage transition as SSE.
func (h *Handler) StreamRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	// Subscribe before loading so no transition slips between the two.
	updates, cancel := h.svc.Subscribe(id)
	defer cancel()

	run, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(run *Run) {
		data, _ := json.Marshal(run)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(run)
	if run.Finished() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case next, open := <-updates:
			if !open {
				return
			}
			send(next)
			if next.Finished() {
				return
			}
		}
	}
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	pdf, err := h.svc.Report(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Report unavailable: "+err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"triage_%s.pdf\"", id))
	w.Write(pdf)
}

func (h *Handler) Dictate(w http.ResponseWriter, r *http.Request) {
	if h.stt == nil {
		http.Error(w, "Dictation is not configured", http.StatusNotImplemented)
		return
	}

	upload.LimitBody(w, r)
	if err := r.ParseMultipartForm(upload.MaxSize); upload.IsTooLarge(err) {
		http.Error(w, "Audio file too large", http.StatusRequestEntityTooLarge)
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error retrieving audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		http.Error(w, "Failed to read audio file", http.StatusInternalServerError)
		return
	}

	if buf.Len() == 0 {
		http.Error(w, "Audio file is empty", http.StatusBadRequest)
		return
	}

	text, err := h.stt.Transcribe(r.Context(), buf.Bytes())
	if err != nil {
		http.Error(w, "Transcription failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/triage", h.StartTriage)
	r.Get("/triage", h.ListRuns)
	r.Post("/triage/dictation", h.Dictate)
	r.Get("/triage/{id}", h.GetRun)
	r.Get("/triage/{id}/events", h.StreamRun)
	r.Get("/triage/{id}/report", h.GetReport)
}
