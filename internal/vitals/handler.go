package vitals

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"triage-assistant/internal/domain"
)

type Handler struct {
	monitors map[string]*Monitor
}

// NewHandler serves one monitor per profile name.
func NewHandler(monitors ...*Monitor) *Handler {
	h := &Handler{monitors: make(map[string]*Monitor, len(monitors))}
	for _, m := range monitors {
		h.monitors[m.gen.Profile().Name] = m
	}
	return h
}

type snapshotResponse struct {
	Profile string               `json:"profile"`
	Current domain.VitalSample   `json:"current"`
	History []domain.VitalSample `json:"history"`
}

func (h *Handler) monitor(w http.ResponseWriter, r *http.Request) (*Monitor, bool) {
	name := chi.URLParam(r, "profile")
	m, ok := h.monitors[name]
	if !ok {
		http.Error(w, "Unknown vitals profile", http.StatusNotFound)
		return nil, false
	}
	return m, true
}

func (h *Handler) GetVitals(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitor(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshotResponse{
		Profile: m.gen.Profile().Name,
		Current: m.Current(),
		History: m.History(),
	})
}

func (h *Handler) StreamVitals(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monitor(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	samples, cancel := m.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, open := <-samples:
			if !open {
				return
			}
			data, _ := json.Marshal(s)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/vitals/{profile}", h.GetVitals)
	r.Get("/vitals/{profile}/stream", h.StreamVitals)
}
