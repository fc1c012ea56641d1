package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/truck-inspection/internal/middleware"
	"github.com/ukydev/truck-inspection/internal/models"
	"github.com/ukydev/truck-inspection/internal/relay"
	"github.com/ukydev/truck-inspection/internal/session"
	"github.com/ukydev/truck-inspection/internal/timer"
)

// SessionHandler exposes the inspection workflow of the requesting device.
type SessionHandler struct {
	sessions *session.Service
	budget   time.Duration
}

func NewSessionHandler(sessions *session.Service, budget time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, budget: budget}
}

func (h *SessionHandler) device(r *http.Request) *session.Session {
	return h.sessions.Device(middleware.DeviceFromContext(r.Context()))
}

func (h *SessionHandler) timer(r *http.Request) *timer.Timer {
	return timer.New(h.device(r).Drafts(), h.budget)
}

// Start opens a session for a new truck.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var form models.FormData
	if !readJSON(w, r, &form) {
		return
	}
	view, err := h.device(r).Start(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *SessionHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	view, err := h.device(r).Form(r.Context(), r.PathValue("vehicleId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	var form models.FormData
	if !readJSON(w, r, &form) {
		return
	}
	view, err := h.device(r).UpdateForm(r.Context(), r.PathValue("vehicleId"), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ov, err := h.device(r).Categories(r.Context(), r.PathValue("vehicleId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *SessionHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	view, err := h.device(r).Checklist(r.Context(), r.PathValue("vehicleId"), r.PathValue("categoryId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathInt(w, r, "itemId")
	if !ok {
		return
	}
	var update session.ItemUpdate
	if !readJSON(w, r, &update) {
		return
	}
	view, err := h.device(r).UpdateItem(r.Context(), r.PathValue("vehicleId"), r.PathValue("categoryId"), itemID, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) RequestPhoto(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathInt(w, r, "itemId")
	if !ok {
		return
	}
	marker, err := h.device(r).RequestPhoto(r.Context(), r.PathValue("vehicleId"), r.PathValue("categoryId"), itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, marker)
}

func (h *SessionHandler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathInt(w, r, "itemId")
	if !ok {
		return
	}
	index, ok := pathInt(w, r, "index")
	if !ok {
		return
	}
	view, err := h.device(r).RemovePhoto(r.Context(), r.PathValue("vehicleId"), r.PathValue("categoryId"), itemID, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type photosRequest struct {
	Photos []string `json:"photos"`
}

type photosResponse struct {
	Marker    relay.Marker `json:"marker"`
	Delivered int          `json:"delivered"`
}

// DeliverPhotos is called by the camera view with the captured images.
func (h *SessionHandler) DeliverPhotos(w http.ResponseWriter, r *http.Request) {
	var req photosRequest
	if !readJSON(w, r, &req) {
		return
	}
	marker, err := h.device(r).DeliverPhotos(r.Context(), req.Photos)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, photosResponse{Marker: marker, Delivered: len(req.Photos)})
}

type submitRequest struct {
	Signature string `json:"signature"`
}

func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !readJSON(w, r, &req) {
		return
	}
	s := h.device(r)
	result, err := s.Submit(r.Context(), r.PathValue("vehicleId"), req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.timer(r).Reset(r.Context()); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (h *SessionHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.device(r).Discard(r.Context(), r.PathValue("vehicleId")); err != nil {
		writeError(w, err)
		return
	}
	if err := h.timer(r).Reset(r.Context()); err != nil {
		log.WithError(err).Warn("failed to reset timer after discard")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) Timer(w http.ResponseWriter, r *http.Request) {
	state, err := h.timer(r).State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *SessionHandler) StartTimer(w http.ResponseWriter, r *http.Request) {
	state, err := h.timer(r).Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// TimerStream pushes the timer state as server-sent events, one tick event
// per second and a single expired event when the budget runs out.
func (h *SessionHandler) TimerStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	t := h.timer(r)
	state, err := t.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, st timer.State) {
		data, err := json.Marshal(st)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}
	send("tick", state)

	device := middleware.DeviceFromContext(r.Context())
	last := state
	err = t.Run(r.Context(), func(st timer.State) {
		last = st
		send("tick", st)
	}, func() {
		log.WithFields(log.Fields{"device": device, "overtime_seconds": last.OvertimeSeconds}).Warn("inspection time budget expired")
		send("expired", last)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.WithError(err).WithField("device", device).Warn("timer stream stopped")
	}
}

func (h *SessionHandler) ResetTimer(w http.ResponseWriter, r *http.Request) {
	t := h.timer(r)
	if err := t.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	state, err := t.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *SessionHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	cat := h.sessions.Catalog()
	writeJSON(w, http.StatusOK, struct {
		Version    string `json:"version"`
		Categories any    `json:"categories"`
	}{cat.Version(), cat.Categories()})
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
