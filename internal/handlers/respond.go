package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/truck-inspection/internal/catalog"
	"github.com/ukydev/truck-inspection/internal/dashboard"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/draft"
	"github.com/ukydev/truck-inspection/internal/relay"
	"github.com/ukydev/truck-inspection/internal/session"
	"github.com/ukydev/truck-inspection/internal/submission"
)

const maxBodyBytes = 16 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

// readJSON decodes the request body into v, writing a 400 on failure.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// validationBody is the 422 payload of a rejected submission.
type validationBody struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing"`
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var verr *submission.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, validationBody{Error: verr.Error(), Missing: verr.Missing})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidVehicle),
		errors.Is(err, submission.ErrInvalidTruck),
		errors.Is(err, session.ErrInvalidUpdate),
		errors.Is(err, session.ErrInvalidPhoto),
		errors.Is(err, relay.ErrNoPhotos),
		errors.Is(err, dashboard.ErrInvalidFilter):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNoDraft),
		errors.Is(err, session.ErrUnknownItem),
		errors.Is(err, session.ErrPhotoIndex),
		errors.Is(err, submission.ErrUnknownItem),
		errors.Is(err, catalog.ErrUnknownCategory),
		errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, submission.ErrNotFinishable),
		errors.Is(err, session.ErrNoPendingRequest):
		status = http.StatusConflict
	case draft.IsStorageError(err):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		if status == http.StatusInternalServerError {
			http.Error(w, "Internal server error", status)
			return
		}
	}
	http.Error(w, err.Error(), status)
}
