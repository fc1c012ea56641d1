package handlers

import (
	"net/http"
	"strconv"

	"github.com/ukydev/truck-inspection/internal/dashboard"
	"github.com/ukydev/truck-inspection/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultRecent is the size of the recent inspections list of the overview.
const DefaultRecent = 10

// DashboardHandler serves the read-only dashboard queries.
type DashboardHandler struct {
	dashboard *dashboard.Service
}

func NewDashboardHandler(svc *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{dashboard: svc}
}

// Overview returns stats, category stats, timeline, recent inspections and alerts.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	recent, ok := queryInt(w, r, "recent", DefaultRecent)
	if !ok {
		return
	}
	ov, err := h.dashboard.Overview(r.Context(), recent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// Inspections lists the history table, filtered by ?status= and ?q=.
func (h *DashboardHandler) Inspections(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	q := r.URL.Query()
	rows, err := h.dashboard.Inspections(r.Context(), dashboard.Filter{
		Status: models.InspectionStatus(q.Get("status")),
		Search: q.Get("q"),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *DashboardHandler) Details(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !primitive.IsValidObjectID(id) {
		http.Error(w, "Invalid inspection id", http.StatusBadRequest)
		return
	}
	d, err := h.dashboard.Details(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DashboardHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", dashboard.AlertLimit)
	if !ok {
		return
	}
	alerts, err := h.dashboard.Alerts(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
