package handlers

import (
	"net/http"
	"time"

	"github.com/ukydev/truck-inspection/internal/auth"
	"github.com/ukydev/truck-inspection/internal/dashboard"
	"github.com/ukydev/truck-inspection/internal/db"
	"github.com/ukydev/truck-inspection/internal/middleware"
	"github.com/ukydev/truck-inspection/internal/models"
	"github.com/ukydev/truck-inspection/internal/session"
)

// LoginLimit is the number of login attempts allowed per client per LoginWindow.
const (
	LoginLimit  = 10
	LoginWindow = time.Minute
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Auth      *auth.Service
	Users     db.UserCollection
	Sessions  *session.Service
	Dashboard *dashboard.Service
	Budget    time.Duration
	Health    func(r *http.Request) error
}

// NewRouter builds the API mux wrapped in the logging and device middleware.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	authMW := middleware.NewAuthMiddleware(d.Auth)
	limiter := middleware.NewRateLimitMiddleware()

	ah := NewAuthHandler(d.Auth, d.Users)
	mux.Handle("POST /api/auth/login", limiter.RateLimit(LoginLimit, LoginWindow)(http.HandlerFunc(ah.Login)))
	mux.Handle("POST /api/auth/register", authMW.Protect(models.PermManageUsers, http.HandlerFunc(ah.Register)))
	mux.Handle("GET /api/auth/profile", authMW.Authenticate(http.HandlerFunc(ah.GetProfile)))

	sh := NewSessionHandler(d.Sessions, d.Budget)
	mux.HandleFunc("POST /api/sessions", sh.Start)
	mux.HandleFunc("GET /api/sessions/{vehicleId}/form", sh.GetForm)
	mux.HandleFunc("PUT /api/sessions/{vehicleId}/form", sh.UpdateForm)
	mux.HandleFunc("GET /api/sessions/{vehicleId}/categories", sh.Categories)
	mux.HandleFunc("GET /api/sessions/{vehicleId}/checklist/{categoryId}", sh.Checklist)
	mux.HandleFunc("PATCH /api/sessions/{vehicleId}/checklist/{categoryId}/items/{itemId}", sh.UpdateItem)
	mux.HandleFunc("POST /api/sessions/{vehicleId}/checklist/{categoryId}/items/{itemId}/photo-request", sh.RequestPhoto)
	mux.HandleFunc("DELETE /api/sessions/{vehicleId}/checklist/{categoryId}/items/{itemId}/photos/{index}", sh.RemovePhoto)
	mux.HandleFunc("POST /api/camera/photos", sh.DeliverPhotos)
	mux.HandleFunc("POST /api/sessions/{vehicleId}/submit", sh.Submit)
	mux.HandleFunc("DELETE /api/sessions/{vehicleId}", sh.Discard)
	mux.HandleFunc("GET /api/timer", sh.Timer)
	mux.HandleFunc("GET /api/timer/stream", sh.TimerStream)
	mux.HandleFunc("POST /api/timer/start", sh.StartTimer)
	mux.HandleFunc("POST /api/timer/reset", sh.ResetTimer)
	mux.HandleFunc("GET /api/catalog", sh.Catalog)

	dh := NewDashboardHandler(d.Dashboard)
	view := func(h http.HandlerFunc) http.Handler { return authMW.Protect(models.PermViewDashboard, h) }
	mux.Handle("GET /api/dashboard", view(dh.Overview))
	mux.Handle("GET /api/dashboard/inspections", view(dh.Inspections))
	mux.Handle("GET /api/dashboard/inspections/{id}", view(dh.Details))
	mux.Handle("GET /api/dashboard/alerts", view(dh.Alerts))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			if err := d.Health(r); err != nil {
				http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return middleware.Logger(middleware.Device(mux))
}
