package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cafeteria/internal/app"
	webui "cafeteria/web"
)

// Options carries the optional collaborators of the HTTP surface.
type Options struct {
	AllowedOrigins string
	// JWTSecret verifies session tokens issued by the school's login service.
	JWTSecret string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc        app.ApplicationService
	router     chi.Router
	jwtSecret  string
	fileServer http.Handler
	logger     *slog.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	staticFS, err := fs.Sub(webui.Static, "static")
	if err != nil {
		panic("web/static embed sub-FS failed: " + err.Error())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		svc:        svc,
		jwtSecret:  opts.JWTSecret,
		fileServer: http.FileServer(http.FS(staticFS)),
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Health and metrics (public) ──────────────────────────────────────────
	r.Get("/api/health", h.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// ── Static files and token landing pages ─────────────────────────────────
	r.Get("/static/*", func(w http.ResponseWriter, req *http.Request) {
		http.StripPrefix("/static", h.fileServer).ServeHTTP(w, req)
	})
	r.Get("/confirmar", h.page("confirmar.html"))
	r.Get("/asistencia", h.page("asistencia.html"))

	// ── Request schemas (public) ─────────────────────────────────────────────
	r.Get("/api/schemas/supplier-confirmation", h.supplierConfirmationSchema)
	r.Get("/api/schemas/attendance", h.attendanceSchema)

	// ── Supplier confirmation (authorised by the confirmation token alone) ───
	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(64 << 10))
		r.Get("/api/supplier/orders/{id}", h.apiResolveSupplierOrder)
		r.Post("/api/supplier/orders/{id}/confirm", h.apiConfirmSupplierOrder)
	})

	// ── Protected API routes (session JWT) ───────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20))

		r.Get("/api/auth/me", h.me)

		// Attendance (teacher session; identity is checked against the token)
		r.Get("/api/attendance", h.apiResolveAttendance)
		r.Post("/api/attendance", h.apiRecordAttendance)

		// Staff only
		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin, RoleKitchen))

			// Procurement
			r.Get("/api/procurement/preview", h.apiPreview)
			r.Post("/api/procurement/generate", h.apiGenerate)

			// Purchase orders
			r.Get("/api/purchase-orders", h.apiListPurchaseOrders)
			r.Post("/api/purchase-orders", h.apiCreatePurchaseOrder)
			r.Get("/api/purchase-orders/{id}", h.apiGetPurchaseOrder)
			r.Post("/api/purchase-orders/{id}/approve", h.apiApprovePurchaseOrder)
			r.Post("/api/purchase-orders/{id}/cancel", h.apiCancelPurchaseOrder)

			r.Post("/api/attendance/tokens", h.apiIssueAttendanceToken)

			// Operations
			r.Get("/api/jobs", h.apiListJobs)
			r.Post("/api/jobs/{name}/run", h.apiRunJob)
			r.Get("/api/notifications/failed", h.apiFailedNotifications)
			r.Post("/api/notifications/{id}/resend", h.apiResendNotification)
		})
	})

	h.router = r
	return r
}

// health returns service status and the registered jobs.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string   `json:"status"`
		Jobs   []string `json:"jobs"`
	}
	writeJSON(w, response{Status: "ok", Jobs: h.svc.ListJobs(r.Context())})
}

// page serves one embedded HTML page; the page itself reads its token from the query string.
func (h *Handler) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(webui.Static, "static/"+name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		_, _ = w.Write(data)
	}
}

// pathID parses the {id} URL parameter and writes a 400 when it is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "invalid id "+chi.URLParam(r, "id"), "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
