package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// apiListJobs handles GET /api/jobs.
func (h *Handler) apiListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.ListJobs(r.Context()))
}

// apiRunJob handles POST /api/jobs/{name}/run. The job runs synchronously;
// 409 is returned while the same job is already executing.
func (h *Handler) apiRunJob(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunJob(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiFailedNotifications handles GET /api/notifications/failed.
func (h *Handler) apiFailedNotifications(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.FailedNotifications(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Deliveries)
}

// apiResendNotification handles POST /api/notifications/{id}/resend.
func (h *Handler) apiResendNotification(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ResendNotification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, d)
}
