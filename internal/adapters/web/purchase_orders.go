package web

import (
	"net/http"

	"cafeteria/internal/app"
	"cafeteria/internal/core"
)

// apiPreview handles GET /api/procurement/preview?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *Handler) apiPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	plan, err := h.svc.PreviewProcurement(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, plan)
}

// apiGenerate handles POST /api/procurement/generate.
// Body: { start, end }
func (h *Handler) apiGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.GenerateOrders(r.Context(), app.GenerateOrdersRequest{
		Start:     body.Start,
		End:       body.End,
		CreatedBy: actor(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result)
}

// apiListPurchaseOrders handles GET /api/purchase-orders?state=PENDING.
func (h *Handler) apiListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListPurchaseOrders(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Orders)
}

// apiCreatePurchaseOrder handles POST /api/purchase-orders.
// Body: { supplier_id, lines: [{insumo_id, quantity, unit?}] }
func (h *Handler) apiCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SupplierID int               `json:"supplier_id"`
		Lines      []core.ManualLine `json:"lines"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.SupplierID <= 0 {
		writeError(w, r, "supplier_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if len(body.Lines) == 0 {
		writeError(w, r, "at least one line is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.CreatePurchaseOrder(r.Context(), app.CreatePurchaseOrderRequest{
		SupplierID: body.SupplierID,
		CreatedBy:  actor(r),
		Lines:      body.Lines,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Order)
}

// apiGetPurchaseOrder handles GET /api/purchase-orders/{id}.
func (h *Handler) apiGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}

// apiApprovePurchaseOrder handles POST /api/purchase-orders/{id}/approve.
// A failed supplier notification does not fail the request; it is reported in the body.
func (h *Handler) apiApprovePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ApprovePurchaseOrder(r.Context(), id, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCancelPurchaseOrder handles POST /api/purchase-orders/{id}/cancel.
// Body: { reason }
func (h *Handler) apiCancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.CancelPurchaseOrder(r.Context(), id, body.Reason, actor(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Order)
}
