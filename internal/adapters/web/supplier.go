package web

import (
	"net/http"
	"strings"

	"cafeteria/internal/app"
	"cafeteria/internal/core"
)

// confirmationToken reads the supplier token from the X-Confirmation-Token
// header or the token query parameter.
func confirmationToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Confirmation-Token")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// apiResolveSupplierOrder handles GET /api/supplier/orders/{id}?token=...
// It shows the order the token grants access to without consuming the token.
func (h *Handler) apiResolveSupplierOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	token := confirmationToken(r)
	if token == "" {
		writeError(w, r, "confirmation token is required", "TOKEN_INVALID", http.StatusUnauthorized)
		return
	}
	view, err := h.svc.ResolveSupplierConfirmation(r.Context(), id, token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, view)
}

// supplierConfirmation is the body of a supplier's answer.
type supplierConfirmation struct {
	Token string                  `json:"token,omitempty" jsonschema:"description=Confirmation token from the e-mailed link; may be sent in X-Confirmation-Token instead"`
	Lines []core.LineAvailability `json:"lines" jsonschema:"required,minItems=1"`
}

// apiConfirmSupplierOrder handles POST /api/supplier/orders/{id}/confirm.
// Body: { token?, lines: [{line_id, availability}] }
func (h *Handler) apiConfirmSupplierOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body supplierConfirmation
	if !decodeJSON(w, r, &body) {
		return
	}
	token := strings.TrimSpace(body.Token)
	if token == "" {
		token = confirmationToken(r)
	}
	if token == "" {
		writeError(w, r, "confirmation token is required", "TOKEN_INVALID", http.StatusUnauthorized)
		return
	}
	result, err := h.svc.ConfirmPurchaseOrder(r.Context(), app.ConfirmPurchaseOrderRequest{
		OrderID: id,
		Token:   token,
		Lines:   body.Lines,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
