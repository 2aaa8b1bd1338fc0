package web

import (
	"net/http"

	"github.com/invopop/jsonschema"
)

func reflectSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

var (
	confirmationSchemaDoc = reflectSchema(&supplierConfirmation{})
	attendanceSchemaDoc   = reflectSchema(&attendanceSubmission{})
)

// supplierConfirmationSchema handles GET /api/schemas/supplier-confirmation.
func (h *Handler) supplierConfirmationSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, confirmationSchemaDoc)
}

// attendanceSchema handles GET /api/schemas/attendance.
func (h *Handler) attendanceSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, attendanceSchemaDoc)
}
