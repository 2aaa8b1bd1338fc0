package core

// Supplier is a proveedor that can be sent purchase orders.
type Supplier struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}

// SupplierRating is how well a supplier serves one insumo.
type SupplierRating struct {
	SupplierID int        `json:"supplier_id"`
	InsumoID   int        `json:"insumo_id"`
	Tier       RatingTier `json:"rating_tier"`
}

// Teacher is a docente who records attendance for a class through a token link.
type Teacher struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
}
