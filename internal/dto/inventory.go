package dto

// AdjustStockRequest defines the payload for a manual ledger credit, used
// to seed opening balances at the entry stages.
type AdjustStockRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Stage     string `json:"stage" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UnitCost  string `json:"unitCost" validate:"required"`
}
