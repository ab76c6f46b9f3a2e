package models

import "time"

// Presentation is a single alert "modal": one item in single mode, the whole
// queue in batch mode.
type Presentation struct {
	ID          string          `json:"id"`
	Items       []InventoryItem `json:"items"`
	PresentedAt time.Time       `json:"presented_at"`
}

// IDs returns the item ids shown in the presentation.
func (p Presentation) IDs() []ItemID {
	ids := make([]ItemID, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// StockAlert is the payload pushed to outbound notifiers when an item is
// queued for alerting.
type StockAlert struct {
	ItemID     ItemID    `json:"item_id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	Threshold  int       `json:"threshold"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewStockAlert builds the notification payload for an item.
func NewStockAlert(item InventoryItem, detectedAt time.Time) StockAlert {
	return StockAlert{
		ItemID:     item.ID,
		Name:       item.Name,
		Quantity:   item.Quantity,
		Threshold:  item.Threshold,
		Status:     item.Status.Label(),
		StatusCode: int(item.Status),
		DetectedAt: detectedAt,
	}
}
