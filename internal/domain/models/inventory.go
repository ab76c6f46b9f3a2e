package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StockStatus mirrors the status codes reported by the inventory backend.
type StockStatus int

const (
	StatusUnknown    StockStatus = 0
	StatusOutOfStock StockStatus = 1
	StatusLowStock   StockStatus = 2
	StatusInStock    StockStatus = 3
)

// Label returns the human readable status used in tables and filters.
func (s StockStatus) Label() string {
	switch s {
	case StatusOutOfStock:
		return "Out of Stock"
	case StatusLowStock:
		return "Low Stock"
	case StatusInStock:
		return "In Stock"
	default:
		return "Unknown"
	}
}

func (s StockStatus) String() string {
	return s.Label()
}

// Degraded reports whether the status warrants a stock alert.
func (s StockStatus) Degraded() bool {
	return s == StatusOutOfStock || s == StatusLowStock
}

// ParseStockStatus accepts numeric codes ("2") and labels ("Low-Stock", "low stock").
func ParseStockStatus(value string) StockStatus {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if code, err := strconv.Atoi(normalized); err == nil {
		return statusFromCode(code)
	}

	normalized = strings.NewReplacer("-", "", "_", "", " ", "").Replace(normalized)
	switch normalized {
	case "outofstock":
		return StatusOutOfStock
	case "lowstock":
		return StatusLowStock
	case "instock":
		return StatusInStock
	default:
		return StatusUnknown
	}
}

func statusFromCode(code int) StockStatus {
	switch StockStatus(code) {
	case StatusOutOfStock, StatusLowStock, StatusInStock:
		return StockStatus(code)
	default:
		return StatusUnknown
	}
}

// MarshalJSON keeps the backend's numeric wire format.
func (s StockStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON decodes either the numeric code or a status label.
// Anything unrecognised, including null, becomes StatusUnknown.
func (s *StockStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = StatusUnknown
		return nil
	}

	if data[0] == '"' {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return fmt.Errorf("decode status label: %w", err)
		}
		*s = ParseStockStatus(label)
		return nil
	}

	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		*s = StatusUnknown
		return nil
	}
	*s = statusFromCode(code)
	return nil
}

// DeriveStatus computes the status the backend is expected to report for the
// given stock level.
func DeriveStatus(quantity, threshold int) StockStatus {
	switch {
	case quantity <= 0:
		return StatusOutOfStock
	case quantity < threshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// ItemID is the product identifier normalized to its string form, so that
// 7 and "7" name the same product.
type ItemID string

// UnmarshalJSON accepts JSON strings and numbers.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("decode item id: %w", err)
		}
		*id = ItemID(strings.TrimSpace(value))
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("decode item id: %w", err)
	}
	*id = ItemID(number.String())
	return nil
}

func (id ItemID) String() string {
	return string(id)
}

// InventoryItem is one product as observed in a single fetch.
type InventoryItem struct {
	ID        ItemID      `json:"id"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	Threshold int         `json:"threshold"`
	Status    StockStatus `json:"status"`
}

// Consistent reports whether the reported status matches DeriveStatus.
func (i InventoryItem) Consistent() bool {
	return i.Status == DeriveStatus(i.Quantity, i.Threshold)
}

// Snapshot is the full item list returned by one successful fetch.
type Snapshot struct {
	Sequence  uint64
	FetchedAt time.Time

	items []InventoryItem
	index map[ItemID]int
}

// NewSnapshot indexes items by id, keeping the server's ordering. Duplicate
// ids are rejected.
func NewSnapshot(items []InventoryItem, sequence uint64, fetchedAt time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		Sequence:  sequence,
		FetchedAt: fetchedAt,
		items:     make([]InventoryItem, 0, len(items)),
		index:     make(map[ItemID]int, len(items)),
	}

	for _, item := range items {
		if _, exists := snap.index[item.ID]; exists {
			return nil, fmt.Errorf("duplicate item id %q", item.ID)
		}
		snap.index[item.ID] = len(snap.items)
		snap.items = append(snap.items, item)
	}

	return snap, nil
}

// Items returns a copy of the items in server order.
func (s *Snapshot) Items() []InventoryItem {
	if s == nil {
		return nil
	}
	out := make([]InventoryItem, len(s.items))
	copy(out, s.items)
	return out
}

// Get looks an item up by id.
func (s *Snapshot) Get(id ItemID) (InventoryItem, bool) {
	if s == nil {
		return InventoryItem{}, false
	}
	idx, ok := s.index[id]
	if !ok {
		return InventoryItem{}, false
	}
	return s.items[idx], true
}

// Len returns the number of items in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}
