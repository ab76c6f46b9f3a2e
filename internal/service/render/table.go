package render

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
)

// EmptyMessage is shown when the inventory has no items.
const EmptyMessage = "No inventory items found."

// ErrNotFound is returned when a row is not part of the current view.
var ErrNotFound = errors.New("inventory item not found")

// Badge is the visual class attached to a status.
type Badge string

const (
	BadgeDanger    Badge = "danger"
	BadgeWarning   Badge = "warning"
	BadgeSuccess   Badge = "success"
	BadgeSecondary Badge = "secondary"
)

// BadgeFor maps every status onto a badge.
func BadgeFor(status models.StockStatus) Badge {
	switch status {
	case models.StatusOutOfStock:
		return BadgeDanger
	case models.StatusLowStock:
		return BadgeWarning
	case models.StatusInStock:
		return BadgeSuccess
	default:
		return BadgeSecondary
	}
}

// Row is one rendered table line.
type Row struct {
	ID        models.ItemID `json:"id"`
	Name      string        `json:"name"`
	Quantity  int           `json:"quantity"`
	Threshold int           `json:"threshold"`
	Status    string        `json:"status"`
	Badge     Badge         `json:"badge"`
	Viewed    bool          `json:"viewed"`
}

// TableView is the rendered inventory table.
type TableView struct {
	Rows       []Row     `json:"rows"`
	Empty      bool      `json:"empty"`
	Message    string    `json:"message,omitempty"`
	Sequence   uint64    `json:"sequence"`
	FetchedAt  time.Time `json:"fetched_at"`
	RenderedAt time.Time `json:"rendered_at"`
}

// Filter returns a copy of the view with only rows whose status label matches
// (case-insensitive). An empty label keeps every row.
func (v TableView) Filter(statusLabel string) TableView {
	label := strings.TrimSpace(statusLabel)
	if label == "" {
		return v
	}

	out := v
	out.Rows = nil
	for _, row := range v.Rows {
		if strings.EqualFold(row.Status, label) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Search returns a copy of the view with only rows whose name, id or status
// contains query (case-insensitive). An empty query keeps every row.
func (v TableView) Search(query string) TableView {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return v
	}

	out := v
	out.Rows = nil
	for _, row := range v.Rows {
		if strings.Contains(strings.ToLower(row.Name), needle) ||
			strings.Contains(strings.ToLower(string(row.ID)), needle) ||
			strings.Contains(strings.ToLower(row.Status), needle) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Row returns the row for id.
func (v TableView) Row(id models.ItemID) (Row, error) {
	for _, row := range v.Rows {
		if row.ID == id {
			return row, nil
		}
	}
	return Row{}, ErrNotFound
}

// Viewed reports acknowledgment state for the viewed column.
type Viewed interface {
	Has(id models.ItemID) bool
}

// Table rebuilds the table from scratch on every Render and keeps the latest
// view for readers.
type Table struct {
	viewed Viewed
	now    func() time.Time

	mu   sync.RWMutex
	last *models.Snapshot
	view TableView
}

// NewTable builds a renderer. viewed may be nil.
func NewTable(viewed Viewed) *Table {
	return &Table{
		viewed: viewed,
		now:    time.Now,
		view:   TableView{Empty: true, Message: EmptyMessage},
	}
}

// Render replaces the current view with one built from snap. It never mutates
// snap and is safe to call redundantly.
func (t *Table) Render(snap *models.Snapshot) TableView {
	view := TableView{RenderedAt: t.now().UTC()}
	if snap != nil {
		view.Sequence = snap.Sequence
		view.FetchedAt = snap.FetchedAt
	}

	for _, item := range snap.Items() {
		view.Rows = append(view.Rows, Row{
			ID:        item.ID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Threshold: item.Threshold,
			Status:    item.Status.Label(),
			Badge:     BadgeFor(item.Status),
			Viewed:    t.viewed != nil && item.Status.Degraded() && t.viewed.Has(item.ID),
		})
	}
	if len(view.Rows) == 0 {
		view.Empty = true
		view.Message = EmptyMessage
	}

	t.mu.Lock()
	t.last = snap
	t.view = view
	t.mu.Unlock()

	return view
}

// Refresh re-renders the last snapshot, e.g. after acknowledgments changed.
func (t *Table) Refresh() TableView {
	t.mu.RLock()
	last := t.last
	t.mu.RUnlock()
	return t.Render(last)
}

// View returns the most recent rendering.
func (t *Table) View() TableView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}
