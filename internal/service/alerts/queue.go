package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
)

// ErrNothingToAcknowledge is returned when Acknowledge gets no ids while no
// presentation is active.
var ErrNothingToAcknowledge = errors.New("nothing to acknowledge")

// Mode decides how much of the queue one presentation shows.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

// State is the presenter state.
type State string

const (
	StateIdle       State = "idle"
	StatePresenting State = "presenting"
)

// Acknowledger records acknowledged ids durably.
type Acknowledger interface {
	Add(ctx context.Context, ids ...models.ItemID) error
}

// Status is a point-in-time view of the queue for the HTTP layer.
type Status struct {
	State   State                `json:"state"`
	Pending int                  `json:"pending"`
	Current *models.Presentation `json:"current,omitempty"`
}

// Queue holds alerts awaiting presentation and the presentation currently
// shown. At most one presentation is active; the only way out of it is an
// explicit Acknowledge.
type Queue struct {
	mode   Mode
	acks   Acknowledger
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	pending []models.InventoryItem
	queued  map[models.ItemID]struct{}
	active  *models.Presentation
}

// NewQueue builds an idle, empty queue.
func NewQueue(mode Mode, acks Acknowledger, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode != ModeBatch {
		mode = ModeSingle
	}
	return &Queue{
		mode:   mode,
		acks:   acks,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
		queued: make(map[models.ItemID]struct{}),
	}
}

// Enqueue appends items that are neither pending nor on screen, preserving
// arrival order, and returns the ones actually added.
func (q *Queue) Enqueue(items []models.InventoryItem) []models.InventoryItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var added []models.InventoryItem
	for _, item := range items {
		if q.containsLocked(item.ID) {
			continue
		}
		q.pending = append(q.pending, item)
		q.queued[item.ID] = struct{}{}
		added = append(added, item)
	}

	if len(added) > 0 {
		q.logger.Info("alerts queued", zap.Int("added", len(added)), zap.Int("pending", len(q.pending)))
	}
	return added
}

// PresentNext starts the next presentation. It is a no-op while one is
// already active or the queue is empty.
func (q *Queue) PresentNext() (models.Presentation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.presentNextLocked()
}

// Acknowledge records ids as viewed. Once every item of the active
// presentation is acknowledged it closes and the next one is presented
// immediately; otherwise the active presentation, minus the acknowledged
// items, is returned. With no ids the active presentation's items are
// acknowledged. A persistence failure is logged and does not stop the queue
// from advancing.
func (q *Queue) Acknowledge(ctx context.Context, ids []models.ItemID) (models.Presentation, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ids) == 0 && q.active != nil {
		ids = q.active.IDs()
	}
	if len(ids) == 0 {
		return models.Presentation{}, false, ErrNothingToAcknowledge
	}

	if q.acks != nil {
		if err := q.acks.Add(ctx, ids...); err != nil {
			q.logger.Error("failed to persist acknowledgment, item may alert again", zap.Error(err), zap.Any("ids", ids))
		}
	}

	q.dropPendingLocked(ids)

	if q.active != nil {
		if remaining := withoutIDs(q.active.Items, ids); len(remaining) > 0 {
			// Items on screen that were not acknowledged keep the
			// presentation open.
			q.active.Items = remaining
			return clonePresentation(*q.active), true, nil
		}
		q.logger.Info("presentation acknowledged", zap.String("presentation_id", q.active.ID), zap.Any("ids", ids))
		q.active = nil
	}

	next, ok := q.presentNextLocked()
	return next, ok, nil
}

// Current returns the active presentation.
func (q *Queue) Current() (models.Presentation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active == nil {
		return models.Presentation{}, false
	}
	return clonePresentation(*q.active), true
}

// Contains reports whether id is pending or currently presented.
func (q *Queue) Contains(id models.ItemID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.containsLocked(id)
}

// Pending returns the number of alerts waiting behind the active presentation.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// State reports whether a presentation is active.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.active != nil {
		return StatePresenting
	}
	return StateIdle
}

// Status returns the state, queue depth and active presentation together.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{State: StateIdle, Pending: len(q.pending)}
	if q.active != nil {
		current := clonePresentation(*q.active)
		st.State = StatePresenting
		st.Current = &current
	}
	return st
}

// Retain drops pending alerts for which keep returns false and returns how
// many were dropped. The active presentation is never touched.
func (q *Queue) Retain(keep func(models.InventoryItem) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.pending[:0]
	dropped := 0
	for _, item := range q.pending {
		if keep(item) {
			kept = append(kept, item)
			continue
		}
		delete(q.queued, item.ID)
		dropped++
	}
	q.pending = kept
	return dropped
}

func (q *Queue) presentNextLocked() (models.Presentation, bool) {
	if q.active != nil || len(q.pending) == 0 {
		return models.Presentation{}, false
	}

	var batch []models.InventoryItem
	if q.mode == ModeBatch {
		batch = q.pending
		q.pending = nil
	} else {
		batch = []models.InventoryItem{q.pending[0]}
		q.pending = append([]models.InventoryItem(nil), q.pending[1:]...)
	}
	for _, item := range batch {
		delete(q.queued, item.ID)
	}

	q.active = &models.Presentation{
		ID:          q.newID(),
		Items:       batch,
		PresentedAt: q.now().UTC(),
	}

	q.logger.Info("presenting stock alert",
		zap.String("presentation_id", q.active.ID),
		zap.Any("ids", q.active.IDs()),
		zap.Int("remaining", len(q.pending)))

	return clonePresentation(*q.active), true
}

func (q *Queue) dropPendingLocked(ids []models.ItemID) {
	drop := make(map[models.ItemID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := q.pending[:0]
	for _, item := range q.pending {
		if _, ok := drop[item.ID]; ok {
			delete(q.queued, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	q.pending = kept
}

func withoutIDs(items []models.InventoryItem, ids []models.ItemID) []models.InventoryItem {
	drop := make(map[models.ItemID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	var kept []models.InventoryItem
	for _, item := range items {
		if _, ok := drop[item.ID]; !ok {
			kept = append(kept, item)
		}
	}
	return kept
}

func (q *Queue) containsLocked(id models.ItemID) bool {
	if _, ok := q.queued[id]; ok {
		return true
	}
	if q.active != nil {
		for _, item := range q.active.Items {
			if item.ID == id {
				return true
			}
		}
	}
	return false
}

func clonePresentation(p models.Presentation) models.Presentation {
	p.Items = append([]models.InventoryItem(nil), p.Items...)
	return p
}
