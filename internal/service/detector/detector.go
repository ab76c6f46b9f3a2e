// Package detector diffs consecutive inventory snapshots and decides which
// items need a fresh stock alert.
package detector

import "github.com/mamadbah2/stockwatch/internal/domain/models"

// Acknowledged answers whether an item's current degradation was already seen.
type Acknowledged interface {
	Has(id models.ItemID) bool
}

// Queued answers whether an item is already waiting for, or in, presentation.
type Queued interface {
	Contains(id models.ItemID) bool
}

// Result is the outcome of one detection pass.
type Result struct {
	// Alerts are the items to enqueue, in snapshot order.
	Alerts []models.InventoryItem
	// Rearm are acknowledged ids whose status changed; they must be cleared
	// from the acknowledgment set.
	Rearm []models.ItemID
}

// Detect classifies every item of current against previous.
//
// previous is nil on a first fetch with no persisted baseline. In that case
// there is no evidence of a change, so acknowledged items stay acknowledged. An item that
// is missing from a non-nil previous snapshot counts as a status change.
func Detect(previous, current *models.Snapshot, acked Acknowledged, queued Queued) Result {
	var res Result
	if current == nil {
		return res
	}

	for _, item := range current.Items() {
		changed := statusChanged(previous, item)
		isAcked := acked != nil && acked.Has(item.ID)

		if !item.Status.Degraded() {
			// Recovered: no notification, and a stale acknowledgment must not
			// hide the next degradation.
			if isAcked && changed {
				res.Rearm = append(res.Rearm, item.ID)
			}
			continue
		}

		if isAcked {
			if !changed {
				continue
			}
			res.Rearm = append(res.Rearm, item.ID)
		}

		if queued != nil && queued.Contains(item.ID) {
			continue
		}
		res.Alerts = append(res.Alerts, item)
	}

	return res
}

func statusChanged(previous *models.Snapshot, item models.InventoryItem) bool {
	if previous == nil {
		return false
	}
	prior, ok := previous.Get(item.ID)
	if !ok {
		return true
	}
	return prior.Status != item.Status
}

// Stale returns the acknowledged ids that no longer appear in current. A
// product that comes back later is absent from the previous snapshot and so
// alerts as a change anyway.
func Stale(acknowledged []models.ItemID, current *models.Snapshot) []models.ItemID {
	if current == nil {
		return nil
	}
	var stale []models.ItemID
	for _, id := range acknowledged {
		if _, ok := current.Get(id); !ok {
			stale = append(stale, id)
		}
	}
	return stale
}
