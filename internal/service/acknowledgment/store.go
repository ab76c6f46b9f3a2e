package acknowledgment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
)

// StorageKey is the slot holding the JSON array of acknowledged item ids.
const StorageKey = "viewedLowStockIds"

// BaselineKey is the slot holding the statuses of the last applied snapshot,
// so a restart can tell whether an item changed while the process was down.
const BaselineKey = "lastSeenStatuses"

// ErrPersistence marks a failed read or write of the underlying slot. The
// in-memory set stays authoritative for the running process.
var ErrPersistence = errors.New("acknowledgment persistence failed")

// Slot is the durable key-value storage the store writes through to.
type Slot interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Store owns the set of item ids the user has acknowledged while the item was
// in a degraded status.
type Store struct {
	slot   Slot
	logger *zap.Logger

	// persistMu orders slot writes so the slot always ends with the latest set.
	persistMu sync.Mutex
	baseline  map[models.ItemID]models.StockStatus

	mu  sync.RWMutex
	ids map[models.ItemID]struct{}
}

// NewStore builds an empty store. Call Load to pick up persisted state.
func NewStore(slot Slot, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		slot:   slot,
		logger: logger,
		ids:    make(map[models.ItemID]struct{}),
	}
}

// Load replaces the in-memory set with the persisted one. Missing, unreadable
// or corrupt data yields an empty set; it is logged and never returned as an
// error.
func (s *Store) Load(ctx context.Context) []models.ItemID {
	loaded := make(map[models.ItemID]struct{})

	raw, found, err := s.slot.Read(ctx, StorageKey)
	switch {
	case err != nil:
		s.logger.Error("failed to read acknowledgments, starting empty", zap.Error(err))
	case !found || len(raw) == 0:
		s.logger.Debug("no persisted acknowledgments")
	default:
		var ids []models.ItemID
		if err := json.Unmarshal(raw, &ids); err != nil {
			s.logger.Warn("corrupt acknowledgment data, starting empty", zap.Error(err))
			break
		}
		for _, id := range ids {
			if id != "" {
				loaded[id] = struct{}{}
			}
		}
	}

	s.mu.Lock()
	s.ids = loaded
	s.mu.Unlock()

	s.logger.Info("acknowledgments loaded", zap.Int("count", len(loaded)))
	return s.IDs()
}

// Has reports whether id is acknowledged.
func (s *Store) Has(id models.ItemID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// IDs returns the acknowledged ids in sorted order.
func (s *Store) IDs() []models.ItemID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Len returns the number of acknowledged ids.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Add acknowledges ids and persists the set once.
func (s *Store) Add(ctx context.Context, ids ...models.ItemID) error {
	return s.mutate(ctx, func(set map[models.ItemID]struct{}) bool {
		changed := false
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, ok := set[id]; !ok {
				set[id] = struct{}{}
				changed = true
			}
		}
		return changed
	})
}

// Remove clears ids from the set and persists it once.
func (s *Store) Remove(ctx context.Context, ids ...models.ItemID) error {
	return s.mutate(ctx, func(set map[models.ItemID]struct{}) bool {
		changed := false
		for _, id := range ids {
			if _, ok := set[id]; ok {
				delete(set, id)
				changed = true
			}
		}
		return changed
	})
}

// Save writes the current set to the slot, overwriting what was there.
func (s *Store) Save(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	ids := s.sortedLocked()
	s.mu.RUnlock()
	return s.persist(ctx, ids)
}

func (s *Store) mutate(ctx context.Context, apply func(map[models.ItemID]struct{}) bool) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if !apply(s.ids) {
		s.mu.Unlock()
		return nil
	}
	ids := s.sortedLocked()
	s.mu.Unlock()

	return s.persist(ctx, ids)
}

// LoadBaseline returns the statuses recorded by the last SaveBaseline as a
// snapshot with sequence 0, or nil when nothing usable was persisted.
func (s *Store) LoadBaseline(ctx context.Context) *models.Snapshot {
	raw, found, err := s.slot.Read(ctx, BaselineKey)
	if err != nil {
		s.logger.Error("failed to read status baseline", zap.Error(err))
		return nil
	}
	if !found || len(raw) == 0 {
		return nil
	}

	var statuses map[models.ItemID]models.StockStatus
	if err := json.Unmarshal(raw, &statuses); err != nil {
		s.logger.Warn("corrupt status baseline, ignoring it", zap.Error(err))
		return nil
	}

	items := make([]models.InventoryItem, 0, len(statuses))
	for id, status := range statuses {
		items = append(items, models.InventoryItem{ID: id, Status: status})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	snap, err := models.NewSnapshot(items, 0, time.Time{})
	if err != nil {
		s.logger.Warn("invalid status baseline, ignoring it", zap.Error(err))
		return nil
	}

	s.persistMu.Lock()
	s.baseline = statuses
	s.persistMu.Unlock()

	s.logger.Info("status baseline loaded", zap.Int("items", len(statuses)))
	return snap
}

// SaveBaseline records the status of every item in snap. Nothing is written
// when the statuses match the last saved baseline.
func (s *Store) SaveBaseline(ctx context.Context, snap *models.Snapshot) error {
	next := make(map[models.ItemID]models.StockStatus, snap.Len())
	for _, item := range snap.Items() {
		next[item.ID] = item.Status
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.baseline != nil && maps.Equal(s.baseline, next) {
		return nil
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode baseline: %w", ErrPersistence, err)
	}
	if err := s.slot.Write(ctx, BaselineKey, encoded); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.baseline = next
	return nil
}

func (s *Store) persist(ctx context.Context, ids []models.ItemID) error {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	if err := s.slot.Write(ctx, StorageKey, encoded); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) sortedLocked() []models.ItemID {
	ids := make([]models.ItemID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
