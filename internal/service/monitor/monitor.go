// Package monitor runs the low-stock alert cycle: fetch a snapshot, render
// the table, detect transitions, queue alerts and present them one at a time.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
	"github.com/mamadbah2/stockwatch/internal/metrics"
	"github.com/mamadbah2/stockwatch/internal/service/acknowledgment"
	"github.com/mamadbah2/stockwatch/internal/service/alerts"
	"github.com/mamadbah2/stockwatch/internal/service/detector"
	"github.com/mamadbah2/stockwatch/internal/service/render"
	"github.com/mamadbah2/stockwatch/pkg/clients/inventory"
)

// ErrPollInFlight is returned when a poll is requested while another one has
// not finished.
var ErrPollInFlight = errors.New("inventory poll already in flight")

// Fetcher loads the current inventory snapshot.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// RemoteAcker mirrors acknowledgments to the inventory backend.
type RemoteAcker interface {
	MarkAlertViewed(ctx context.Context, id models.ItemID) error
}

// Notifier receives alerts as they are queued.
type Notifier interface {
	Notify(ctx context.Context, alerts []models.StockAlert) error
}

// Options carries the optional collaborators.
type Options struct {
	RemoteAck     RemoteAcker
	Notifier      Notifier
	NotifyTimeout time.Duration
	Metrics       *metrics.Metrics
}

// Monitor owns the previous-snapshot reference and serializes every mutation
// of the acknowledgment set and the alert queue.
type Monitor struct {
	fetcher Fetcher
	acks    *acknowledgment.Store
	queue   *alerts.Queue
	table   *render.Table
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	inFlight atomic.Bool
	bg       sync.WaitGroup

	mu             sync.Mutex
	current        *models.Snapshot
	baselineLoaded bool
}

// New wires a monitor.
func New(fetcher Fetcher, acks *acknowledgment.Store, queue *alerts.Queue, table *render.Table, opts Options, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Monitor{
		fetcher: fetcher,
		acks:    acks,
		queue:   queue,
		table:   table,
		opts:    opts,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Poll runs one alert cycle. A failed fetch leaves the previous snapshot,
// the acknowledgment set and the queue untouched.
func (m *Monitor) Poll(ctx context.Context) error {
	if !m.inFlight.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer m.inFlight.Store(false)

	snap, err := m.fetcher.FetchSnapshot(ctx)
	if err != nil {
		m.recordFetchFailure(err)
		return err
	}
	m.metrics.Fetches.WithLabelValues(metrics.FetchSuccess).Inc()
	m.metrics.LastFetchSuccess.Set(float64(m.now().Unix()))

	added, presented, ok := m.apply(ctx, snap)
	if !ok {
		return nil
	}

	if len(added) > 0 {
		m.notify(ctx, added)
	}
	if presented != nil {
		m.logger.Info("stock alert ready for acknowledgment",
			zap.String("presentation_id", presented.ID),
			zap.Int("items", len(presented.Items)))
	}
	return nil
}

func (m *Monitor) apply(ctx context.Context, snap *models.Snapshot) ([]models.InventoryItem, *models.Presentation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && snap.Sequence != 0 && snap.Sequence <= m.current.Sequence {
		m.logger.Warn("discarding out-of-order snapshot",
			zap.Uint64("sequence", snap.Sequence),
			zap.Uint64("current_sequence", m.current.Sequence))
		return nil, nil, false
	}

	previous := m.current
	if previous == nil && !m.baselineLoaded {
		// Statuses persisted by the previous run catch changes made while
		// the process was down.
		previous = m.acks.LoadBaseline(ctx)
		m.baselineLoaded = true
	}
	m.current = snap
	m.table.Render(snap)
	m.recordSnapshot(snap)

	res := detector.Detect(previous, snap, m.acks, m.queue)
	stale := detector.Stale(m.acks.IDs(), snap)

	if len(res.Rearm) > 0 || len(stale) > 0 {
		if err := m.acks.Remove(ctx, append(res.Rearm, stale...)...); err != nil {
			m.logger.Error("failed to persist re-armed acknowledgments", zap.Error(err))
		}
		if len(res.Rearm) > 0 {
			m.metrics.Rearmed.Add(float64(len(res.Rearm)))
			m.logger.Info("acknowledgments re-armed", zap.Any("ids", res.Rearm))
		}
		if len(stale) > 0 {
			m.logger.Info("pruned acknowledgments for removed items", zap.Any("ids", stale))
		}
		m.table.Refresh()
	}
	if err := m.acks.SaveBaseline(ctx, snap); err != nil {
		m.logger.Error("failed to persist status baseline", zap.Error(err))
	}

	if dropped := m.queue.Retain(func(item models.InventoryItem) bool {
		latest, ok := snap.Get(item.ID)
		return ok && latest.Status.Degraded()
	}); dropped > 0 {
		m.logger.Info("dropped recovered items from alert queue", zap.Int("dropped", dropped))
	}

	added := m.queue.Enqueue(res.Alerts)
	m.metrics.AlertsQueued.Add(float64(len(added)))

	var presented *models.Presentation
	if p, ok := m.queue.PresentNext(); ok {
		presented = &p
	}
	m.updateQueueGauges()

	m.logger.Debug("inventory snapshot applied",
		zap.Uint64("sequence", snap.Sequence),
		zap.Int("items", snap.Len()),
		zap.Int("new_alerts", len(added)))

	return added, presented, true
}

// Acknowledge marks ids as viewed (the active presentation's ids when empty)
// and returns the presentation on screen afterwards, if any.
func (m *Monitor) Acknowledge(ctx context.Context, ids []models.ItemID) (models.Presentation, bool, error) {
	m.mu.Lock()
	if len(ids) == 0 {
		if current, ok := m.queue.Current(); ok {
			ids = current.IDs()
		}
	}
	next, ok, err := m.queue.Acknowledge(ctx, ids)
	if err != nil {
		m.mu.Unlock()
		return models.Presentation{}, false, err
	}
	m.table.Refresh()
	m.updateQueueGauges()
	m.mu.Unlock()

	m.metrics.Acknowledgments.Add(float64(len(ids)))
	if m.opts.RemoteAck != nil {
		m.syncRemote(ctx, ids)
	}
	return next, ok, nil
}

// Snapshot returns the snapshot currently considered authoritative.
func (m *Monitor) Snapshot() *models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Queue exposes the queue status for read-only callers.
func (m *Monitor) Queue() alerts.Status {
	return m.queue.Status()
}

// Table exposes the latest rendered table.
func (m *Monitor) Table() render.TableView {
	return m.table.View()
}

// Acknowledged returns the acknowledged ids.
func (m *Monitor) Acknowledged() []models.ItemID {
	return m.acks.IDs()
}

// Wait blocks until background notifications and remote syncs finish.
func (m *Monitor) Wait() {
	m.bg.Wait()
}

func (m *Monitor) notify(ctx context.Context, added []models.InventoryItem) {
	if m.opts.Notifier == nil {
		return
	}

	detectedAt := m.now().UTC()
	payload := make([]models.StockAlert, 0, len(added))
	for _, item := range added {
		payload = append(payload, models.NewStockAlert(item, detectedAt))
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.NotifyTimeout)
		defer cancel()

		if err := m.opts.Notifier.Notify(notifyCtx, payload); err != nil {
			m.metrics.NotifyFailures.WithLabelValues("notify").Inc()
			m.logger.Warn("stock alert notification incomplete", zap.Error(err))
		}
	}()
}

func (m *Monitor) syncRemote(ctx context.Context, ids []models.ItemID) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.NotifyTimeout)
		defer cancel()

		for _, id := range ids {
			if err := m.opts.RemoteAck.MarkAlertViewed(syncCtx, id); err != nil {
				m.metrics.NotifyFailures.WithLabelValues("remote_ack").Inc()
				m.logger.Warn("failed to mirror acknowledgment to inventory api", zap.String("item_id", string(id)), zap.Error(err))
			}
		}
	}()
}

func (m *Monitor) recordFetchFailure(err error) {
	kind := metrics.FetchNetwork
	var fetchErr *inventory.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case inventory.KindServer:
			kind = metrics.FetchServer
		case inventory.KindDecode:
			kind = metrics.FetchDecode
		}
	}
	m.metrics.Fetches.WithLabelValues(kind).Inc()
	m.logger.Warn("inventory fetch failed, keeping previous snapshot", zap.String("kind", kind), zap.Error(err))
}

func (m *Monitor) recordSnapshot(snap *models.Snapshot) {
	var low, out int
	for _, item := range snap.Items() {
		switch item.Status {
		case models.StatusLowStock:
			low++
		case models.StatusOutOfStock:
			out++
		}
	}
	m.metrics.SnapshotItems.Set(float64(snap.Len()))
	m.metrics.DegradedItems.WithLabelValues(models.StatusLowStock.Label()).Set(float64(low))
	m.metrics.DegradedItems.WithLabelValues(models.StatusOutOfStock.Label()).Set(float64(out))
}

func (m *Monitor) updateQueueGauges() {
	st := m.queue.Status()
	m.metrics.QueueDepth.Set(float64(st.Pending))
	if st.State == alerts.StatePresenting {
		m.metrics.Presenting.Set(1)
	} else {
		m.metrics.Presenting.Set(0)
	}
}
