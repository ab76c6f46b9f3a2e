package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
	"github.com/mamadbah2/stockwatch/internal/metrics"
	"github.com/mamadbah2/stockwatch/internal/repository/memory"
	"github.com/mamadbah2/stockwatch/internal/service/acknowledgment"
	"github.com/mamadbah2/stockwatch/internal/service/alerts"
	"github.com/mamadbah2/stockwatch/internal/service/render"
	"github.com/mamadbah2/stockwatch/pkg/clients/inventory"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []func() (*models.Snapshot, error)
	seq   uint64
}

func (f *scriptedFetcher) push(items ...models.InventoryItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, func() (*models.Snapshot, error) {
		f.seq++
		return models.NewSnapshot(items, f.seq, time.Now())
	})
}

func (f *scriptedFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, func() (*models.Snapshot, error) { return nil, err })
}

func (f *scriptedFetcher) FetchSnapshot(context.Context) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return nil, &inventory.FetchError{Kind: inventory.KindNetwork, Err: errors.New("script exhausted")}
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step()
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) FetchSnapshot(context.Context) (*models.Snapshot, error) {
	close(b.started)
	<-b.release
	return models.NewSnapshot(nil, 1, time.Now())
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.StockAlert
}

func (r *recordingNotifier) Notify(_ context.Context, alerts []models.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alerts...)
	return nil
}

type recordingRemote struct {
	mu  sync.Mutex
	ids []models.ItemID
	err error
}

func (r *recordingRemote) MarkAlertViewed(_ context.Context, id models.ItemID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.err
}

type harness struct {
	monitor *Monitor
	fetcher *scriptedFetcher
	acks    *acknowledgment.Store
	queue   *alerts.Queue
	slot    *memory.StateRepository
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, mode alerts.Mode, opts Options) *harness {
	t.Helper()
	slot := memory.NewStateRepository()
	acks := acknowledgment.NewStore(slot, nil)
	acks.Load(context.Background())
	queue := alerts.NewQueue(mode, acks, nil)
	table := render.NewTable(acks)
	fetcher := &scriptedFetcher{}
	m := metrics.New(nil)
	opts.Metrics = m

	return &harness{
		monitor: New(fetcher, acks, queue, table, opts, nil),
		fetcher: fetcher,
		acks:    acks,
		queue:   queue,
		slot:    slot,
		metrics: m,
	}
}

func low(id models.ItemID) models.InventoryItem {
	return models.InventoryItem{ID: id, Name: "item-" + string(id), Quantity: 5, Threshold: 10, Status: models.StatusLowStock}
}

func out(id models.ItemID) models.InventoryItem {
	return models.InventoryItem{ID: id, Name: "item-" + string(id), Quantity: 0, Threshold: 10, Status: models.StatusOutOfStock}
}

func inStock(id models.ItemID) models.InventoryItem {
	return models.InventoryItem{ID: id, Name: "item-" + string(id), Quantity: 50, Threshold: 10, Status: models.StatusInStock}
}

func TestScenarioAcknowledgeAndRearm(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"))
	require.NoError(t, h.monitor.Poll(ctx))

	current, ok := h.queue.Current()
	require.True(t, ok)
	assert.Equal(t, []models.ItemID{"1"}, current.IDs())

	_, more, err := h.monitor.Acknowledge(ctx, nil)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, []models.ItemID{"1"}, h.monitor.Acknowledged())

	h.fetcher.push(low("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	_, ok = h.queue.Current()
	assert.False(t, ok, "unchanged acknowledged item must not alert again")

	h.fetcher.push(out("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	current, ok = h.queue.Current()
	require.True(t, ok)
	assert.Equal(t, models.StatusOutOfStock, current.Items[0].Status)
	assert.Empty(t, h.monitor.Acknowledged(), "status change clears the stale acknowledgment")

	raw, _, err := h.slot.Read(ctx, acknowledgment.StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestQueueDrainsAcrossAcknowledgments(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"), out("2"), low("3"), inStock("4"))
	require.NoError(t, h.monitor.Poll(ctx))

	var shown []models.ItemID
	current, ok := h.queue.Current()
	for ok {
		shown = append(shown, current.IDs()...)
		var err error
		current, ok, err = h.monitor.Acknowledge(ctx, current.IDs())
		require.NoError(t, err)
	}

	assert.Equal(t, []models.ItemID{"1", "2", "3"}, shown)
	assert.Equal(t, alerts.Status{State: alerts.StateIdle}, h.monitor.Queue())
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.Presenting))
	assert.Equal(t, float64(3), testutil.ToFloat64(h.metrics.Acknowledgments))
}

func TestFetchFailurePreservesState(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"), low("2"))
	require.NoError(t, h.monitor.Poll(ctx))
	before := h.monitor.Snapshot()
	queueBefore := h.monitor.Queue()
	tableBefore := h.monitor.Table()

	h.fetcher.fail(&inventory.FetchError{Kind: inventory.KindServer, StatusCode: 500, Err: errors.New("boom")})
	err := h.monitor.Poll(ctx)
	require.Error(t, err)

	assert.Same(t, before, h.monitor.Snapshot())
	assert.Equal(t, queueBefore, h.monitor.Queue())
	assert.Equal(t, tableBefore, h.monitor.Table())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Fetches.WithLabelValues(metrics.FetchServer)))

	// The next tick recovers on its own.
	h.fetcher.push(low("1"), low("2"))
	assert.NoError(t, h.monitor.Poll(ctx))
}

func TestRecoveredItemsLeaveTheQueue(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"), low("2"))
	require.NoError(t, h.monitor.Poll(ctx))
	require.Equal(t, 1, h.queue.Pending())

	h.fetcher.push(low("1"), inStock("2"))
	require.NoError(t, h.monitor.Poll(ctx))
	assert.Equal(t, 0, h.queue.Pending())
	assert.False(t, h.queue.Contains("2"))
}

func TestRecoveryThenDegradationAlertsFresh(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	_, _, err := h.monitor.Acknowledge(ctx, nil)
	require.NoError(t, err)

	h.fetcher.push(inStock("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	assert.Empty(t, h.monitor.Acknowledged())
	_, ok := h.queue.Current()
	assert.False(t, ok, "recovery is silent")

	h.fetcher.push(low("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	current, ok := h.queue.Current()
	require.True(t, ok)
	assert.Equal(t, []models.ItemID{"1"}, current.IDs())
}

func TestTableMarksAcknowledgedRows(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	assert.False(t, h.monitor.Table().Rows[0].Viewed)

	_, _, err := h.monitor.Acknowledge(ctx, nil)
	require.NoError(t, err)
	assert.True(t, h.monitor.Table().Rows[0].Viewed)

	h.fetcher.push(out("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	assert.False(t, h.monitor.Table().Rows[0].Viewed, "re-armed rows resurface")
}

func TestNotifierAndRemoteSync(t *testing.T) {
	notifier := &recordingNotifier{}
	remote := &recordingRemote{err: errors.New("offline")}
	h := newHarness(t, alerts.ModeBatch, Options{Notifier: notifier, RemoteAck: remote, NotifyTimeout: time.Second})
	ctx := context.Background()

	h.fetcher.push(low("1"), out("2"))
	require.NoError(t, h.monitor.Poll(ctx))

	current, ok := h.queue.Current()
	require.True(t, ok)
	assert.Equal(t, []models.ItemID{"1", "2"}, current.IDs())

	_, _, err := h.monitor.Acknowledge(ctx, nil)
	require.NoError(t, err, "remote failures never block the local transition")
	h.monitor.Wait()

	assert.Len(t, notifier.alerts, 2)
	assert.Equal(t, []models.ItemID{"1", "2"}, remote.ids)
	assert.Equal(t, []models.ItemID{"1", "2"}, h.monitor.Acknowledged())
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.NotifyFailures.WithLabelValues("remote_ack")))
}

func TestPollRejectsOverlap(t *testing.T) {
	slot := memory.NewStateRepository()
	acks := acknowledgment.NewStore(slot, nil)
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	m := New(fetcher, acks, alerts.NewQueue(alerts.ModeSingle, acks, nil), render.NewTable(acks), Options{}, nil)

	done := make(chan error, 1)
	go func() { done <- m.Poll(context.Background()) }()
	<-fetcher.started

	assert.ErrorIs(t, m.Poll(context.Background()), ErrPollInFlight)

	close(fetcher.release)
	require.NoError(t, <-done)
}

func TestOutOfOrderSnapshotIsDiscarded(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"))
	require.NoError(t, h.monitor.Poll(ctx))
	current := h.monitor.Snapshot()

	stale, err := models.NewSnapshot([]models.InventoryItem{out("1")}, current.Sequence, time.Now())
	require.NoError(t, err)
	h.fetcher.mu.Lock()
	h.fetcher.steps = append(h.fetcher.steps, func() (*models.Snapshot, error) { return stale, nil })
	h.fetcher.mu.Unlock()

	require.NoError(t, h.monitor.Poll(ctx))
	assert.Same(t, current, h.monitor.Snapshot())
}

func TestAcknowledgeWithNothingPresented(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	_, _, err := h.monitor.Acknowledge(context.Background(), nil)
	assert.ErrorIs(t, err, alerts.ErrNothingToAcknowledge)
}

func restartOnSlot(slot *memory.StateRepository, fetcher Fetcher) (*Monitor, *alerts.Queue) {
	acks := acknowledgment.NewStore(slot, nil)
	acks.Load(context.Background())
	queue := alerts.NewQueue(alerts.ModeSingle, acks, nil)
	return New(fetcher, acks, queue, render.NewTable(acks), Options{}, nil), queue
}

func TestDegradationWhileDownAlertsAfterRestart(t *testing.T) {
	ctx := context.Background()
	slot := memory.NewStateRepository()

	before := &scriptedFetcher{}
	first, _ := restartOnSlot(slot, before)
	before.push(low("1"))
	require.NoError(t, first.Poll(ctx))
	_, _, err := first.Acknowledge(ctx, nil)
	require.NoError(t, err)

	after := &scriptedFetcher{}
	second, queue := restartOnSlot(slot, after)
	after.push(out("1"))
	require.NoError(t, second.Poll(ctx))

	current, ok := queue.Current()
	require.True(t, ok, "a status change during downtime must alert")
	assert.Equal(t, []models.ItemID{"1"}, current.IDs())
	assert.Equal(t, models.StatusOutOfStock, current.Items[0].Status)
	assert.Empty(t, second.Acknowledged())
}

func TestUnchangedStatusStaysAcknowledgedAfterRestart(t *testing.T) {
	ctx := context.Background()
	slot := memory.NewStateRepository()

	before := &scriptedFetcher{}
	first, _ := restartOnSlot(slot, before)
	before.push(low("1"))
	require.NoError(t, first.Poll(ctx))
	_, _, err := first.Acknowledge(ctx, nil)
	require.NoError(t, err)

	after := &scriptedFetcher{}
	second, queue := restartOnSlot(slot, after)
	after.push(low("1"))
	require.NoError(t, second.Poll(ctx))

	_, ok := queue.Current()
	assert.False(t, ok)
	assert.Equal(t, []models.ItemID{"1"}, second.Acknowledged())
}

func TestRemovedItemsArePrunedFromAcknowledgments(t *testing.T) {
	h := newHarness(t, alerts.ModeSingle, Options{})
	ctx := context.Background()

	h.fetcher.push(low("1"), low("2"))
	require.NoError(t, h.monitor.Poll(ctx))
	_, _, err := h.monitor.Acknowledge(ctx, []models.ItemID{"1", "2"})
	require.NoError(t, err)

	h.fetcher.push(low("2"))
	require.NoError(t, h.monitor.Poll(ctx))
	assert.Equal(t, []models.ItemID{"2"}, h.monitor.Acknowledged())

	raw, _, err := h.slot.Read(ctx, acknowledgment.StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `["2"]`, string(raw))
}
