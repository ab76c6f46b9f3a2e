package inventory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockwatch/internal/config"
	"github.com/mamadbah2/stockwatch/internal/domain/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, derive bool) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.InventoryConfig{
		BaseURL:             srv.URL,
		ItemsPath:           "api/v1/items",
		Token:               "secret",
		Timeout:             2 * time.Second,
		DeriveMissingStatus: derive,
	})
}

func requireFetchKind(t *testing.T, err error, kind FetchErrorKind) {
	t.Helper()
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr), "expected *FetchError, got %v", err)
	assert.Equal(t, kind, fetchErr.Kind)
}

func TestFetchSnapshotDecodesItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/items/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "name": "Bolts", "quantity": 5, "threshold": 10, "status": 2},
			{"id": "2", "name": "Nuts", "quantity": 0, "threshold": 10, "status": "Out-of-Stock"},
			{"id": 3, "name": "Gears", "quantity": 50, "threshold": 10}
		]`))
	}, false)

	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, snap.Len())

	items := snap.Items()
	assert.Equal(t, models.InventoryItem{ID: "1", Name: "Bolts", Quantity: 5, Threshold: 10, Status: models.StatusLowStock}, items[0])
	assert.Equal(t, models.StatusOutOfStock, items[1].Status)
	assert.Equal(t, models.StatusUnknown, items[2].Status)
	assert.Equal(t, uint64(1), snap.Sequence)

	snap, err = client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Sequence)
}

func TestFetchSnapshotDerivesMissingStatusWhenEnabled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 3, "name": "Gears", "quantity": 4, "threshold": 10}]`))
	}, true)

	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	item, ok := snap.Get("3")
	require.True(t, ok)
	assert.Equal(t, models.StatusLowStock, item.Status)
}

func TestFetchSnapshotServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, false)

	_, err := client.FetchSnapshot(context.Background())
	requireFetchKind(t, err, KindServer)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
}

func TestFetchSnapshotDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"malformed json":    `[{"id": 1,`,
		"not an array":      `{"id": 1}`,
		"missing id":        `[{"name": "x", "quantity": 1, "threshold": 1}]`,
		"missing quantity":  `[{"id": 1, "threshold": 1}]`,
		"missing threshold": `[{"id": 1, "quantity": 1}]`,
		"negative quantity": `[{"id": 1, "quantity": -1, "threshold": 1}]`,
		"duplicate id":      `[{"id": 1, "quantity": 1, "threshold": 1}, {"id": "1", "quantity": 2, "threshold": 1}]`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}, false)

			_, err := client.FetchSnapshot(context.Background())
			requireFetchKind(t, err, KindDecode)
		})
	}
}

func TestFetchSnapshotNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewClient(config.InventoryConfig{BaseURL: srv.URL, ItemsPath: "/items/", Timeout: time.Second})

	_, err := client.FetchSnapshot(context.Background())
	requireFetchKind(t, err, KindNetwork)
}

func TestMarkAlertViewed(t *testing.T) {
	var gotPath, gotMethod string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_, _ = w.Write([]byte(`{"ok": true}`))
	}, false)

	require.NoError(t, client.MarkAlertViewed(context.Background(), "42"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v1/items/42/mark_alert_viewed/", gotPath)

	assert.Error(t, client.MarkAlertViewed(context.Background(), ""))
}

func TestMarkAlertViewedFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, false)

	assert.Error(t, client.MarkAlertViewed(context.Background(), "42"))
}
