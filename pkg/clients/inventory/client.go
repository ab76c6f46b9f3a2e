package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/stockwatch/internal/config"
	"github.com/mamadbah2/stockwatch/internal/domain/models"
)

// Client exposes the inventory API operations the watcher depends on.
type Client interface {
	FetchSnapshot(ctx context.Context) (*models.Snapshot, error)
	MarkAlertViewed(ctx context.Context, id models.ItemID) error
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient    *resty.Client
	itemsPath     string
	deriveMissing bool
	sequence      atomic.Uint64
	now           func() time.Time
}

// NewClient builds an inventory API client from configuration.
func NewClient(cfg config.InventoryConfig) *APIClient {
	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	if cfg.Token != "" {
		restyClient.SetAuthScheme("Token").SetAuthToken(cfg.Token)
	}

	itemsPath := "/" + strings.Trim(cfg.ItemsPath, "/") + "/"

	return &APIClient{
		httpClient:    restyClient,
		itemsPath:     itemsPath,
		deriveMissing: cfg.DeriveMissingStatus,
		now:           time.Now,
	}
}

// wireItem keeps pointer fields so that missing attributes can be told apart
// from zero values.
type wireItem struct {
	ID        *models.ItemID      `json:"id"`
	Name      string              `json:"name"`
	Quantity  *int                `json:"quantity"`
	Threshold *int                `json:"threshold"`
	Status    *models.StockStatus `json:"status"`
}

// FetchSnapshot reads the full item list. Any failure leaves the caller's
// previous snapshot authoritative; the returned error is always a *FetchError.
func (c *APIClient) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(c.itemsPath)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("get %s: %w", c.itemsPath, err)}
	}

	if !resp.IsSuccess() {
		return nil, &FetchError{
			Kind:       KindServer,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("inventory api returned %s", resp.Status()),
		}
	}

	items, err := c.decodeItems(resp.Body())
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, StatusCode: resp.StatusCode(), Err: err}
	}

	snap, err := models.NewSnapshot(items, c.sequence.Add(1), c.now().UTC())
	if err != nil {
		return nil, &FetchError{Kind: KindDecode, StatusCode: resp.StatusCode(), Err: err}
	}
	return snap, nil
}

// MarkAlertViewed mirrors an acknowledgment to the backend.
func (c *APIClient) MarkAlertViewed(ctx context.Context, id models.ItemID) error {
	if id == "" {
		return errors.New("item id must not be empty")
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		Post(c.itemsPath + url.PathEscape(string(id)) + "/mark_alert_viewed/")
	if err != nil {
		return fmt.Errorf("mark alert viewed %s: %w", id, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("mark alert viewed %s: inventory api returned %s", id, resp.Status())
	}
	return nil
}

func (c *APIClient) decodeItems(body []byte) ([]models.InventoryItem, error) {
	var raw []wireItem
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	items := make([]models.InventoryItem, 0, len(raw))
	for i, w := range raw {
		switch {
		case w.ID == nil || *w.ID == "":
			return nil, fmt.Errorf("item %d: missing id", i)
		case w.Quantity == nil:
			return nil, fmt.Errorf("item %s: missing quantity", *w.ID)
		case w.Threshold == nil:
			return nil, fmt.Errorf("item %s: missing threshold", *w.ID)
		case *w.Quantity < 0:
			return nil, fmt.Errorf("item %s: negative quantity %d", *w.ID, *w.Quantity)
		case *w.Threshold < 0:
			return nil, fmt.Errorf("item %s: negative threshold %d", *w.ID, *w.Threshold)
		}

		status := models.StatusUnknown
		if w.Status != nil {
			status = *w.Status
		}
		if status == models.StatusUnknown && c.deriveMissing {
			status = models.DeriveStatus(*w.Quantity, *w.Threshold)
		}

		items = append(items, models.InventoryItem{
			ID:        *w.ID,
			Name:      w.Name,
			Quantity:  *w.Quantity,
			Threshold: *w.Threshold,
			Status:    status,
		})
	}
	return items, nil
}
