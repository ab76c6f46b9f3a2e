package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockwatch/internal/service/render"
	"github.com/mamadbah2/stockwatch/pkg/clients/whatsapp"
)

type fakeClient struct {
	sent []whatsapp.TextMessage
	err  error
}

func (f *fakeClient) SendText(_ context.Context, msg whatsapp.TextMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "wamid.1", nil
}

type staticSource struct {
	view render.TableView
}

func (s staticSource) Table() render.TableView { return s.view }

func sampleView() render.TableView {
	return render.TableView{
		Sequence:  4,
		FetchedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local),
		Rows: []render.Row{
			{ID: "1", Name: "Gloves", Quantity: 0, Threshold: 10, Status: "Out of Stock"},
			{ID: "2", Name: "Masks", Quantity: 4, Threshold: 10, Status: "Low Stock", Viewed: true},
			{ID: "3", Name: "Gowns", Quantity: 80, Threshold: 10, Status: "In Stock"},
		},
	}
}

func TestDigest(t *testing.T) {
	want := "Stock digest (2026-03-02 08:00)\n" +
		"3 items: 1 out of stock, 1 low, 1 in stock\n\n" +
		"Out of stock:\n- Gloves (0/10) new\n\n" +
		"Low stock:\n- Masks (4/10)"
	assert.Equal(t, want, Digest(sampleView()))
}

func TestDigestAllHealthy(t *testing.T) {
	view := render.TableView{
		Sequence:  1,
		FetchedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local),
		Rows:      []render.Row{{ID: "3", Name: "Gowns", Quantity: 80, Threshold: 10, Status: "In Stock"}},
	}
	assert.Contains(t, Digest(view), "All items are above their threshold.")
}

func TestSendDeliversToRecipient(t *testing.T) {
	client := &fakeClient{}
	svc := NewService(staticSource{view: sampleView()}, client, "221770000000", nil)

	require.NoError(t, svc.Send(context.Background()))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "221770000000", client.sent[0].To)
	assert.Contains(t, client.sent[0].Body, "Gloves")
}

func TestSendBeforeFirstFetch(t *testing.T) {
	client := &fakeClient{}
	svc := NewService(staticSource{}, client, "221770000000", nil)

	assert.ErrorIs(t, svc.Send(context.Background()), ErrNoSnapshot)
	assert.Empty(t, client.sent)
}

func TestSendWrapsClientErrors(t *testing.T) {
	boom := errors.New("rate limited")
	svc := NewService(staticSource{view: sampleView()}, &fakeClient{err: boom}, "221770000000", nil)

	assert.ErrorIs(t, svc.Send(context.Background()), boom)
}
