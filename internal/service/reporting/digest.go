package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
	"github.com/mamadbah2/stockwatch/internal/service/render"
	"github.com/mamadbah2/stockwatch/pkg/clients/whatsapp"
)

const dateLayout = "2006-01-02 15:04"

// ErrNoSnapshot is returned while no inventory has been fetched yet.
var ErrNoSnapshot = errors.New("no inventory snapshot to report on")

// ViewSource supplies the latest rendered table.
type ViewSource interface {
	Table() render.TableView
}

// Service builds periodic stock digests and sends them over WhatsApp.
type Service struct {
	source    ViewSource
	client    whatsapp.Client
	recipient string
	logger    *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(source ViewSource, client whatsapp.Client, recipient string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, client: client, recipient: recipient, logger: logger}
}

// Digest summarizes the table: counts per status, then every item that is
// out of stock or low, with items not yet acknowledged marked "new".
func Digest(view render.TableView) string {
	counts := map[string]int{}
	var out, low []render.Row
	for _, row := range view.Rows {
		counts[row.Status]++
		switch row.Status {
		case models.StatusOutOfStock.Label():
			out = append(out, row)
		case models.StatusLowStock.Label():
			low = append(low, row)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stock digest (%s)\n", view.FetchedAt.Local().Format(dateLayout))
	fmt.Fprintf(&b, "%d items: %d out of stock, %d low, %d in stock",
		len(view.Rows),
		counts[models.StatusOutOfStock.Label()],
		counts[models.StatusLowStock.Label()],
		counts[models.StatusInStock.Label()])
	if unknown := counts[models.StatusUnknown.Label()]; unknown > 0 {
		fmt.Fprintf(&b, ", %d unknown", unknown)
	}

	writeSection(&b, "Out of stock", out)
	writeSection(&b, "Low stock", low)

	if len(out) == 0 && len(low) == 0 {
		b.WriteString("\nAll items are above their threshold.")
	}
	return b.String()
}

func writeSection(b *strings.Builder, title string, rows []render.Row) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(b, "\n\n%s:", title)
	for _, row := range rows {
		fmt.Fprintf(b, "\n- %s (%d/%d)", row.Name, row.Quantity, row.Threshold)
		if !row.Viewed {
			b.WriteString(" new")
		}
	}
}

// Send builds the digest from the current table and delivers it.
func (s *Service) Send(ctx context.Context) error {
	view := s.source.Table()
	if view.Sequence == 0 {
		return ErrNoSnapshot
	}

	id, err := s.client.SendText(ctx, whatsapp.TextMessage{To: s.recipient, Body: Digest(view)})
	if err != nil {
		return fmt.Errorf("send stock digest: %w", err)
	}

	s.logger.Info("stock digest sent", zap.String("message_id", id), zap.Int("items", len(view.Rows)))
	return nil
}

// Run implements cron.Job.
func (s *Service) Run() {
	s.logger.Info("generating stock digest")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.Send(ctx); err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			s.logger.Warn("skipping stock digest, inventory not fetched yet")
			return
		}
		s.logger.Error("failed to send stock digest", zap.Error(err))
	}
}
