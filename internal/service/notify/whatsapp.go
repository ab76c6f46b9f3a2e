package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
	"github.com/mamadbah2/stockwatch/pkg/clients/whatsapp"
)

// WhatsAppNotifier sends one text message summarizing a batch of alerts.
type WhatsAppNotifier struct {
	client    whatsapp.Client
	recipient string
}

// NewWhatsAppNotifier wires the notifier to a recipient phone number.
func NewWhatsAppNotifier(client whatsapp.Client, recipient string) *WhatsAppNotifier {
	return &WhatsAppNotifier{client: client, recipient: recipient}
}

func (n *WhatsAppNotifier) Name() string { return "whatsapp" }

// Notify sends the formatted summary.
func (n *WhatsAppNotifier) Notify(ctx context.Context, alerts []models.StockAlert) error {
	_, err := n.client.SendText(ctx, whatsapp.TextMessage{
		To:   n.recipient,
		Body: FormatAlerts(alerts),
	})
	return err
}

// FormatAlerts renders alerts as a short plain-text message.
func FormatAlerts(alerts []models.StockAlert) string {
	var b strings.Builder
	if len(alerts) == 1 {
		b.WriteString("Stock alert\n")
	} else {
		fmt.Fprintf(&b, "Stock alerts (%d)\n", len(alerts))
	}
	for _, a := range alerts {
		fmt.Fprintf(&b, "- %s: %s (quantity %d, threshold %d)\n", a.Name, a.Status, a.Quantity, a.Threshold)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
