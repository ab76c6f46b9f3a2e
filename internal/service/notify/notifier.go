// Package notify pushes newly queued stock alerts to outbound channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/domain/models"
)

// Notifier delivers stock alerts to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alerts []models.StockAlert) error
}

// Fanout delivers to every configured notifier and joins their errors.
type Fanout struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewFanout skips nil notifiers.
func NewFanout(logger *zap.Logger, notifiers ...Notifier) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len returns the number of active channels.
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// Notify calls every channel even when an earlier one fails.
func (f *Fanout) Notify(ctx context.Context, alerts []models.StockAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, alerts); err != nil {
			f.logger.Warn("alert notification failed", zap.String("channel", n.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		f.logger.Debug("alert notification sent", zap.String("channel", n.Name()), zap.Int("alerts", len(alerts)))
	}
	return errors.Join(errs...)
}
