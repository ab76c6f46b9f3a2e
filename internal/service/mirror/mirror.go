// Package mirror copies the rendered inventory table into a spreadsheet.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockwatch/internal/repository/sheets"
	"github.com/mamadbah2/stockwatch/internal/service/render"
)

// ErrNoSnapshot is returned while no inventory has been fetched yet.
var ErrNoSnapshot = errors.New("no inventory snapshot to mirror")

// Header is the first row written to the sheet.
var Header = []interface{}{"ID", "Name", "Quantity", "Threshold", "Status", "Viewed"}

// ViewSource supplies the latest rendered table.
type ViewSource interface {
	Table() render.TableView
}

// Service pushes the table into a sheet range.
type Service struct {
	repo       sheets.Repository
	source     ViewSource
	sheetRange string
	logger     *zap.Logger
}

// NewService wires a mirror.
func NewService(repo sheets.Repository, source ViewSource, sheetRange string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, source: source, sheetRange: sheetRange, logger: logger}
}

// Sync writes the current table. A view with no fetch behind it is skipped.
func (s *Service) Sync(ctx context.Context) error {
	view := s.source.Table()
	if view.Sequence == 0 {
		return ErrNoSnapshot
	}

	if err := s.repo.ReplaceRange(ctx, s.sheetRange, Rows(view)); err != nil {
		return fmt.Errorf("mirror inventory table: %w", err)
	}

	s.logger.Info("inventory table mirrored",
		zap.Uint64("sequence", view.Sequence),
		zap.Int("rows", len(view.Rows)))
	return nil
}

// Run implements cron.Job.
func (s *Service) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.Sync(ctx); err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			s.logger.Debug("skipping sheet mirror, inventory not fetched yet")
			return
		}
		s.logger.Error("failed to mirror inventory table", zap.Error(err))
	}
}

// Rows converts a table view into sheet rows, header first.
func Rows(view render.TableView) [][]interface{} {
	rows := make([][]interface{}, 0, len(view.Rows)+1)
	rows = append(rows, Header)
	for _, row := range view.Rows {
		viewed := ""
		if row.Viewed {
			viewed = "yes"
		}
		rows = append(rows, []interface{}{
			string(row.ID),
			row.Name,
			row.Quantity,
			row.Threshold,
			row.Status,
			viewed,
		})
	}
	return rows
}
