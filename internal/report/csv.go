package report

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteRangeCSV streams the per-day range report as CSV. The csv
// encoding mirrors the export the back office already consumes; no
// pack library covers CSV so the standard encoder is used directly.
func (s *Service) WriteRangeCSV(ctx context.Context, w io.Writer, from, to time.Time) error {
	rows, err := s.Range(ctx, from, to)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "revenue", "transactions", "items_sold", "average_sale"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Day.UTC().Format("2006-01-02"),
			row.Revenue.String(),
			strconv.FormatInt(row.TransactionCount, 10),
			strconv.FormatInt(row.ItemsSold, 10),
			row.AverageSale.String(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTierCSV streams the revenue-by-tier report as CSV.
func (s *Service) WriteTierCSV(ctx context.Context, w io.Writer, from, to time.Time) error {
	rows, err := s.ByTier(ctx, from, to)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"tier", "revenue", "transactions"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Tier,
			row.Revenue.String(),
			strconv.FormatInt(row.TransactionCount, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
