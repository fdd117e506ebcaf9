package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"apotek/m/domain"
)

// ReportWindow is the trailing period covered by the weekly report.
const ReportWindow = 7 * 24 * time.Hour

// Reports aggregates sales across all accounts.
type Reports struct {
	db *sqlx.DB
}

func NewReports(db *sqlx.DB) *Reports {
	return &Reports{db: db}
}

// Weekly summarizes every sale created at or after now minus seven days.
func (r *Reports) Weekly(ctx context.Context, now time.Time) (domain.WeeklyReport, error) {
	since := now.Add(-ReportWindow).UTC()
	report := domain.WeeklyReport{Since: since, TotalRevenue: decimal.Zero, Transactions: []domain.Sale{}}

	if err := r.db.SelectContext(ctx, &report.Transactions, `SELECT `+saleColumns+` FROM sales s LEFT JOIN users u ON u.id = s.user_id
                WHERE s.created_at >= ?
                ORDER BY s.created_at DESC, s.id DESC`, since); err != nil {
		return domain.WeeklyReport{}, fmt.Errorf("weekly sales: %w", err)
	}
	for _, sale := range report.Transactions {
		report.TotalRevenue = report.TotalRevenue.Add(sale.Total)
	}

	if err := r.db.GetContext(ctx, &report.TotalUnitsSold, `SELECT COALESCE(SUM(si.quantity), 0)
                FROM sale_items si
                JOIN sales s ON s.id = si.sale_id
                WHERE s.created_at >= ?`, since); err != nil {
		return domain.WeeklyReport{}, fmt.Errorf("weekly units sold: %w", err)
	}
	return report, nil
}
