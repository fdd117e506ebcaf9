package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is an immutable sale transaction header. Total always equals the sum of
// the line subtotals.
type Sale struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Cashier   string          `db:"cashier" json:"cashier,omitempty"`
	Total     decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	Lines     []SaleLine      `db:"-" json:"items"`
}

// SaleLine keeps the unit price as it was when the sale was recorded, not a
// live reference to the catalog price.
type SaleLine struct {
	ID           int64           `db:"id" json:"id"`
	SaleID       int64           `db:"sale_id" json:"sale_id"`
	MedicineID   int64           `db:"medicine_id" json:"medicine_id"`
	MedicineName string          `db:"medicine_name" json:"medicine_name"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// CartItem is one (item, quantity) pair submitted for a sale.
type CartItem struct {
	MedicineID int64
	Quantity   int64
}

type WeeklyReport struct {
	Since          time.Time
	TotalRevenue   decimal.Decimal
	TotalUnitsSold int64
	Transactions   []Sale
}
