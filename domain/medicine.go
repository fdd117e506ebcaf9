package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Medicine struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Image     string          `db:"image" json:"image"`
	Stock     int64           `db:"stock" json:"stock"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
