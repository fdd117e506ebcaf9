package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"apotek/m/domain"
)

const saleColumns = `s.id, s.user_id, COALESCE(u.username, '') AS cashier, s.total_amount, s.created_at`

// Sales records and reads sale transactions.
type Sales struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSales(db *sqlx.DB) *Sales {
	return &Sales{db: db, now: time.Now}
}

// WithClock replaces the time source used to stamp new sales.
func (s *Sales) WithClock(now func() time.Time) *Sales {
	s.now = now
	return s
}

// Record validates the cart against current stock, snapshots prices, and
// writes the header, its lines and the stock decrements as a single unit.
// Nothing is written when validation fails.
func (s *Sales) Record(ctx context.Context, userID int64, cart []domain.CartItem) (domain.Sale, error) {
	if len(cart) == 0 {
		return domain.Sale{}, ErrInvalidCart
	}
	for _, item := range cart {
		if item.MedicineID <= 0 || item.Quantity <= 0 {
			return domain.Sale{}, ErrInvalidCart
		}
	}

	var sale domain.Sale
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		lines, total, err := priceCart(ctx, tx, cart)
		if err != nil {
			return err
		}

		sale = domain.Sale{UserID: userID, Total: total, CreatedAt: s.now().UTC()}
		res, err := tx.ExecContext(ctx, `INSERT INTO sales (user_id, total_amount, created_at) VALUES (?, ?, ?)`,
			sale.UserID, sale.Total, sale.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert sale: %v", ErrTransactionFailed, err)
		}
		if sale.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("%w: sale id: %v", ErrTransactionFailed, err)
		}

		for i := range lines {
			lines[i].SaleID = sale.ID
			res, err := tx.ExecContext(ctx, `INSERT INTO sale_items (sale_id, medicine_id, quantity, unit_price, subtotal) VALUES (?, ?, ?, ?, ?)`,
				sale.ID, lines[i].MedicineID, lines[i].Quantity, lines[i].UnitPrice, lines[i].Subtotal)
			if err != nil {
				return fmt.Errorf("%w: insert sale line: %v", ErrTransactionFailed, err)
			}
			if lines[i].ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("%w: sale line id: %v", ErrTransactionFailed, err)
			}
		}

		for _, line := range lines {
			res, err := tx.ExecContext(ctx, `UPDATE medicines SET stock = stock - ? WHERE id = ? AND stock >= ?`,
				line.Quantity, line.MedicineID, line.Quantity)
			if err != nil {
				return fmt.Errorf("%w: decrement stock: %v", ErrTransactionFailed, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("%w: decrement stock: %v", ErrTransactionFailed, err)
			}
			if n == 0 {
				return &InsufficientStockError{Name: line.MedicineName}
			}
		}

		sale.Lines = lines
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

// priceCart resolves every cart entry in input order, checks the cumulative
// requested quantity against stock and snapshots the current unit price.
func priceCart(ctx context.Context, tx *sqlx.Tx, cart []domain.CartItem) ([]domain.SaleLine, decimal.Decimal, error) {
	lines := make([]domain.SaleLine, 0, len(cart))
	requested := make(map[int64]int64, len(cart))
	total := decimal.Zero

	for _, item := range cart {
		m, err := getMedicine(ctx, tx, item.MedicineID, true)
		if errors.Is(err, ErrNotFound) {
			return nil, decimal.Zero, &ItemNotFoundError{ID: item.MedicineID}
		}
		if err != nil {
			return nil, decimal.Zero, err
		}

		requested[m.ID] += item.Quantity
		if requested[m.ID] > m.Stock {
			return nil, decimal.Zero, &InsufficientStockError{Name: m.Name}
		}

		subtotal := m.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)).Round(2)
		total = total.Add(subtotal)
		lines = append(lines, domain.SaleLine{
			MedicineID:   m.ID,
			MedicineName: m.Name,
			Quantity:     item.Quantity,
			UnitPrice:    m.UnitPrice,
			Subtotal:     subtotal,
		})
	}
	return lines, total, nil
}

// ListForAccount returns the account's sales created in [from, to), newest
// first, with their lines.
func (s *Sales) ListForAccount(ctx context.Context, userID int64, from, to time.Time) ([]domain.Sale, error) {
	sales := []domain.Sale{}
	err := s.db.SelectContext(ctx, &sales, `SELECT `+saleColumns+` FROM sales s LEFT JOIN users u ON u.id = s.user_id
                WHERE s.user_id = ? AND s.created_at >= ? AND s.created_at < ?
                ORDER BY s.created_at DESC, s.id DESC`, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	if err := attachLines(ctx, s.db, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// GetForAccount returns one sale owned by the account. Sales owned by other
// accounts are reported as not found.
func (s *Sales) GetForAccount(ctx context.Context, userID, id int64) (domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, `SELECT `+saleColumns+` FROM sales s LEFT JOIN users u ON u.id = s.user_id
                WHERE s.id = ? AND s.user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, ErrNotFound
	}
	if err != nil {
		return domain.Sale{}, fmt.Errorf("get sale: %w", err)
	}
	sales := []domain.Sale{sale}
	if err := attachLines(ctx, s.db, sales); err != nil {
		return domain.Sale{}, err
	}
	return sales[0], nil
}

func attachLines(ctx context.Context, db *sqlx.DB, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]int64, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}

	query, args, err := sqlx.In(`SELECT si.id, si.sale_id, si.medicine_id, COALESCE(m.name, '') AS medicine_name, si.quantity, si.unit_price, si.subtotal
                FROM sale_items si
                LEFT JOIN medicines m ON m.id = si.medicine_id
                WHERE si.sale_id IN (?)
                ORDER BY si.id`, ids)
	if err != nil {
		return fmt.Errorf("prepare sale lines query: %w", err)
	}

	var rows []domain.SaleLine
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return fmt.Errorf("load sale lines: %w", err)
	}
	bySale := make(map[int64][]domain.SaleLine, len(sales))
	for _, row := range rows {
		bySale[row.SaleID] = append(bySale[row.SaleID], row)
	}
	for i := range sales {
		sales[i].Lines = bySale[sales[i].ID]
		if sales[i].Lines == nil {
			sales[i].Lines = []domain.SaleLine{}
		}
	}
	return nil
}
