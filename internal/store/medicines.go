package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"apotek/m/domain"
)

const medicineColumns = `id, name, image, stock, unit_price, created_at, updated_at`

// Medicines is the catalog store.
type Medicines struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMedicines(db *sqlx.DB) *Medicines {
	return &Medicines{db: db, now: time.Now}
}

type NewMedicine struct {
	Name      string
	Stock     int64
	UnitPrice decimal.Decimal
}

func (m NewMedicine) validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return invalid("name", "is required")
	}
	if m.Stock < 0 {
		return invalid("stock", "must not be negative")
	}
	if m.UnitPrice.IsNegative() {
		return invalid("unit_price", "must not be negative")
	}
	return nil
}

// MedicineChanges is a partial update; nil fields are left untouched.
type MedicineChanges struct {
	Name      *string
	Stock     *int64
	UnitPrice *decimal.Decimal
}

// ImageNamer maps a medicine id to the image reference stored on the row.
type ImageNamer func(id int64) string

func (s *Medicines) List(ctx context.Context) ([]domain.Medicine, error) {
	return s.list(ctx, `SELECT `+medicineColumns+` FROM medicines ORDER BY name, id`)
}

// ListInStock returns the medicines a cashier can sell.
func (s *Medicines) ListInStock(ctx context.Context) ([]domain.Medicine, error) {
	return s.list(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE stock > 0 ORDER BY name, id`)
}

func (s *Medicines) list(ctx context.Context, query string) ([]domain.Medicine, error) {
	medicines := []domain.Medicine{}
	if err := s.db.SelectContext(ctx, &medicines, query); err != nil {
		return nil, fmt.Errorf("list medicines: %w", err)
	}
	return medicines, nil
}

func (s *Medicines) Get(ctx context.Context, id int64) (domain.Medicine, error) {
	return getMedicine(ctx, s.db, id, false)
}

// Create inserts the row first to obtain its id, then stores the image
// reference derived from that id. Both writes share one transaction; a nil
// image namer leaves the row without an image.
func (s *Medicines) Create(ctx context.Context, in NewMedicine, image ImageNamer) (domain.Medicine, error) {
	if err := in.validate(); err != nil {
		return domain.Medicine{}, err
	}

	now := s.now().UTC()
	m := domain.Medicine{
		Name:      strings.TrimSpace(in.Name),
		Stock:     in.Stock,
		UnitPrice: in.UnitPrice.Round(2),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO medicines (name, image, stock, unit_price, created_at, updated_at) VALUES (?, '', ?, ?, ?, ?)`,
			m.Name, m.Stock, m.UnitPrice, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert medicine: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("medicine id: %w", err)
		}
		if image == nil {
			return nil
		}
		m.Image = image(m.ID)
		if _, err := tx.ExecContext(ctx, `UPDATE medicines SET image = ? WHERE id = ?`, m.Image, m.ID); err != nil {
			return fmt.Errorf("attach image: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Medicine{}, err
	}
	return m, nil
}

// Update applies changes and, when image is non-nil, replaces the image
// reference. It returns the updated row and the row as it was before.
func (s *Medicines) Update(ctx context.Context, id int64, changes MedicineChanges, image ImageNamer) (updated, previous domain.Medicine, err error) {
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := getMedicine(ctx, tx, id, true)
		if err != nil {
			return err
		}
		previous = current

		next := NewMedicine{Name: current.Name, Stock: current.Stock, UnitPrice: current.UnitPrice}
		if changes.Name != nil {
			next.Name = *changes.Name
		}
		if changes.Stock != nil {
			next.Stock = *changes.Stock
		}
		if changes.UnitPrice != nil {
			next.UnitPrice = *changes.UnitPrice
		}
		if err := next.validate(); err != nil {
			return err
		}

		current.Name = strings.TrimSpace(next.Name)
		current.Stock = next.Stock
		current.UnitPrice = next.UnitPrice.Round(2)
		current.UpdatedAt = s.now().UTC()
		if image != nil {
			current.Image = image(id)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE medicines SET name = ?, image = ?, stock = ?, unit_price = ?, updated_at = ? WHERE id = ?`,
			current.Name, current.Image, current.Stock, current.UnitPrice, current.UpdatedAt, id); err != nil {
			return fmt.Errorf("update medicine: %w", err)
		}
		updated = current
		return nil
	})
	return updated, previous, err
}

// Delete removes a medicine that no sale line references and returns the
// removed row.
func (s *Medicines) Delete(ctx context.Context, id int64) (domain.Medicine, error) {
	var removed domain.Medicine
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		m, err := getMedicine(ctx, tx, id, true)
		if err != nil {
			return err
		}
		var refs int64
		if err := tx.GetContext(ctx, &refs, `SELECT COUNT(*) FROM sale_items WHERE medicine_id = ?`, id); err != nil {
			return fmt.Errorf("count sale lines: %w", err)
		}
		if refs > 0 {
			return ErrMedicineInUse
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM medicines WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete medicine: %w", err)
		}
		removed = m
		return nil
	})
	return removed, err
}

func getMedicine(ctx context.Context, q sqlx.QueryerContext, id int64, lock bool) (domain.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE id = ?`
	if lock {
		query += forUpdate(q)
	}
	var m domain.Medicine
	err := sqlx.GetContext(ctx, q, &m, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Medicine{}, ErrNotFound
	}
	if err != nil {
		return domain.Medicine{}, fmt.Errorf("get medicine: %w", err)
	}
	return m, nil
}
