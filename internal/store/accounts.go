package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"apotek/m/domain"
	"apotek/m/internal/auth"
)

const accountColumns = `id, username, password, role, created_at`

// Accounts is the credential store.
type Accounts struct {
	db         *sqlx.DB
	bcryptCost int
	now        func() time.Time
}

func NewAccounts(db *sqlx.DB, bcryptCost int) *Accounts {
	return &Accounts{db: db, bcryptCost: bcryptCost, now: time.Now}
}

// AccountChanges is a partial update; nil fields are left untouched.
type AccountChanges struct {
	Username *string
	Password *string
}

// Verify returns the account when username and password match.
func (s *Accounts) Verify(ctx context.Context, username, password string) (domain.Account, error) {
	acc, err := s.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return domain.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Account{}, err
	}
	if !auth.CheckPassword(acc.PasswordHash, password) {
		return domain.Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

func (s *Accounts) Create(ctx context.Context, username string, role domain.Role, password string) (domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Account{}, invalid("username", "is required")
	}
	if password == "" {
		return domain.Account{}, invalid("password", "is required")
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return domain.Account{}, invalid("role", "must be admin or cashier")
	}

	hashed, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	acc := domain.Account{Username: username, PasswordHash: hashed, Role: role, CreatedAt: s.now().UTC()}
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password, role, created_at) VALUES (?, ?, ?, ?)`,
		acc.Username, acc.PasswordHash, acc.Role, acc.CreatedAt)
	if isDuplicateKey(err) {
		return domain.Account{}, ErrDuplicateUsername
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	if acc.ID, err = res.LastInsertId(); err != nil {
		return domain.Account{}, fmt.Errorf("account id: %w", err)
	}
	return acc, nil
}

func (s *Accounts) Get(ctx context.Context, id int64) (domain.Account, error) {
	return getAccount(ctx, s.db, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id)
}

func (s *Accounts) GetByUsername(ctx context.Context, username string) (domain.Account, error) {
	return getAccount(ctx, s.db, `SELECT `+accountColumns+` FROM users WHERE username = ?`, username)
}

func (s *Accounts) ListByRole(ctx context.Context, role domain.Role) ([]domain.Account, error) {
	accounts := []domain.Account{}
	if err := s.db.SelectContext(ctx, &accounts, `SELECT `+accountColumns+` FROM users WHERE role = ? ORDER BY id`, role); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Update applies username and password changes to an account of the given
// role in one transaction.
func (s *Accounts) Update(ctx context.Context, id int64, role domain.Role, changes AccountChanges) (domain.Account, error) {
	var updated domain.Account
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		acc, err := getAccount(ctx, tx, `SELECT `+accountColumns+` FROM users WHERE id = ? AND role = ?`+forUpdate(tx), id, role)
		if err != nil {
			return err
		}
		if changes.Username != nil {
			if err := s.updateUsername(ctx, tx, id, *changes.Username); err != nil {
				return err
			}
			acc.Username = strings.TrimSpace(*changes.Username)
		}
		if changes.Password != nil {
			hash, err := s.updatePassword(ctx, tx, id, *changes.Password)
			if err != nil {
				return err
			}
			acc.PasswordHash = hash
		}
		updated = acc
		return nil
	})
	return updated, err
}

func (s *Accounts) UpdateUsername(ctx context.Context, id int64, username string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.updateUsername(ctx, s.db, id, username)
}

func (s *Accounts) UpdatePassword(ctx context.Context, id int64, password string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	_, err := s.updatePassword(ctx, s.db, id, password)
	return err
}

func (s *Accounts) updateUsername(ctx context.Context, ex sqlx.ExecerContext, id int64, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return invalid("username", "must not be empty")
	}
	_, err := ex.ExecContext(ctx, `UPDATE users SET username = ? WHERE id = ?`, username, id)
	if isDuplicateKey(err) {
		return ErrDuplicateUsername
	}
	if err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	return nil
}

func (s *Accounts) updatePassword(ctx context.Context, ex sqlx.ExecerContext, id int64, password string) (string, error) {
	if password == "" {
		return "", invalid("password", "must not be empty")
	}
	hashed, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if _, err := ex.ExecContext(ctx, `UPDATE users SET password = ? WHERE id = ?`, hashed, id); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	return hashed, nil
}

// Delete removes an account of the given role. Accounts that own sales are
// kept so that history stays attributable.
func (s *Accounts) Delete(ctx context.Context, id int64, role domain.Role) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := getAccount(ctx, tx, `SELECT `+accountColumns+` FROM users WHERE id = ? AND role = ?`+forUpdate(tx), id, role); err != nil {
			return err
		}
		var sales int64
		if err := tx.GetContext(ctx, &sales, `SELECT COUNT(*) FROM sales WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("count sales: %w", err)
		}
		if sales > 0 {
			return ErrAccountInUse
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}

func getAccount(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (domain.Account, error) {
	var acc domain.Account
	err := sqlx.GetContext(ctx, q, &acc, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}
