package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCart        = errors.New("cart must contain at least one item with a positive quantity")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrMedicineInUse      = errors.New("medicine is referenced by recorded sales")
	ErrAccountInUse       = errors.New("account has recorded sales")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ItemNotFoundError is returned when a cart references an unknown medicine.
type ItemNotFoundError struct {
	ID int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("medicine %d not found", e.ID)
}

// InsufficientStockError is returned when a cart asks for more than is on hand.
type InsufficientStockError struct {
	Name string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.Name)
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			strings.Contains(se.Error(), "UNIQUE constraint failed")
	}
	return false
}
