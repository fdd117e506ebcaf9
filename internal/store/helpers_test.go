package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"apotek/m/domain"
	"apotek/m/internal/testutil"
)

type fixture struct {
	accounts  *Accounts
	medicines *Medicines
	sales     *Sales
	reports   *Reports
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return fixture{
		accounts:  NewAccounts(db, bcrypt.MinCost),
		medicines: NewMedicines(db),
		sales:     NewSales(db),
		reports:   NewReports(db),
	}
}

func (f fixture) cashier(t *testing.T, username string) domain.Account {
	t.Helper()
	acc, err := f.accounts.Create(context.Background(), username, domain.RoleCashier, "secret")
	require.NoError(t, err)
	return acc
}

func (f fixture) medicine(t *testing.T, name string, stock int64, price string) domain.Medicine {
	t.Helper()
	m, err := f.medicines.Create(context.Background(), NewMedicine{
		Name:      name,
		Stock:     stock,
		UnitPrice: decimal.RequireFromString(price),
	}, nil)
	require.NoError(t, err)
	return m
}

func (f fixture) stock(t *testing.T, id int64) int64 {
	t.Helper()
	m, err := f.medicines.Get(context.Background(), id)
	require.NoError(t, err)
	return m.Stock
}

func at(s string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
