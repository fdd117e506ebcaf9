package api

import (
	"time"

	"apotek/m/domain"
)

type accountView struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
}

func newAccountView(acc domain.Account) accountView {
	return accountView{ID: acc.ID, Username: acc.Username, Role: acc.Role}
}

// Money fields are strings with exactly two decimals.
type medicineView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
	UnitPrice string `json:"unit_price"`
	Image     string `json:"image"`
}

func newMedicineView(m domain.Medicine) medicineView {
	return medicineView{ID: m.ID, Name: m.Name, Stock: m.Stock, UnitPrice: m.UnitPrice.StringFixed(2), Image: m.Image}
}

func newMedicineViews(ms []domain.Medicine) []medicineView {
	out := make([]medicineView, len(ms))
	for i, m := range ms {
		out[i] = newMedicineView(m)
	}
	return out
}

type saleLineView struct {
	ID           int64  `json:"id,omitempty"`
	MedicineID   int64  `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Subtotal     string `json:"subtotal"`
}

type saleView struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Total     string         `json:"total"`
	UserID    int64          `json:"user_id"`
	Items     []saleLineView `json:"items"`
}

func newSaleView(s domain.Sale) saleView {
	v := saleView{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Total:     s.Total.StringFixed(2),
		UserID:    s.UserID,
		Items:     make([]saleLineView, len(s.Lines)),
	}
	for i, l := range s.Lines {
		v.Items[i] = saleLineView{
			ID:           l.ID,
			MedicineID:   l.MedicineID,
			MedicineName: l.MedicineName,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice.StringFixed(2),
			Subtotal:     l.Subtotal.StringFixed(2),
		}
	}
	return v
}

type reportEntryView struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Total     string    `json:"total"`
	Cashier   string    `json:"cashier"`
}

type weeklyReportView struct {
	Since          time.Time         `json:"since"`
	TotalRevenue   string            `json:"total_revenue"`
	TotalUnitsSold int64             `json:"total_units_sold"`
	Transactions   []reportEntryView `json:"transactions"`
}

func newWeeklyReportView(r domain.WeeklyReport) weeklyReportView {
	v := weeklyReportView{
		Since:          r.Since,
		TotalRevenue:   r.TotalRevenue.StringFixed(2),
		TotalUnitsSold: r.TotalUnitsSold,
		Transactions:   make([]reportEntryView, len(r.Transactions)),
	}
	for i, s := range r.Transactions {
		v.Transactions[i] = reportEntryView{ID: s.ID, CreatedAt: s.CreatedAt, Total: s.Total.StringFixed(2), Cashier: s.Cashier}
	}
	return v
}
