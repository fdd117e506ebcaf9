package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apotek/m/domain"
)

func TestSaleMessage(t *testing.T) {
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	sale := domain.Sale{
		ID:        42,
		UserID:    7,
		Total:     decimal.RequireFromString("23"),
		CreatedAt: created,
		Lines: []domain.SaleLine{
			{MedicineID: 1, MedicineName: "Paracetamol", Quantity: 2, UnitPrice: decimal.RequireFromString("7.5"), Subtotal: decimal.RequireFromString("15")},
			{MedicineID: 2, MedicineName: "Vitamin C", Quantity: 1, UnitPrice: decimal.RequireFromString("8"), Subtotal: decimal.RequireFromString("8")},
		},
	}

	msg, err := saleMessage(sale)
	require.NoError(t, err)
	assert.Equal(t, "sale.recorded.42", string(msg.Key))
	assert.Equal(t, created, msg.Time)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "sale.recorded", ev["type"])
	assert.Equal(t, float64(42), ev["sale_id"])
	assert.Equal(t, "23.00", ev["total"])
	items := ev["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "7.50", items[0].(map[string]any)["unit_price"])
	assert.Equal(t, "Vitamin C", items[1].(map[string]any)["medicine_name"])
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishSaleRecorded(context.Background(), domain.Sale{ID: 1}))
	assert.NoError(t, p.Close())
}

func TestNewKafkaWriter(t *testing.T) {
	k := NewKafka([]string{"localhost:9092"}, "sale-events", zerolog.Nop())
	assert.Equal(t, "sale-events", k.writer.Topic)
	assert.True(t, k.writer.Async)
	assert.NoError(t, k.Close())
}
