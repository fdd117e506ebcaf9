// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"apotek/m/domain"
)

const SaleRecorded = "sale.recorded"

// Publisher announces recorded sales to downstream consumers.
type Publisher interface {
	PublishSaleRecorded(ctx context.Context, sale domain.Sale) error
	Close() error
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishSaleRecorded(context.Context, domain.Sale) error { return nil }
func (Nop) Close() error                                        { return nil }

type saleLine struct {
	MedicineID   int64  `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Subtotal     string `json:"subtotal"`
}

type saleEvent struct {
	Type      string     `json:"type"`
	SaleID    int64      `json:"sale_id"`
	UserID    int64      `json:"user_id"`
	Total     string     `json:"total"`
	CreatedAt time.Time  `json:"created_at"`
	Lines     []saleLine `json:"items"`
}

// Kafka writes events asynchronously; delivery failures are logged, never
// returned to the caller that recorded the sale.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string, log zerolog.Logger) *Kafka {
	log = log.With().Str("component", "events").Str("topic", topic).Logger()
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			Async:                  true,
			BatchTimeout:           50 * time.Millisecond,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Int("messages", len(messages)).Msg("kafka delivery failed")
				}
			},
		},
	}
}

func (k *Kafka) PublishSaleRecorded(ctx context.Context, sale domain.Sale) error {
	msg, err := saleMessage(sale)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sale %d: %w", sale.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func saleMessage(sale domain.Sale) (kafka.Message, error) {
	ev := saleEvent{
		Type:      SaleRecorded,
		SaleID:    sale.ID,
		UserID:    sale.UserID,
		Total:     sale.Total.StringFixed(2),
		CreatedAt: sale.CreatedAt.UTC(),
		Lines:     make([]saleLine, 0, len(sale.Lines)),
	}
	for _, l := range sale.Lines {
		ev.Lines = append(ev.Lines, saleLine{
			MedicineID:   l.MedicineID,
			MedicineName: l.MedicineName,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice.StringFixed(2),
			Subtotal:     l.Subtotal.StringFixed(2),
		})
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode sale event: %w", err)
	}
	return kafka.Message{
		Key:     []byte(fmt.Sprintf("%s.%d", SaleRecorded, sale.ID)),
		Value:   body,
		Headers: []kafka.Header{{Key: "type", Value: []byte(SaleRecorded)}},
		Time:    sale.CreatedAt.UTC(),
	}, nil
}
