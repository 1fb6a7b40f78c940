// Package events defines the order events sent from the API to the worker
// over SQS.
package events

import (
	"context"
	"time"

	"github.com/imrishuroy/go-campus-orderflow/internal/aws"
)

// Type names an order event.
type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderStatusChanged Type = "order.status_changed"
	OrderCancelled     Type = "order.cancelled"
	PaymentUpdated     Type = "order.payment_updated"
)

// OrderEvent is the payload sent from API -> SQS -> Worker.
type OrderEvent struct {
	EventID        string    `json:"event_id"`
	Type           Type      `json:"type"`
	OrderID        string    `json:"order_id"`
	StudentID      string    `json:"student_id"`
	VendorID       string    `json:"vendor_id"`
	DeliveryCode   string    `json:"delivery_code,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	PaymentStatus  string    `json:"payment_status,omitempty"`
	TotalAmount    float64   `json:"total_amount"`
	ItemCount      int       `json:"item_count"`
	OccurredAt     time.Time `json:"occurred_at"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// Publisher delivers order events.
type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
}

// SQSPublisher sends events as JSON messages on the orders queue.
type SQSPublisher struct {
	pub *aws.Publisher
}

func NewSQSPublisher(pub *aws.Publisher) *SQSPublisher {
	return &SQSPublisher{pub: pub}
}

func (s *SQSPublisher) Publish(ctx context.Context, e OrderEvent) error {
	return s.pub.SendJSON(ctx, e, map[string]string{
		"event_type":     string(e.Type),
		"order_id":       e.OrderID,
		"vendor_id":      e.VendorID,
		"correlation_id": e.CorrelationID,
	})
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, OrderEvent) error { return nil }

type correlationKey struct{}

// WithCorrelationID attaches a request id to ctx for events raised while serving it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the request id stored by WithCorrelationID.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
