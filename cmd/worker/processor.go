package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/aws"
	"github.com/imrishuroy/go-campus-orderflow/internal/events"
	"github.com/imrishuroy/go-campus-orderflow/internal/idempotency"
)

var errDuplicateInFlight = errors.New("event is being processed by another invocation")

// Processor handles SQS batches of order events.
type Processor struct {
	dedupe  *idempotency.Store
	metrics *aws.MetricsEmitter
	logger  *zap.Logger
}

// NewProcessor wires the dedupe store and metrics emitter.
func NewProcessor(dedupe *idempotency.Store, metrics *aws.MetricsEmitter, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{dedupe: dedupe, metrics: metrics, logger: logger}
}

// Handle processes every record and reports the ones that failed so only
// those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var resp lambdaevents.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("process order event",
				zap.String("message_id", rec.MessageId),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	p.logger.Info("batch processed",
		zap.Int("records", len(ev.Records)),
		zap.Int("failures", len(resp.BatchItemFailures)))
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var e events.OrderEvent
	if err := json.Unmarshal([]byte(rec.Body), &e); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if e.EventID == "" || e.OrderID == "" {
		return fmt.Errorf("event without id: order=%q event=%q", e.OrderID, e.EventID)
	}

	key := "event#" + e.EventID
	existing, created, err := p.dedupe.Begin(ctx, key, string(e.Type))
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		if existing.Status == idempotency.StatusDone {
			p.logger.Info("duplicate event skipped", zap.String("event_id", e.EventID), zap.String("order_id", e.OrderID))
			return nil
		}
		return errDuplicateInFlight
	}

	if err := p.apply(ctx, e); err != nil {
		if mErr := p.dedupe.MarkFailed(ctx, key, err.Error()); mErr != nil {
			p.logger.Error("mark event failed", zap.String("event_id", e.EventID), zap.Error(mErr))
		}
		return err
	}
	if err := p.dedupe.MarkDone(ctx, key, string(e.Type), 200); err != nil {
		// leave no in-progress record behind so a redelivery can claim the event
		if rErr := p.dedupe.Release(ctx, key); rErr != nil {
			p.logger.Error("release event", zap.String("event_id", e.EventID), zap.Error(rErr))
		}
		return fmt.Errorf("mark event done: %w", err)
	}
	return nil
}

// apply sends the notification for e and records its metrics.
func (p *Processor) apply(ctx context.Context, e events.OrderEvent) error {
	log := p.logger.With(
		zap.String("event_id", e.EventID),
		zap.String("order_id", e.OrderID),
		zap.String("correlation_id", e.CorrelationID),
	)
	vendor := map[string]string{"VendorId": e.VendorID}

	var datums []aws.Datum
	switch e.Type {
	case events.OrderPlaced:
		log.Info("notify vendor: new order",
			zap.String("vendor_id", e.VendorID),
			zap.String("delivery_code", e.DeliveryCode),
			zap.Int("items", e.ItemCount),
			zap.Float64("total_amount", e.TotalAmount))
		datums = append(datums,
			aws.Datum{Name: "OrdersPlaced", Value: 1, Dimensions: vendor},
			aws.Datum{Name: "OrderValue", Value: e.TotalAmount, Unit: cwtypes.StandardUnitNone, Dimensions: vendor},
		)
	case events.OrderStatusChanged:
		log.Info("notify student: order status changed",
			zap.String("student_id", e.StudentID),
			zap.String("from", e.PreviousStatus),
			zap.String("to", e.Status))
		datums = append(datums, aws.Datum{
			Name:       "OrderStatusChanged",
			Value:      1,
			Dimensions: map[string]string{"VendorId": e.VendorID, "Status": e.Status},
		})
	case events.OrderCancelled:
		log.Info("notify vendor: order cancelled",
			zap.String("vendor_id", e.VendorID),
			zap.String("previous_status", e.PreviousStatus))
		datums = append(datums, aws.Datum{Name: "OrdersCancelled", Value: 1, Dimensions: vendor})
	case events.PaymentUpdated:
		log.Info("notify student: payment updated",
			zap.String("student_id", e.StudentID),
			zap.String("payment_status", e.PaymentStatus))
	default:
		log.Warn("unknown event type ignored", zap.String("type", string(e.Type)))
		return nil
	}

	if err := p.metrics.Put(ctx, datums...); err != nil {
		return fmt.Errorf("emit metrics: %w", err)
	}
	return nil
}
