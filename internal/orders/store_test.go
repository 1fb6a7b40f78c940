package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-campus-orderflow/internal/dynamotest"
)

func newFakeDynamo() *dynamotest.Fake {
	return dynamotest.New(
		dynamotest.Table{Name: "orders", Key: "order_id", Indexes: map[string]string{StudentIndex: "student_id", VendorIndex: "vendor_id"}},
		dynamotest.Table{Name: "order_codes", Key: "delivery_code"},
		dynamotest.Table{Name: "accounts", Key: "account_id"},
	)
}

func sampleOrder(id, code string) *Order {
	return &Order{
		OrderID:       id,
		StudentID:     "s1",
		VendorID:      "v1",
		Items:         []OrderLine{{MenuItemID: "m1", Name: "Tea", Price: 10, Quantity: 2, Subtotal: 20}},
		Subtotal:      20,
		Tax:           1,
		TotalAmount:   21,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		DeliveryCode:  code,
		EstimatedTime: 15,
	}
}

func TestCreateAndGet(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")
	ctx := context.Background()

	o := sampleOrder("o1", "ABCD1234")
	if err := store.Create(ctx, o); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if o.Version != 1 || o.CreatedAt.IsZero() {
		t.Fatalf("expected version 1 and timestamps, got %+v", o)
	}

	got, err := store.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || got.DeliveryCode != "ABCD1234" || got.Items[0].Subtotal != 20 {
		t.Fatalf("unexpected order %+v", got)
	}

	byCode, err := store.GetByDeliveryCode(ctx, "ABCD1234")
	if err != nil || byCode == nil || byCode.OrderID != "o1" {
		t.Fatalf("GetByDeliveryCode = %+v, %v", byCode, err)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing order, got %+v, %v", missing, err)
	}
}

func TestCreate_DuplicateDeliveryCode(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")
	ctx := context.Background()

	if err := store.Create(ctx, sampleOrder("o1", "SAMECODE")); err != nil {
		t.Fatalf("first Create error: %v", err)
	}
	err := store.Create(ctx, sampleOrder("o2", "SAMECODE"))
	if !errors.Is(err, ErrDeliveryCodeTaken) {
		t.Fatalf("expected ErrDeliveryCodeTaken, got %v", err)
	}
	if mock.Len("orders") != 1 {
		t.Fatalf("failed transaction must not write the order")
	}
}

func TestCreate_ExtraItemConflict(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")

	guard := types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:           awsString("accounts"),
		Key:                 map[string]types.AttributeValue{"account_id": &types.AttributeValueMemberS{Value: "s1"}},
		ConditionExpression: awsString("attribute_exists(account_id)"),
	}}
	err := store.Create(context.Background(), sampleOrder("o1", "CODE0001"), guard)
	if !errors.Is(err, ErrTransactionConflict) {
		t.Fatalf("expected ErrTransactionConflict, got %v", err)
	}
	if mock.Len("orders") != 0 || mock.Len("order_codes") != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestReplace_StatusAndVersionGuard(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")
	ctx := context.Background()
	o := sampleOrder("o1", "CODE0001")
	if err := store.Create(ctx, o); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	stale, _ := store.Get(ctx, "o1")

	o.Status = StatusConfirmed
	if err := store.Replace(ctx, o, StatusPending); err != nil {
		t.Fatalf("Replace error: %v", err)
	}
	if o.Version != 2 {
		t.Fatalf("version = %d, want 2", o.Version)
	}

	stale.Status = StatusCancelled
	if err := store.Replace(ctx, stale, StatusPending); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for stale write, got %v", err)
	}
	if stale.Version != 1 {
		t.Fatalf("failed Replace must restore the version")
	}

	got, _ := store.Get(ctx, "o1")
	if got.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
}

func TestUpdatePayment(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")
	store.nowFunc = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := store.Create(ctx, sampleOrder("o1", "CODE0001")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	o, _ := store.Get(ctx, "o1")
	if err := store.UpdatePayment(ctx, o, PaymentPaid, "pay_1"); err != nil {
		t.Fatalf("UpdatePayment error: %v", err)
	}
	if o.PaymentStatus != PaymentPaid || o.Version != 2 {
		t.Fatalf("order not updated in place: %+v", o)
	}
	got, _ := store.Get(ctx, "o1")
	if got.PaymentStatus != PaymentPaid || got.PaymentID != "pay_1" || got.Version != 2 {
		t.Fatalf("unexpected payment state %+v", got)
	}

	stale := sampleOrder("o1", "CODE0001")
	stale.Version = 2
	if err := store.UpdatePayment(ctx, stale, PaymentFailed, ""); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for a payment status mismatch, got %v", err)
	}
	if err := store.UpdatePayment(ctx, sampleOrder("missing", "X"), PaymentPaid, ""); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for missing order, got %v", err)
	}
	if mock.Len("orders") != 1 {
		t.Fatalf("UpdatePayment must not create orders")
	}
}

func TestReplace_AfterPaymentUpdateRejectsStaleRead(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")
	ctx := context.Background()
	if err := store.Create(ctx, sampleOrder("o1", "CODE0001")); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	stale, _ := store.Get(ctx, "o1")
	fresh, _ := store.Get(ctx, "o1")
	if err := store.UpdatePayment(ctx, fresh, PaymentPaid, "pay_1"); err != nil {
		t.Fatalf("UpdatePayment error: %v", err)
	}

	stale.Status = StatusConfirmed
	if err := store.Replace(ctx, stale, StatusPending); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for a read older than the payment change, got %v", err)
	}
	got, _ := store.Get(ctx, "o1")
	if got.PaymentStatus != PaymentPaid || got.PaymentID != "pay_1" || got.Status != StatusPending {
		t.Fatalf("payment change was rolled back: %+v", got)
	}

	fresh.Status = StatusConfirmed
	if err := store.Replace(ctx, fresh, StatusPending); err != nil {
		t.Fatalf("Replace from the current read should succeed: %v", err)
	}
	got, _ = store.Get(ctx, "o1")
	if got.Status != StatusConfirmed || got.PaymentStatus != PaymentPaid {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestListAndOpenOrders(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "orders", "order_codes")
	ctx := context.Background()

	a := sampleOrder("o1", "CODE0001")
	a.Status = StatusPreparing
	b := sampleOrder("o2", "CODE0002")
	b.Status = StatusCompleted
	b.Items[0].MenuItemID = "m2"
	c := sampleOrder("o3", "CODE0003")
	c.StudentID = "s2"
	c.VendorID = "v2"
	for _, o := range []*Order{a, b, c} {
		if err := store.Create(ctx, o); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	mine, err := store.ListByStudent(ctx, "s1")
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListByStudent = %d, %v", len(mine), err)
	}
	incoming, err := store.ListByVendor(ctx, "v2")
	if err != nil || len(incoming) != 1 {
		t.Fatalf("ListByVendor = %d, %v", len(incoming), err)
	}

	open, err := store.HasOpenOrdersForItem(ctx, "v1", "m1")
	if err != nil || !open {
		t.Fatalf("m1 is in a preparing order: %v, %v", open, err)
	}
	open, _ = store.HasOpenOrdersForItem(ctx, "v1", "m2")
	if open {
		t.Fatalf("m2 only appears in completed orders")
	}
}
