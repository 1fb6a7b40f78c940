package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/events"
)

type vendorMap map[string]*accounts.Account

func (m vendorMap) Get(ctx context.Context, id string) (*accounts.Account, error) { return m[id], nil }

type itemMap map[string]*catalog.MenuItem

func (m itemMap) Get(ctx context.Context, id string) (*catalog.MenuItem, error) { return m[id], nil }

type capturePublisher struct {
	events []events.OrderEvent
	err    error
}

func (c *capturePublisher) Publish(ctx context.Context, e events.OrderEvent) error {
	c.events = append(c.events, e)
	return c.err
}

type fixture struct {
	svc     *Service
	store   *Store
	pub     *capturePublisher
	vendors vendorMap
	items   itemMap
	student accounts.Principal
	vendor  accounts.Principal
}

func newFixture() *fixture {
	store := NewStore(newFakeDynamo(), "orders", "order_codes")
	vendors := vendorMap{
		"v1": {ID: "v1", Role: accounts.RoleVendor, IsActive: true, VendorInfo: &accounts.VendorInfo{ShopName: "Canteen", IsOpen: true}},
		"v2": {ID: "v2", Role: accounts.RoleVendor, IsActive: true, VendorInfo: &accounts.VendorInfo{ShopName: "Closed", IsOpen: false}},
	}
	items := itemMap{
		"a":   {ID: "a", VendorID: "v1", Name: "Khichuri", Price: 60, IsAvailable: true, PreparationTime: 20},
		"b":   {ID: "b", VendorID: "v1", Name: "Beef Tehari", Price: 120, IsAvailable: true, PreparationTime: 30},
		"off": {ID: "off", VendorID: "v1", Name: "Soup", Price: 50, IsAvailable: false, PreparationTime: 10},
		"x":   {ID: "x", VendorID: "v2", Name: "Tea", Price: 10, IsAvailable: true, PreparationTime: 5},
	}
	pub := &capturePublisher{}
	return &fixture{
		svc:     NewService(store, vendors, items, pub, nil),
		store:   store,
		pub:     pub,
		vendors: vendors,
		items:   items,
		student: accounts.Principal{ID: "s1", Role: accounts.RoleStudent, Active: true},
		vendor:  accounts.Principal{ID: "v1", Role: accounts.RoleVendor, Active: true},
	}
}

func (f *fixture) place(t *testing.T) *Order {
	t.Helper()
	o, err := f.svc.Place(context.Background(), f.student, PlaceRequest{
		VendorID: "v1",
		Items:    []LineRequest{{MenuItemID: "a", Quantity: 2}, {MenuItemID: "b", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Place error: %v", err)
	}
	return o
}

func TestPlace_PricingAndSnapshot(t *testing.T) {
	f := newFixture()
	o := f.place(t)

	if o.Subtotal != 240 || o.Tax != 12 || o.TotalAmount != 252 || o.DeliveryFee != 0 {
		t.Fatalf("unexpected totals %+v", o)
	}
	if o.Status != StatusPending || o.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected initial state %s/%s", o.Status, o.PaymentStatus)
	}
	if o.EstimatedTime != MinEstimatedTime {
		t.Fatalf("estimatedTime = %d, want %d", o.EstimatedTime, MinEstimatedTime)
	}
	if len(o.DeliveryCode) != deliveryCodeLen {
		t.Fatalf("bad delivery code %q", o.DeliveryCode)
	}

	f.items["a"].Price = 999
	stored, _ := f.store.Get(context.Background(), o.OrderID)
	if stored.Items[0].Price != 60 {
		t.Fatalf("order lines must keep the price at order time")
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Type != events.OrderPlaced || f.pub.events[0].ItemCount != 3 {
		t.Fatalf("unexpected events %+v", f.pub.events)
	}
}

func TestPlace_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		req  PlaceRequest
		kind apperr.Kind
	}{
		{"no items", PlaceRequest{VendorID: "v1"}, apperr.KindValidation},
		{"bad quantity", PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "a", Quantity: 51}}}, apperr.KindValidation},
		{"unknown vendor", PlaceRequest{VendorID: "zz", Items: []LineRequest{{MenuItemID: "a", Quantity: 1}}}, apperr.KindNotFound},
		{"closed vendor", PlaceRequest{VendorID: "v2", Items: []LineRequest{{MenuItemID: "x", Quantity: 1}}}, apperr.KindConflict},
		{"unavailable item", PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "off", Quantity: 1}}}, apperr.KindConflict},
		{"foreign item", PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "x", Quantity: 1}}}, apperr.KindNotFound},
		{"missing item", PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "gone", Quantity: 1}}}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		if _, err := f.svc.Place(ctx, f.student, tt.req); !apperr.Is(err, tt.kind) {
			t.Fatalf("%s: expected %s, got %v", tt.name, tt.kind, err)
		}
	}
	if _, err := f.svc.Place(ctx, f.vendor, PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "a", Quantity: 1}}}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("vendors cannot place orders, got %v", err)
	}
}

func TestPlace_RetriesDeliveryCodeCollision(t *testing.T) {
	f := newFixture()
	first := f.place(t)

	codes := []string{first.DeliveryCode, first.DeliveryCode, "FRESH001"}
	f.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	o, err := f.svc.Place(context.Background(), f.student, PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "a", Quantity: 1}}})
	if err != nil {
		t.Fatalf("Place error: %v", err)
	}
	if o.DeliveryCode != "FRESH001" {
		t.Fatalf("delivery code = %s, want FRESH001", o.DeliveryCode)
	}

	f.svc.newCode = func() (string, error) { return first.DeliveryCode, nil }
	_, err = f.svc.Place(context.Background(), f.student, PlaceRequest{VendorID: "v1", Items: []LineRequest{{MenuItemID: "a", Quantity: 1}}})
	if !apperr.Is(err, apperr.KindInternal) || !errors.Is(err, ErrDeliveryCodeTaken) {
		t.Fatalf("expected internal error after exhausting attempts, got %v", err)
	}
}

func TestUpdateStatus_StateMachine(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.place(t)

	if _, err := f.svc.UpdateStatus(ctx, f.vendor, o.OrderID, StatusUpdate{Status: StatusPreparing}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("pending -> preparing must be rejected, got %v", err)
	}
	stored, _ := f.store.Get(ctx, o.OrderID)
	if stored.Status != StatusPending {
		t.Fatalf("rejected transition changed status to %s", stored.Status)
	}

	if _, err := f.svc.UpdateStatus(ctx, f.vendor, o.OrderID, StatusUpdate{Status: StatusConfirmed}); err != nil {
		t.Fatalf("pending -> confirmed: %v", err)
	}
	est := 40
	got, err := f.svc.UpdateStatus(ctx, f.vendor, o.OrderID, StatusUpdate{Status: StatusReady, EstimatedTime: &est})
	if err != nil {
		t.Fatalf("confirmed -> ready fast path: %v", err)
	}
	if got.EstimatedTime != 40 {
		t.Fatalf("estimated time not applied")
	}
	got, err = f.svc.UpdateStatus(ctx, f.vendor, o.OrderID, StatusUpdate{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ready -> completed: %v", err)
	}
	if got.CompletedAt == nil || len(got.StatusHistory) != 4 {
		t.Fatalf("expected completion stamp and history, got %+v", got)
	}
	if _, err := f.svc.UpdateStatus(ctx, f.vendor, o.OrderID, StatusUpdate{Status: StatusReady}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("completed is terminal, got %v", err)
	}

	other := accounts.Principal{ID: "v2", Role: accounts.RoleVendor, Active: true}
	if _, err := f.svc.UpdateStatus(ctx, other, o.OrderID, StatusUpdate{Status: StatusConfirmed}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("foreign vendor must get not found, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, f.vendor, o.OrderID, StatusUpdate{Status: StatusCancelled}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("vendors cannot request cancelled, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	confirmed := f.place(t)
	if _, err := f.svc.UpdateStatus(ctx, f.vendor, confirmed.OrderID, StatusUpdate{Status: StatusConfirmed}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err := f.svc.Cancel(ctx, f.student, confirmed.OrderID, "")
	if err != nil {
		t.Fatalf("cancel confirmed order: %v", err)
	}
	if got.Status != StatusCancelled || got.CancelReason != DefaultCancelReason {
		t.Fatalf("unexpected cancelled order %+v", got)
	}
	if _, err := f.svc.UpdateStatus(ctx, f.vendor, confirmed.OrderID, StatusUpdate{Status: StatusPreparing}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("cancelled orders cannot be updated, got %v", err)
	}

	preparing := f.place(t)
	_, _ = f.svc.UpdateStatus(ctx, f.vendor, preparing.OrderID, StatusUpdate{Status: StatusConfirmed})
	_, _ = f.svc.UpdateStatus(ctx, f.vendor, preparing.OrderID, StatusUpdate{Status: StatusPreparing})
	if _, err := f.svc.Cancel(ctx, f.student, preparing.OrderID, "changed my mind"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("cancel in preparing must be rejected, got %v", err)
	}

	stranger := accounts.Principal{ID: "s9", Role: accounts.RoleStudent, Active: true}
	if _, err := f.svc.Cancel(ctx, stranger, preparing.OrderID, ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("foreign student must get not found, got %v", err)
	}
}

func TestSearchAndGet_AccessRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.place(t)

	got, err := f.svc.SearchByDeliveryCode(ctx, f.vendor, " "+strings.ToLower(o.DeliveryCode)+" ")
	if err != nil || got.OrderID != o.OrderID {
		t.Fatalf("search by lowercase code: %+v, %v", got, err)
	}
	if _, err := f.svc.Get(ctx, f.student, o.OrderID); err != nil {
		t.Fatalf("student can read own order: %v", err)
	}
	stranger := accounts.Principal{ID: "s9", Role: accounts.RoleStudent, Active: true}
	if _, err := f.svc.SearchByDeliveryCode(ctx, stranger, o.DeliveryCode); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Get(ctx, stranger, o.OrderID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.SearchByDeliveryCode(ctx, f.vendor, "NOPE0000"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	f.svc.nowFunc = func() time.Time { return day }

	for i := 0; i < 3; i++ {
		f.place(t)
		day = day.Add(time.Hour)
	}
	day = day.AddDate(0, 0, 1)
	last := f.place(t)
	_, _ = f.svc.UpdateStatus(ctx, f.vendor, last.OrderID, StatusUpdate{Status: StatusConfirmed})

	page, err := f.svc.ListForStudent(ctx, f.student, StudentFilter{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("ListForStudent error: %v", err)
	}
	if page.Pagination.Total != 4 || page.Pagination.Pages != 2 || len(page.Orders) != 1 {
		t.Fatalf("unexpected page %+v", page.Pagination)
	}
	first, _ := f.svc.ListForStudent(ctx, f.student, StudentFilter{})
	if first.Orders[0].OrderID != last.OrderID {
		t.Fatalf("orders must be newest first")
	}

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	incoming, err := f.svc.ListForVendor(ctx, f.vendor, VendorFilter{Date: &date})
	if err != nil {
		t.Fatalf("ListForVendor error: %v", err)
	}
	if incoming.Total != 3 || len(incoming.ByStatus[StatusPending]) != 3 {
		t.Fatalf("unexpected vendor listing %+v", incoming)
	}
	confirmed, _ := f.svc.ListForVendor(ctx, f.vendor, VendorFilter{Status: StatusConfirmed})
	if confirmed.Total != 1 {
		t.Fatalf("status filter failed: %d", confirmed.Total)
	}
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := f.place(t)

	got, err := f.svc.UpdatePaymentStatus(ctx, f.vendor, o.OrderID, PaymentUpdate{Status: PaymentPaid, PaymentID: "bkash-1"})
	if err != nil {
		t.Fatalf("pending -> paid: %v", err)
	}
	if got.PaymentStatus != PaymentPaid || got.Status != StatusPending {
		t.Fatalf("payment must not touch fulfilment status: %+v", got)
	}
	if _, err := f.svc.UpdatePaymentStatus(ctx, f.vendor, o.OrderID, PaymentUpdate{Status: PaymentPending}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("paid -> pending must be rejected, got %v", err)
	}
	if _, err := f.svc.UpdatePaymentStatus(ctx, f.vendor, o.OrderID, PaymentUpdate{Status: PaymentRefunded}); err != nil {
		t.Fatalf("paid -> refunded: %v", err)
	}
	if _, err := f.svc.UpdatePaymentStatus(ctx, f.vendor, o.OrderID, PaymentUpdate{Status: "bogus"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture()
	f.pub.err = errors.New("queue down")
	o := f.place(t)
	if stored, _ := f.store.Get(context.Background(), o.OrderID); stored == nil {
		t.Fatalf("order must be stored even when publishing fails")
	}
}
