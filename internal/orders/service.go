package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/events"
	"github.com/imrishuroy/go-campus-orderflow/internal/metrics"
)

// Vendors loads vendor accounts.
type Vendors interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
}

// MenuItems loads menu items by id.
type MenuItems interface {
	Get(ctx context.Context, id string) (*catalog.MenuItem, error)
}

// Service drives order creation and the status state machine.
type Service struct {
	store   *Store
	vendors Vendors
	items   MenuItems
	events  events.Publisher
	logger  *zap.Logger
	newID   func() string
	newCode func() (string, error)
	nowFunc func() time.Time
}

// NewService wires an orders Service. A nil publisher drops events.
func NewService(store *Store, vendors Vendors, items MenuItems, pub events.Publisher, logger *zap.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		vendors: vendors,
		items:   items,
		events:  pub,
		logger:  logger.Named("orders"),
		newID:   uuid.NewString,
		newCode: NewDeliveryCode,
		nowFunc: time.Now,
	}
}

// LineRequest asks for quantity units of a menu item.
type LineRequest struct {
	MenuItemID          string
	Quantity            int
	SpecialInstructions string
}

// PlaceRequest is a direct order for one vendor.
type PlaceRequest struct {
	VendorID string
	Items    []LineRequest
	Notes    string
}

type placeOptions struct {
	extra []types.TransactWriteItem
}

// PlaceOption customises Place.
type PlaceOption func(*placeOptions)

// AlongWith adds writes that must commit in the same transaction as the order.
func AlongWith(items ...types.TransactWriteItem) PlaceOption {
	return func(o *placeOptions) { o.extra = append(o.extra, items...) }
}

// EstimateTime converts total kitchen minutes (preparation time × quantity
// summed over lines) into a ready estimate.
func EstimateTime(workMinutes int) int {
	est := int(math.Round(float64(workMinutes) / 10))
	if est < MinEstimatedTime {
		est = MinEstimatedTime
	}
	if est > MaxEstimatedTime {
		est = MaxEstimatedTime
	}
	return est
}

// Price computes tax and total for a subtotal.
func Price(subtotal float64) (tax, total float64) {
	tax = math.Round(subtotal * TaxRate)
	return tax, subtotal + tax + DeliveryFee
}

// Place validates the request against live vendor and menu data and creates
// the order in pending status.
func (s *Service) Place(ctx context.Context, p accounts.Principal, req PlaceRequest, opts ...PlaceOption) (*Order, error) {
	if err := p.Require(accounts.RoleStudent); err != nil {
		return nil, err
	}
	var po placeOptions
	for _, opt := range opts {
		opt(&po)
	}

	var problems []string
	if req.VendorID == "" {
		problems = append(problems, "Vendor ID is required")
	}
	if len(req.Items) == 0 {
		problems = append(problems, "Order items are required")
	}
	if len([]rune(req.Notes)) > MaxNotesLen {
		problems = append(problems, fmt.Sprintf("Notes cannot exceed %d characters", MaxNotesLen))
	}
	for _, l := range req.Items {
		if l.MenuItemID == "" || l.Quantity < MinQuantity || l.Quantity > MaxQuantity {
			problems = append(problems, fmt.Sprintf("Invalid item data: menuItemId and a quantity between %d and %d are required", MinQuantity, MaxQuantity))
			break
		}
	}
	if len(problems) > 0 {
		return nil, apperr.Validation("Validation failed", problems...)
	}

	vendor, err := s.vendors.Get(ctx, req.VendorID)
	if err != nil {
		return nil, apperr.Internal("load vendor", err)
	}
	if vendor == nil || vendor.Role != accounts.RoleVendor || !vendor.IsActive {
		return nil, apperr.NotFound("Vendor not found or inactive")
	}
	if !vendor.IsOpenVendor() {
		return nil, apperr.Conflict("Vendor is currently closed")
	}

	lines := make([]OrderLine, 0, len(req.Items))
	var subtotal float64
	work := 0
	for _, l := range req.Items {
		item, err := s.items.Get(ctx, l.MenuItemID)
		if err != nil {
			return nil, apperr.Internal("load menu item", err)
		}
		if item == nil || item.VendorID != req.VendorID {
			return nil, apperr.NotFound(fmt.Sprintf("Menu item %s not found", l.MenuItemID))
		}
		if !item.IsAvailable {
			return nil, apperr.Conflict(fmt.Sprintf("Menu item %s is not available", item.Name))
		}
		line := OrderLine{
			MenuItemID:          item.ID,
			Name:                item.Name,
			Price:               item.Price,
			Quantity:            l.Quantity,
			SpecialInstructions: l.SpecialInstructions,
			Subtotal:            item.Price * float64(l.Quantity),
		}
		subtotal += line.Subtotal
		work += item.PreparationTime * l.Quantity
		lines = append(lines, line)
	}

	tax, total := Price(subtotal)
	now := s.nowFunc()
	o := &Order{
		OrderID:       s.newID(),
		StudentID:     p.ID,
		VendorID:      req.VendorID,
		Items:         lines,
		Subtotal:      subtotal,
		Tax:           tax,
		DeliveryFee:   DeliveryFee,
		TotalAmount:   total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		EstimatedTime: EstimateTime(work),
		Notes:         req.Notes,
		StatusHistory: []StatusChange{{To: StatusPending, By: string(accounts.RoleStudent), At: now}},
		CreatedAt:     now,
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, apperr.Internal("generate delivery code", err)
		}
		o.DeliveryCode = code

		err = s.store.Create(ctx, o, po.extra...)
		switch {
		case err == nil:
			s.logger.Info("order placed",
				zap.String("order_id", o.OrderID),
				zap.String("vendor_id", o.VendorID),
				zap.Float64("total", o.TotalAmount))
			metrics.RecordOrderPlaced(o.TotalAmount)
			s.publish(ctx, events.OrderPlaced, o, "")
			return o, nil
		case errors.Is(err, ErrDeliveryCodeTaken):
			s.logger.Warn("delivery code collision", zap.Int("attempt", attempt))
			continue
		case errors.Is(err, ErrTransactionConflict):
			return nil, apperr.Conflict("Your cart changed while placing the order, please try again")
		default:
			return nil, apperr.Internal("create order", err)
		}
	}
	return nil, apperr.Internal("create order", fmt.Errorf("no free delivery code after %d attempts: %w", maxCodeAttempts, ErrDeliveryCodeTaken))
}

// StatusUpdate is a vendor's request to advance an order.
type StatusUpdate struct {
	Status        Status
	EstimatedTime *int
}

// UpdateStatus moves an order owned by the vendor along the state machine.
func (s *Service) UpdateStatus(ctx context.Context, p accounts.Principal, orderID string, u StatusUpdate) (*Order, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	if !u.Status.VendorSettable() {
		return nil, apperr.Validation("Invalid status. Valid statuses: confirmed, preparing, ready, completed")
	}
	if u.EstimatedTime != nil && (*u.EstimatedTime < MinEstimatedOverride || *u.EstimatedTime > MaxEstimatedTime) {
		return nil, apperr.Validation(fmt.Sprintf("Estimated time must be between %d and %d minutes", MinEstimatedOverride, MaxEstimatedTime))
	}

	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("load order", err)
	}
	if o == nil || o.VendorID != p.ID {
		return nil, apperr.NotFound("Order not found")
	}
	if o.Status == StatusCancelled {
		return nil, apperr.Conflict("Cannot update cancelled order")
	}
	if !CanTransition(o.Status, u.Status) {
		return nil, apperr.Conflict(fmt.Sprintf("Invalid status progression from %s to %s", o.Status, u.Status))
	}

	from := o.Status
	now := s.nowFunc()
	o.Status = u.Status
	o.StatusHistory = append(o.StatusHistory, StatusChange{From: from, To: u.Status, By: string(accounts.RoleVendor), At: now})
	if u.EstimatedTime != nil {
		o.EstimatedTime = *u.EstimatedTime
	}
	if u.Status == StatusCompleted {
		o.CompletedAt = &now
	}
	if err := s.replace(ctx, o, from); err != nil {
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order_id", o.OrderID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)))
	metrics.RecordOrderTransition(string(from), string(o.Status))
	s.publish(ctx, events.OrderStatusChanged, o, from)
	return o, nil
}

// Cancel cancels a student's order while it is still pending or confirmed.
func (s *Service) Cancel(ctx context.Context, p accounts.Principal, orderID, reason string) (*Order, error) {
	if err := p.Require(accounts.RoleStudent); err != nil {
		return nil, err
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("load order", err)
	}
	if o == nil || o.StudentID != p.ID {
		return nil, apperr.NotFound("Order not found")
	}
	if !CanCancel(o.Status) {
		return nil, apperr.Conflict("Order cannot be cancelled at this stage")
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultCancelReason
	}

	from := o.Status
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.StatusHistory = append(o.StatusHistory, StatusChange{From: from, To: StatusCancelled, By: string(accounts.RoleStudent), At: s.nowFunc()})
	if err := s.replace(ctx, o, from); err != nil {
		return nil, err
	}

	metrics.RecordOrderTransition(string(from), string(StatusCancelled))
	s.publish(ctx, events.OrderCancelled, o, from)
	return o, nil
}

func (s *Service) replace(ctx context.Context, o *Order, from Status) error {
	err := s.store.Replace(ctx, o, from)
	if errors.Is(err, ErrStatusMismatch) {
		return apperr.Conflict("Order was modified concurrently, please reload and try again")
	}
	if err != nil {
		return apperr.Internal("save order", err)
	}
	return nil
}

// Get returns an order visible to its student or vendor.
func (s *Service) Get(ctx context.Context, p accounts.Principal, orderID string) (*Order, error) {
	if err := p.RequireActive(); err != nil {
		return nil, err
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("load order", err)
	}
	if o == nil {
		return nil, apperr.NotFound("Order not found")
	}
	if err := authorize(p, o); err != nil {
		return nil, err
	}
	return o, nil
}

// SearchByDeliveryCode finds an order by its pickup code, ignoring case.
func (s *Service) SearchByDeliveryCode(ctx context.Context, p accounts.Principal, code string) (*Order, error) {
	if err := p.RequireActive(); err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Validation("Delivery code is required")
	}
	o, err := s.store.GetByDeliveryCode(ctx, code)
	if err != nil {
		return nil, apperr.Internal("search delivery code", err)
	}
	if o == nil {
		return nil, apperr.NotFound("Order not found with this delivery code")
	}
	if err := authorize(p, o); err != nil {
		return nil, err
	}
	return o, nil
}

func authorize(p accounts.Principal, o *Order) error {
	if p.ID == o.StudentID || p.ID == o.VendorID {
		return nil
	}
	return apperr.Forbidden("Access denied")
}

// Pagination describes a page of results.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// StudentFilter narrows a student's order history.
type StudentFilter struct {
	Status Status
	Page   int
	Limit  int
}

// StudentOrders is one page of a student's orders.
type StudentOrders struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// ListForStudent returns the student's orders, newest first.
func (s *Service) ListForStudent(ctx context.Context, p accounts.Principal, f StudentFilter) (*StudentOrders, error) {
	if err := p.Require(accounts.RoleStudent); err != nil {
		return nil, err
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}

	all, err := s.store.ListByStudent(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list student orders", err)
	}
	matched := all[:0]
	for _, o := range all {
		if f.Status == "" || o.Status == f.Status {
			matched = append(matched, o)
		}
	}
	newestFirst(matched)

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return &StudentOrders{
		Orders: matched[start:end],
		Pagination: Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: (total + f.Limit - 1) / f.Limit,
		},
	}, nil
}

// VendorFilter narrows a vendor's incoming orders. Date selects one calendar day.
type VendorFilter struct {
	Status Status
	Date   *time.Time
}

// VendorOrders lists incoming orders and the same orders grouped by status.
type VendorOrders struct {
	Orders   []Order            `json:"orders"`
	ByStatus map[Status][]Order `json:"ordersByStatus"`
	Total    int                `json:"total"`
}

// ListForVendor returns the vendor's incoming orders, newest first.
func (s *Service) ListForVendor(ctx context.Context, p accounts.Principal, f VendorFilter) (*VendorOrders, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	all, err := s.store.ListByVendor(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list vendor orders", err)
	}

	var from, to time.Time
	if f.Date != nil {
		d := *f.Date
		from = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		to = from.AddDate(0, 0, 1)
	}

	out := &VendorOrders{Orders: []Order{}, ByStatus: map[Status][]Order{}}
	for _, o := range all {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Date != nil {
			at := o.CreatedAt.In(from.Location())
			if at.Before(from) || !at.Before(to) {
				continue
			}
		}
		out.Orders = append(out.Orders, o)
	}
	newestFirst(out.Orders)
	for _, o := range out.Orders {
		out.ByStatus[o.Status] = append(out.ByStatus[o.Status], o)
	}
	out.Total = len(out.Orders)
	return out, nil
}

// AllForVendor returns every order of vendorID without filtering.
func (s *Service) AllForVendor(ctx context.Context, vendorID string) ([]Order, error) {
	all, err := s.store.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, apperr.Internal("list vendor orders", err)
	}
	return all, nil
}

// PaymentUpdate is a vendor's request to change the payment track.
type PaymentUpdate struct {
	Status    PaymentStatus
	PaymentID string
}

// UpdatePaymentStatus changes the payment status independently of fulfilment.
func (s *Service) UpdatePaymentStatus(ctx context.Context, p accounts.Principal, orderID string, u PaymentUpdate) (*Order, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	if !u.Status.Valid() {
		return nil, apperr.Validation("Invalid payment status. Valid statuses: pending, paid, failed, refunded")
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal("load order", err)
	}
	if o == nil || o.VendorID != p.ID {
		return nil, apperr.NotFound("Order not found")
	}
	if !CanTransitionPayment(o.PaymentStatus, u.Status) {
		return nil, apperr.Conflict(fmt.Sprintf("Cannot change payment status from %s to %s", o.PaymentStatus, u.Status))
	}

	err = s.store.UpdatePayment(ctx, o, u.Status, u.PaymentID)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.Conflict("Order was modified concurrently, please reload and try again")
	}
	if err != nil {
		return nil, apperr.Internal("update payment", err)
	}
	s.publish(ctx, events.PaymentUpdated, o, "")
	return o, nil
}

// publish sends an order event. Failures are logged; the write already committed.
func (s *Service) publish(ctx context.Context, t events.Type, o *Order, previous Status) {
	e := events.OrderEvent{
		EventID:        s.newID(),
		Type:           t,
		OrderID:        o.OrderID,
		StudentID:      o.StudentID,
		VendorID:       o.VendorID,
		DeliveryCode:   o.DeliveryCode,
		Status:         string(o.Status),
		PreviousStatus: string(previous),
		PaymentStatus:  string(o.PaymentStatus),
		TotalAmount:    o.TotalAmount,
		ItemCount:      o.ItemCount(),
		OccurredAt:     s.nowFunc(),
		CorrelationID:  events.CorrelationID(ctx),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Error("publish order event failed",
			zap.String("order_id", o.OrderID),
			zap.String("type", string(t)),
			zap.Error(err))
	}
}

func newestFirst(orders []Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
