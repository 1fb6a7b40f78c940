// Package cart manages the single-vendor cart embedded in student accounts
// and turns it into an order at checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/metrics"
	"github.com/imrishuroy/go-campus-orderflow/internal/orders"
)

const maxInstructionsLen = 200

// Accounts loads and persists accounts with version checks.
type Accounts interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
	Save(ctx context.Context, acct *accounts.Account) error
	SaveTransactItem(acct *accounts.Account) (types.TransactWriteItem, error)
}

// MenuItems loads menu items by id.
type MenuItems interface {
	Get(ctx context.Context, id string) (*catalog.MenuItem, error)
}

// Placer creates orders.
type Placer interface {
	Place(ctx context.Context, p accounts.Principal, req orders.PlaceRequest, opts ...orders.PlaceOption) (*orders.Order, error)
}

// Service implements the cart operations.
type Service struct {
	accounts Accounts
	items    MenuItems
	orders   Placer
	logger   *zap.Logger
	newID    func() string
	nowFunc  func() time.Time
}

func NewService(accts Accounts, items MenuItems, placer Placer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		accounts: accts,
		items:    items,
		orders:   placer,
		logger:   logger.Named("cart"),
		newID:    uuid.NewString,
		nowFunc:  time.Now,
	}
}

func (s *Service) load(ctx context.Context, p accounts.Principal) (*accounts.Account, error) {
	if err := p.Require(accounts.RoleStudent); err != nil {
		return nil, err
	}
	acct, err := s.accounts.Get(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("load account", err)
	}
	if acct == nil {
		return nil, apperr.NotFound("User not found")
	}
	if acct.Cart == nil {
		acct.Cart = &accounts.Cart{Items: []accounts.CartLine{}}
	}
	return acct, nil
}

func (s *Service) save(ctx context.Context, acct *accounts.Account, op string) error {
	err := s.accounts.Save(ctx, acct)
	if errors.Is(err, accounts.ErrVersionConflict) {
		return apperr.Conflict("Your cart was changed by another request, please try again")
	}
	if err != nil {
		return apperr.Internal("save cart", err)
	}
	metrics.RecordCartMutation(op)
	return nil
}

func checkQuantity(q int) error {
	if q < orders.MinQuantity || q > orders.MaxQuantity {
		return apperr.Validation(fmt.Sprintf("Quantity must be between %d and %d", orders.MinQuantity, orders.MaxQuantity))
	}
	return nil
}

func checkInstructions(s string) error {
	if len([]rune(s)) > maxInstructionsLen {
		return apperr.Validation(fmt.Sprintf("Special instructions cannot exceed %d characters", maxInstructionsLen))
	}
	return nil
}

// AddRequest adds an item. A nil Quantity means one.
type AddRequest struct {
	MenuItemID          string
	Quantity            *int
	SpecialInstructions string
}

// Add puts a menu item in the cart, merging with an existing line for the same item.
func (s *Service) Add(ctx context.Context, p accounts.Principal, req AddRequest) (*accounts.Cart, error) {
	if req.MenuItemID == "" {
		return nil, apperr.Validation("Menu item ID is required")
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}
	if err := checkInstructions(req.SpecialInstructions); err != nil {
		return nil, err
	}
	acct, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}

	item, err := s.items.Get(ctx, req.MenuItemID)
	if err != nil {
		return nil, apperr.Internal("load menu item", err)
	}
	if item == nil {
		return nil, apperr.NotFound("Menu item not found")
	}
	if !item.IsAvailable {
		return nil, apperr.Conflict("Menu item is not available")
	}
	vendor, err := s.accounts.Get(ctx, item.VendorID)
	if err != nil {
		return nil, apperr.Internal("load vendor", err)
	}
	if !vendor.IsOpenVendor() {
		return nil, apperr.Conflict("Vendor is currently closed")
	}

	c := acct.Cart
	if !c.Empty() && c.VendorID() != item.VendorID {
		return nil, apperr.Conflict("Cannot add items from different vendors. Please checkout current cart first.")
	}

	now := s.nowFunc()
	if i := c.LineForItem(item.ID); i >= 0 {
		q := c.Items[i].Quantity + quantity
		if q > orders.MaxQuantity {
			return nil, apperr.Validation(fmt.Sprintf("Cannot add more than %d of the same item", orders.MaxQuantity))
		}
		c.Items[i].Quantity = q
		c.Items[i].SpecialInstructions = req.SpecialInstructions
	} else {
		c.Items = append(c.Items, accounts.CartLine{
			ID:                  s.newID(),
			MenuItemID:          item.ID,
			VendorID:            item.VendorID,
			Name:                item.Name,
			Price:               item.Price,
			Quantity:            quantity,
			SpecialInstructions: req.SpecialInstructions,
			AddedAt:             now,
		})
	}
	c.Recalculate(now)
	if err := s.save(ctx, acct, "add"); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateRequest partially updates a line. Nil fields are left unchanged.
type UpdateRequest struct {
	Quantity            *int
	SpecialInstructions *string
}

// Update changes the quantity or instructions of a cart line.
func (s *Service) Update(ctx context.Context, p accounts.Principal, lineID string, req UpdateRequest) (*accounts.Cart, error) {
	if req.Quantity != nil {
		if err := checkQuantity(*req.Quantity); err != nil {
			return nil, err
		}
	}
	if req.SpecialInstructions != nil {
		if err := checkInstructions(*req.SpecialInstructions); err != nil {
			return nil, err
		}
	}
	acct, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	c := acct.Cart
	i := c.Line(lineID)
	if i < 0 {
		return nil, apperr.NotFound("Cart item not found")
	}
	if req.Quantity != nil {
		c.Items[i].Quantity = *req.Quantity
	}
	if req.SpecialInstructions != nil {
		c.Items[i].SpecialInstructions = *req.SpecialInstructions
	}
	c.Recalculate(s.nowFunc())
	if err := s.save(ctx, acct, "update"); err != nil {
		return nil, err
	}
	return c, nil
}

// Remove deletes a cart line.
func (s *Service) Remove(ctx context.Context, p accounts.Principal, lineID string) (*accounts.Cart, error) {
	acct, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	c := acct.Cart
	i := c.Line(lineID)
	if i < 0 {
		return nil, apperr.NotFound("Cart item not found")
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.Recalculate(s.nowFunc())
	if err := s.save(ctx, acct, "remove"); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart. Clearing an empty cart succeeds.
func (s *Service) Clear(ctx context.Context, p accounts.Principal) error {
	acct, err := s.load(ctx, p)
	if err != nil {
		return err
	}
	acct.Cart.Reset(s.nowFunc())
	return s.save(ctx, acct, "clear")
}

// VendorSummary identifies the vendor of a cart group.
type VendorSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ShopName string `json:"shopName"`
	IsOpen   bool   `json:"isOpen"`
}

// ViewLine is a cart line with its live menu data.
type ViewLine struct {
	accounts.CartLine
	Subtotal     float64          `json:"subtotal"`
	CurrentPrice float64          `json:"currentPrice"`
	Category     catalog.Category `json:"category"`
	Description  string           `json:"description"`
	Image        string           `json:"image,omitempty"`
}

// VendorGroup holds the lines of one vendor.
type VendorGroup struct {
	Vendor VendorSummary `json:"vendor"`
	Items  []ViewLine    `json:"items"`
}

// View is the reconciled cart.
type View struct {
	Items       []accounts.CartLine     `json:"items"`
	ByVendor    map[string]*VendorGroup `json:"itemsByVendor"`
	TotalItems  int                     `json:"totalItems"`
	TotalAmount float64                 `json:"totalAmount"`
	LastUpdated time.Time               `json:"lastUpdated"`
}

// lineState is the live menu data behind a cart line.
type lineState struct {
	item   *catalog.MenuItem
	vendor *accounts.Account
}

func (l lineState) orderable() bool {
	return l.item != nil && l.item.IsAvailable && l.vendor.IsOpenVendor()
}

func (s *Service) resolve(ctx context.Context, lines []accounts.CartLine) ([]lineState, error) {
	vendors := map[string]*accounts.Account{}
	out := make([]lineState, len(lines))
	for i, l := range lines {
		item, err := s.items.Get(ctx, l.MenuItemID)
		if err != nil {
			return nil, apperr.Internal("load menu item", err)
		}
		v, ok := vendors[l.VendorID]
		if !ok {
			v, err = s.accounts.Get(ctx, l.VendorID)
			if err != nil {
				return nil, apperr.Internal("load vendor", err)
			}
			vendors[l.VendorID] = v
		}
		out[i] = lineState{item: item, vendor: v}
	}
	return out, nil
}

// View returns the cart grouped by vendor. Lines that can no longer be
// ordered are dropped and the filtered cart is persisted.
func (s *Service) View(ctx context.Context, p accounts.Principal) (*View, error) {
	acct, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	c := acct.Cart
	states, err := s.resolve(ctx, c.Items)
	if err != nil {
		return nil, err
	}

	view := &View{Items: []accounts.CartLine{}, ByVendor: map[string]*VendorGroup{}}
	for i, l := range c.Items {
		st := states[i]
		if !st.orderable() {
			continue
		}
		view.Items = append(view.Items, l)
		g, ok := view.ByVendor[l.VendorID]
		if !ok {
			g = &VendorGroup{Vendor: VendorSummary{
				ID:       st.vendor.ID,
				Name:     st.vendor.Name,
				ShopName: st.vendor.ShopName(),
				IsOpen:   st.vendor.IsOpenVendor(),
			}}
			view.ByVendor[l.VendorID] = g
		}
		g.Items = append(g.Items, ViewLine{
			CartLine:     l,
			Subtotal:     l.Price * float64(l.Quantity),
			CurrentPrice: st.item.Price,
			Category:     st.item.Category,
			Description:  st.item.Description,
			Image:        st.item.Image,
		})
	}

	if len(view.Items) != len(c.Items) {
		dropped := len(c.Items) - len(view.Items)
		c.Items = view.Items
		c.Recalculate(s.nowFunc())
		err := s.accounts.Save(ctx, acct)
		switch {
		case errors.Is(err, accounts.ErrVersionConflict):
			s.logger.Debug("cart reconcile lost a version race", zap.String("account_id", acct.ID))
		case err != nil:
			return nil, apperr.Internal("save cart", err)
		default:
			s.logger.Info("dropped unavailable cart lines", zap.String("account_id", acct.ID), zap.Int("dropped", dropped))
		}
	}

	view.TotalItems, view.TotalAmount = accounts.Totals(view.Items)
	view.LastUpdated = c.LastUpdated
	return view, nil
}

// Checkout places an order for the whole cart at current menu prices and
// empties the cart in the same transaction.
func (s *Service) Checkout(ctx context.Context, p accounts.Principal, notes string) (*orders.Order, error) {
	acct, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	c := acct.Cart
	if c.Empty() {
		return nil, apperr.Validation("Cart is empty")
	}
	states, err := s.resolve(ctx, c.Items)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if !st.orderable() {
			return nil, apperr.Conflict("Some items in your cart are no longer available. Please review your cart.")
		}
	}

	req := orders.PlaceRequest{VendorID: c.VendorID(), Notes: notes}
	for _, l := range c.Items {
		req.Items = append(req.Items, orders.LineRequest{
			MenuItemID:          l.MenuItemID,
			Quantity:            l.Quantity,
			SpecialInstructions: l.SpecialInstructions,
		})
	}

	c.Reset(s.nowFunc())
	clearCart, err := s.accounts.SaveTransactItem(acct)
	if err != nil {
		return nil, apperr.Internal("prepare cart clear", err)
	}
	o, err := s.orders.Place(ctx, p, req, orders.AlongWith(clearCart))
	if err != nil {
		return nil, err
	}
	metrics.RecordCartMutation("checkout")
	return o, nil
}
