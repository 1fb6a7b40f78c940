package reports

import (
	"context"
	"time"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/orders"
)

// OrderSource lists every order of a vendor.
type OrderSource interface {
	AllForVendor(ctx context.Context, vendorID string) ([]orders.Order, error)
}

// MenuSource lists every menu item of a vendor.
type MenuSource interface {
	ListByVendor(ctx context.Context, vendorID string) ([]catalog.MenuItem, error)
}

// Service serves vendor reports.
type Service struct {
	orders  OrderSource
	menu    MenuSource
	nowFunc func() time.Time
}

func NewService(o OrderSource, m MenuSource) *Service {
	return &Service{orders: o, menu: m, nowFunc: time.Now}
}

// VendorStats reports the caller's orders over period.
func (s *Service) VendorStats(ctx context.Context, p accounts.Principal, period Period) (*VendorStats, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	all, err := s.orders.AllForVendor(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	st := ComputeVendorStats(all, period, s.nowFunc())
	return &st, nil
}

// Dashboard reports the caller's menu and order totals.
func (s *Service) Dashboard(ctx context.Context, p accounts.Principal) (*Dashboard, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	items, err := s.menu.ListByVendor(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list menu items", err)
	}
	all, err := s.orders.AllForVendor(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	d := ComputeDashboard(items, all, s.nowFunc())
	return &d, nil
}
