package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/cache"
)

// Vendors loads vendor accounts.
type Vendors interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
}

// OpenOrderChecker reports whether a menu item is referenced by an order
// that is still pending, confirmed or preparing.
type OpenOrderChecker interface {
	HasOpenOrdersForItem(ctx context.Context, vendorID, menuItemID string) (bool, error)
}

// Service enforces menu item rules and serves catalog reads.
type Service struct {
	store    *Store
	vendors  Vendors
	orders   OpenOrderChecker
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	newID    func() string
}

// NewService wires a catalog Service. A nil cache disables caching.
func NewService(store *Store, vendors Vendors, orders OpenOrderChecker, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		vendors:  vendors,
		orders:   orders,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger.Named("catalog"),
		newID:    uuid.NewString,
	}
}

func vendorMenuKey(vendorID string) string { return "menu:vendor:" + vendorID }

// ItemInput creates a menu item.
type ItemInput struct {
	Name            string
	Description     string
	Price           float64
	Category        Category
	Image           string
	IsAvailable     *bool
	PreparationTime int
}

// ItemPatch partially updates a menu item. Nil fields are left unchanged.
type ItemPatch struct {
	Name            *string
	Description     *string
	Price           *float64
	Category        *Category
	Image           *string
	IsAvailable     *bool
	PreparationTime *int
}

func checkBounds(it *MenuItem) error {
	var problems []string
	if n := len([]rune(it.Name)); n < MinNameLen || n > MaxNameLen {
		problems = append(problems, fmt.Sprintf("Name must be between %d and %d characters", MinNameLen, MaxNameLen))
	}
	if n := len([]rune(it.Description)); n < MinDescriptionLen || n > MaxDescriptionLen {
		problems = append(problems, fmt.Sprintf("Description must be between %d and %d characters", MinDescriptionLen, MaxDescriptionLen))
	}
	if it.Price < MinPrice || it.Price > MaxPrice {
		problems = append(problems, fmt.Sprintf("Price must be between %d and %d", MinPrice, MaxPrice))
	}
	if !it.Category.Valid() {
		problems = append(problems, "Invalid category")
	}
	if it.PreparationTime < MinPrepTime || it.PreparationTime > MaxPrepTime {
		problems = append(problems, fmt.Sprintf("Preparation time must be between %d and %d minutes", MinPrepTime, MaxPrepTime))
	}
	if len(problems) > 0 {
		return apperr.Validation("Validation failed", problems...)
	}
	return nil
}

// checkUniqueName rejects a name already used by another item of the vendor.
func (s *Service) checkUniqueName(ctx context.Context, vendorID, name, selfID string) error {
	items, err := s.store.ListByVendor(ctx, vendorID)
	if err != nil {
		return apperr.Internal("list vendor items", err)
	}
	for _, it := range items {
		if it.ID != selfID && strings.EqualFold(strings.TrimSpace(it.Name), name) {
			return apperr.Conflict("You already have a menu item with this name")
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, vendorID string) {
	if err := s.cache.Del(ctx, vendorMenuKey(vendorID)); err != nil {
		s.logger.Warn("menu cache invalidation failed", zap.String("vendor_id", vendorID), zap.Error(err))
	}
}

// owned loads id and checks it belongs to vendorID.
func (s *Service) owned(ctx context.Context, vendorID, id string) (*MenuItem, error) {
	it, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load menu item", err)
	}
	if it == nil || it.VendorID != vendorID {
		return nil, apperr.NotFound("Menu item not found")
	}
	return it, nil
}

// Create adds a menu item for the calling vendor.
func (s *Service) Create(ctx context.Context, p accounts.Principal, in ItemInput) (*MenuItem, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	it := &MenuItem{
		ID:              s.newID(),
		VendorID:        p.ID,
		Name:            strings.TrimSpace(in.Name),
		Description:     strings.TrimSpace(in.Description),
		Price:           in.Price,
		Category:        in.Category,
		Image:           in.Image,
		IsAvailable:     true,
		PreparationTime: in.PreparationTime,
	}
	if in.IsAvailable != nil {
		it.IsAvailable = *in.IsAvailable
	}
	if it.PreparationTime == 0 {
		it.PreparationTime = DefaultPrepTime
	}
	if err := checkBounds(it); err != nil {
		return nil, err
	}
	if err := s.checkUniqueName(ctx, p.ID, it.Name, ""); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, it); err != nil {
		return nil, apperr.Internal("create menu item", err)
	}
	s.invalidate(ctx, p.ID)
	return it, nil
}

// Update applies patch to one of the calling vendor's items.
func (s *Service) Update(ctx context.Context, p accounts.Principal, id string, patch ItemPatch) (*MenuItem, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	it, err := s.owned(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}
	renamed := false
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		renamed = !strings.EqualFold(name, it.Name)
		it.Name = name
	}
	if patch.Description != nil {
		it.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Price != nil {
		it.Price = *patch.Price
	}
	if patch.Category != nil {
		it.Category = *patch.Category
	}
	if patch.Image != nil {
		it.Image = *patch.Image
	}
	if patch.IsAvailable != nil {
		it.IsAvailable = *patch.IsAvailable
	}
	if patch.PreparationTime != nil {
		it.PreparationTime = *patch.PreparationTime
	}
	if err := checkBounds(it); err != nil {
		return nil, err
	}
	if renamed {
		if err := s.checkUniqueName(ctx, p.ID, it.Name, it.ID); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// ToggleAvailability flips IsAvailable on one of the calling vendor's items.
func (s *Service) ToggleAvailability(ctx context.Context, p accounts.Principal, id string) (*MenuItem, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	it, err := s.owned(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}
	it.IsAvailable = !it.IsAvailable
	if err := s.save(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) save(ctx context.Context, it *MenuItem) error {
	if err := s.store.Put(ctx, it); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("Menu item not found")
		}
		return apperr.Internal("save menu item", err)
	}
	s.invalidate(ctx, it.VendorID)
	return nil
}

// Delete removes one of the calling vendor's items unless an open order references it.
func (s *Service) Delete(ctx context.Context, p accounts.Principal, id string) error {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return err
	}
	it, err := s.owned(ctx, p.ID, id)
	if err != nil {
		return err
	}
	open, err := s.orders.HasOpenOrdersForItem(ctx, p.ID, it.ID)
	if err != nil {
		return apperr.Internal("check open orders", err)
	}
	if open {
		return apperr.Conflict("Cannot delete menu item that is part of active orders. Mark it unavailable instead")
	}
	if err := s.store.Delete(ctx, it.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("Menu item not found")
		}
		return apperr.Internal("delete menu item", err)
	}
	s.invalidate(ctx, p.ID)
	s.logger.Info("menu item deleted", zap.String("vendor_id", p.ID), zap.String("menu_item_id", it.ID))
	return nil
}

// MineFilter narrows ListMine.
type MineFilter struct {
	Category  Category
	Available *bool
}

// VendorItems is a vendor's own menu.
type VendorItems struct {
	Items      []MenuItem              `json:"items"`
	ByCategory map[Category][]MenuItem `json:"groupedByCategory"`
	Total      int                     `json:"total"`
}

// ListMine returns the calling vendor's items, newest first.
func (s *Service) ListMine(ctx context.Context, p accounts.Principal, f MineFilter) (*VendorItems, error) {
	if err := p.Require(accounts.RoleVendor); err != nil {
		return nil, err
	}
	all, err := s.store.ListByVendor(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("list vendor items", err)
	}
	items := make([]MenuItem, 0, len(all))
	for _, it := range all {
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		if f.Available != nil && it.IsAvailable != *f.Available {
			continue
		}
		items = append(items, it)
	}
	newestFirst(items)
	return &VendorItems{Items: items, ByCategory: GroupByCategory(items), Total: len(items)}, nil
}

// PublicFilter narrows ListPublic. Available defaults to true.
type PublicFilter struct {
	Category  Category
	VendorID  string
	Search    string
	MinPrice  *float64
	MaxPrice  *float64
	Available *bool
}

// ListPublic returns browseable items. Items of closed or inactive vendors are hidden.
func (s *Service) ListPublic(ctx context.Context, f PublicFilter) ([]MenuItem, error) {
	var (
		all []MenuItem
		err error
	)
	if f.VendorID != "" {
		all, err = s.store.ListByVendor(ctx, f.VendorID)
	} else {
		all, err = s.store.ListAll(ctx)
	}
	if err != nil {
		return nil, apperr.Internal("list menu items", err)
	}
	available := true
	if f.Available != nil {
		available = *f.Available
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	open := s.openVendors()
	out := make([]MenuItem, 0, len(all))
	for _, it := range all {
		if it.IsAvailable != available {
			continue
		}
		if f.Category != "" && it.Category != f.Category {
			continue
		}
		if f.MinPrice != nil && it.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && it.Price > *f.MaxPrice {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(it.Name), search) &&
			!strings.Contains(strings.ToLower(it.Description), search) {
			continue
		}
		ok, err := open(ctx, it.VendorID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	newestFirst(out)
	return out, nil
}

// Categories counts available items of open vendors per category.
func (s *Service) Categories(ctx context.Context) ([]CategoryCount, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal("list menu items", err)
	}
	counts := map[Category]int{}
	open := s.openVendors()
	for _, it := range all {
		if !it.IsAvailable {
			continue
		}
		ok, err := open(ctx, it.VendorID)
		if err != nil {
			return nil, err
		}
		if ok {
			counts[it.Category]++
		}
	}
	out := make([]CategoryCount, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, CategoryCount{Category: c, Count: counts[c]})
	}
	return out, nil
}

// VendorMenu returns a vendor's available items sorted by category and name.
// Results are cached until the vendor changes its menu.
func (s *Service) VendorMenu(ctx context.Context, vendorID string) ([]MenuItem, error) {
	key := vendorMenuKey(vendorID)
	var cached []MenuItem
	found, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("menu cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		return cached, nil
	}

	all, err := s.store.ListByVendor(ctx, vendorID)
	if err != nil {
		return nil, apperr.Internal("list vendor menu", err)
	}
	items := make([]MenuItem, 0, len(all))
	for _, it := range all {
		if it.IsAvailable {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return categoryRank(items[i].Category) < categoryRank(items[j].Category)
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	if err := s.cache.SetJSON(ctx, key, items, s.cacheTTL); err != nil {
		s.logger.Warn("menu cache write failed", zap.String("key", key), zap.Error(err))
	}
	return items, nil
}

// openVendors returns a memoized check for "vendor is active and open".
func (s *Service) openVendors() func(ctx context.Context, vendorID string) (bool, error) {
	seen := map[string]bool{}
	return func(ctx context.Context, vendorID string) (bool, error) {
		if v, ok := seen[vendorID]; ok {
			return v, nil
		}
		acct, err := s.vendors.Get(ctx, vendorID)
		if err != nil {
			return false, apperr.Internal("load vendor", err)
		}
		ok := acct.IsOpenVendor()
		seen[vendorID] = ok
		return ok, nil
	}
}

func categoryRank(c Category) int {
	for i, k := range Categories {
		if k == c {
			return i
		}
	}
	return len(Categories)
}

func newestFirst(items []MenuItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
