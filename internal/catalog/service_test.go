package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/dynamotest"
)

type vendorMap map[string]*accounts.Account

func (m vendorMap) Get(ctx context.Context, id string) (*accounts.Account, error) { return m[id], nil }

type openOrders map[string]bool

func (o openOrders) HasOpenOrdersForItem(ctx context.Context, vendorID, itemID string) (bool, error) {
	return o[itemID], nil
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	data map[string][]byte
	gets int
}

func (m *memCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.gets++
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memCache) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func vendor(id string, open bool) *accounts.Account {
	return &accounts.Account{ID: id, Role: accounts.RoleVendor, IsActive: true, VendorInfo: &accounts.VendorInfo{ShopName: "Shop " + id, IsOpen: open}}
}

type fixture struct {
	svc    *Service
	store  *Store
	cache  *memCache
	orders openOrders
	v1     accounts.Principal
	v2     accounts.Principal
}

func newFixture() *fixture {
	mock := dynamotest.New(dynamotest.Table{Name: "menu_items", Key: "menu_item_id", Indexes: map[string]string{VendorIndex: "vendor_id"}})
	store := NewStore(mock, "menu_items")
	vendors := vendorMap{"v1": vendor("v1", true), "v2": vendor("v2", false)}
	orders := openOrders{}
	c := &memCache{data: map[string][]byte{}}
	return &fixture{
		svc:    NewService(store, vendors, orders, c, time.Minute, nil),
		store:  store,
		cache:  c,
		orders: orders,
		v1:     accounts.Principal{ID: "v1", Role: accounts.RoleVendor, Active: true},
		v2:     accounts.Principal{ID: "v2", Role: accounts.RoleVendor, Active: true},
	}
}

func item(name string, price float64, cat Category) ItemInput {
	return ItemInput{Name: name, Description: "Freshly made " + name, Price: price, Category: cat}
}

func TestCreate_DefaultsBoundsAndUniqueness(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	it, err := f.svc.Create(ctx, f.v1, item("Chicken Biryani", 120, CategoryLunch))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !it.IsAvailable || it.PreparationTime != DefaultPrepTime {
		t.Fatalf("defaults not applied: %+v", it)
	}

	if _, err := f.svc.Create(ctx, f.v1, item("chicken biryani ", 100, CategoryDinner)); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected case-insensitive name conflict, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.v2, item("Chicken Biryani", 100, CategoryDinner)); err != nil {
		t.Fatalf("other vendor may reuse the name: %v", err)
	}

	bad := item("X", 20000, "brunch")
	bad.Description = "short"
	bad.PreparationTime = 200
	_, err = f.svc.Create(ctx, f.v1, bad)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := len(apperr.Details(err)); n != 5 {
		t.Fatalf("expected 5 messages, got %d: %v", n, apperr.Details(err))
	}

	student := accounts.Principal{ID: "s1", Role: accounts.RoleStudent, Active: true}
	if _, err := f.svc.Create(ctx, student, item("Tea", 10, CategoryBeverages)); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for student, got %v", err)
	}
}

func TestUpdate_OwnershipAndRename(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, f.v1, item("Paratha", 15, CategoryBreakfast))
	_, _ = f.svc.Create(ctx, f.v1, item("Omelette", 25, CategoryBreakfast))

	if _, err := f.svc.Update(ctx, f.v2, a.ID, ItemPatch{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for foreign vendor, got %v", err)
	}
	dup := "omelette"
	if _, err := f.svc.Update(ctx, f.v1, a.ID, ItemPatch{Name: &dup}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected rename conflict, got %v", err)
	}
	price := 18.0
	same := "PARATHA"
	got, err := f.svc.Update(ctx, f.v1, a.ID, ItemPatch{Price: &price, Name: &same})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Price != 18 || got.Name != "PARATHA" {
		t.Fatalf("unexpected item %+v", got)
	}

	toggled, err := f.svc.ToggleAvailability(ctx, f.v1, a.ID)
	if err != nil || toggled.IsAvailable {
		t.Fatalf("toggle failed: %+v, %v", toggled, err)
	}
}

func TestDelete_BlockedByOpenOrders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, _ := f.svc.Create(ctx, f.v1, item("Fuchka", 40, CategorySnacks))
	b, _ := f.svc.Create(ctx, f.v1, item("Chotpoti", 40, CategorySnacks))

	f.orders[a.ID] = true
	if err := f.svc.Delete(ctx, f.v1, a.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for item in open order, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.v1, b.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if got, _ := f.store.Get(ctx, b.ID); got != nil {
		t.Fatalf("item should be gone")
	}
	if err := f.svc.Delete(ctx, f.v1, b.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestListPublic_HidesClosedVendorsAndFilters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, f.v1, item("Coffee", 50, CategoryBeverages))
	_, _ = f.svc.Create(ctx, f.v1, item("Cake Slice", 80, CategoryDesserts))
	_, _ = f.svc.Create(ctx, f.v2, item("Lemon Tea", 20, CategoryBeverages))

	all, err := f.svc.ListPublic(ctx, PublicFilter{})
	if err != nil {
		t.Fatalf("ListPublic error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("closed vendor items must be hidden, got %d", len(all))
	}

	floor := 60.0
	got, _ := f.svc.ListPublic(ctx, PublicFilter{MinPrice: &floor})
	if len(got) != 1 || got[0].Name != "Cake Slice" {
		t.Fatalf("price filter failed: %+v", got)
	}
	got, _ = f.svc.ListPublic(ctx, PublicFilter{Search: "coff", Category: CategoryBeverages})
	if len(got) != 1 || got[0].Name != "Coffee" {
		t.Fatalf("search filter failed: %+v", got)
	}

	counts, err := f.svc.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories error: %v", err)
	}
	if len(counts) != len(Categories) {
		t.Fatalf("expected every category listed")
	}
	for _, c := range counts {
		if c.Category == CategoryBeverages && c.Count != 1 {
			t.Fatalf("beverages count = %d, want 1", c.Count)
		}
	}
}

func TestVendorMenu_CachedAndInvalidated(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, f.v1, item("Singara", 10, CategorySnacks))

	first, err := f.svc.VendorMenu(ctx, "v1")
	if err != nil || len(first) != 1 {
		t.Fatalf("VendorMenu: %v, %d items", err, len(first))
	}
	if _, ok := f.cache.data[vendorMenuKey("v1")]; !ok {
		t.Fatalf("menu should be cached")
	}

	_, _ = f.svc.Create(ctx, f.v1, item("Samosa", 10, CategorySnacks))
	if _, ok := f.cache.data[vendorMenuKey("v1")]; ok {
		t.Fatalf("create must invalidate the cache")
	}
	second, _ := f.svc.VendorMenu(ctx, "v1")
	if len(second) != 2 {
		t.Fatalf("expected fresh menu with 2 items, got %d", len(second))
	}
}

func TestListMine_GroupsByCategory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.svc.Create(ctx, f.v1, item("Khichuri", 60, CategoryLunch))
	_, _ = f.svc.Create(ctx, f.v1, item("Tehari", 90, CategoryLunch))
	_, _ = f.svc.Create(ctx, f.v1, item("Lassi", 40, CategoryBeverages))

	mine, err := f.svc.ListMine(ctx, f.v1, MineFilter{})
	if err != nil {
		t.Fatalf("ListMine error: %v", err)
	}
	if mine.Total != 3 || len(mine.ByCategory[CategoryLunch]) != 2 {
		t.Fatalf("unexpected grouping %+v", mine.ByCategory)
	}
}
