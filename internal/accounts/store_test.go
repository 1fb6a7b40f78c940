package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/imrishuroy/go-campus-orderflow/internal/dynamotest"
)

func newFakeDynamo() *dynamotest.Fake {
	return dynamotest.New(
		dynamotest.Table{Name: "accounts", Key: "account_id", Indexes: map[string]string{RoleIndex: "role"}},
		dynamotest.Table{Name: "account_keys", Key: "lookup_key"},
	)
}

func TestStore_CreateAndGet(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "accounts", "account_keys")
	ctx := context.Background()

	acct := &Account{ID: "a1", Name: "Rahim", Email: "rahim@cuet.ac.bd", Role: RoleStudent, StudentID: "1804001", IsActive: true}
	if err := store.Create(ctx, acct); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if acct.Version != 1 || acct.CreatedAt.IsZero() {
		t.Fatalf("expected version 1 and timestamps, got %+v", acct)
	}
	if mock.Len("account_keys") != 2 {
		t.Fatalf("expected email and student id guards, got %d", mock.Len("account_keys"))
	}

	got, err := store.GetByEmail(ctx, "RAHIM@cuet.ac.bd")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got == nil || got.ID != "a1" {
		t.Fatalf("expected account a1, got %+v", got)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing account, got %+v, %v", missing, err)
	}
}

func TestStore_CreateRejectsDuplicates(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "accounts", "account_keys")
	ctx := context.Background()

	if err := store.Create(ctx, &Account{ID: "a1", Email: "x@cuet.ac.bd", Role: RoleStudent, StudentID: "S1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.Create(ctx, &Account{ID: "a2", Email: "x@cuet.ac.bd", Role: RoleStudent, StudentID: "S2"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	err = store.Create(ctx, &Account{ID: "a3", Email: "y@cuet.ac.bd", Role: RoleStudent, StudentID: "s1"})
	if !errors.Is(err, ErrStudentIDTaken) {
		t.Fatalf("expected ErrStudentIDTaken, got %v", err)
	}
	if mock.Len("accounts") != 1 {
		t.Fatalf("failed creates must not write accounts")
	}
}

func TestStore_SaveVersionConflict(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "accounts", "account_keys")
	ctx := context.Background()

	acct := &Account{ID: "v1", Email: "shop@example.com", Role: RoleVendor, VendorInfo: &VendorInfo{ShopName: "Tea Stall", IsOpen: true}}
	if err := store.Create(ctx, acct); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	first, _ := store.Get(ctx, "v1")
	second, _ := store.Get(ctx, "v1")

	first.Name = "first writer"
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}

	second.Name = "second writer"
	if err := store.Save(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if second.Version != 1 {
		t.Fatalf("failed save must restore version, got %d", second.Version)
	}

	stored, _ := store.Get(ctx, "v1")
	if stored.Name != "first writer" {
		t.Fatalf("stale write applied: %s", stored.Name)
	}
}

func TestStore_ListByRole(t *testing.T) {
	mock := newFakeDynamo()
	store := NewStore(mock, "accounts", "account_keys")
	ctx := context.Background()

	_ = store.Create(ctx, &Account{ID: "s1", Email: "s1@cuet.ac.bd", Role: RoleStudent, StudentID: "1"})
	_ = store.Create(ctx, &Account{ID: "v1", Email: "v1@example.com", Role: RoleVendor})
	_ = store.Create(ctx, &Account{ID: "v2", Email: "v2@example.com", Role: RoleVendor})

	vendors, err := store.ListByRole(ctx, RoleVendor)
	if err != nil {
		t.Fatalf("ListByRole error: %v", err)
	}
	if len(vendors) != 2 {
		t.Fatalf("expected 2 vendors, got %d", len(vendors))
	}
}
