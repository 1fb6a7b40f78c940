package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
)

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "hashed:" + pw, nil }
func (plainHasher) Compare(hash, pw string) error {
	if hash != "hashed:"+pw {
		return errors.New("mismatch")
	}
	return nil
}

type stubTokens struct{}

func (stubTokens) Issue(id string, role Role) (string, error) { return "token-" + id, nil }

func newTestService() (*Service, *Store) {
	store := NewStore(newFakeDynamo(), "accounts", "account_keys")
	return NewService(store, plainHasher{}, stubTokens{}, "cuet.ac.bd", nil), store
}

func TestRegister_RoleConditionalRules(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		reg  Registration
	}{
		{"student outside domain", Registration{Name: "A", Email: "a@gmail.com", Password: "secret1", Role: RoleStudent, Phone: "01712345678", StudentID: "1804001"}},
		{"student without id", Registration{Name: "A", Email: "a@cuet.ac.bd", Password: "secret1", Role: RoleStudent, Phone: "01712345678"}},
		{"vendor without shop", Registration{Name: "B", Email: "b@example.com", Password: "secret1", Role: RoleVendor, Phone: "01712345678"}},
		{"bad phone", Registration{Name: "B", Email: "b@example.com", Password: "secret1", Role: RoleVendor, Phone: "0123", ShopName: "Shop"}},
		{"bad role", Registration{Name: "C", Email: "c@example.com", Password: "secret1", Role: "admin", Phone: "01712345678"}},
	}
	for _, tc := range cases {
		_, _, err := svc.Register(ctx, tc.reg)
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestRegister_StudentAndVendor(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	student, token, err := svc.Register(ctx, Registration{
		Name: "Karim", Email: "Karim@CUET.ac.bd", Password: "secret1", Role: RoleStudent, Phone: "+8801812345678", StudentID: "1804002",
	})
	if err != nil {
		t.Fatalf("register student: %v", err)
	}
	if token != "token-"+student.ID {
		t.Fatalf("unexpected token %s", token)
	}
	if student.Email != "karim@cuet.ac.bd" || student.Cart == nil || student.VendorInfo != nil {
		t.Fatalf("unexpected student %+v", student)
	}

	vendor, _, err := svc.Register(ctx, Registration{
		Name: "Shop Owner", Email: "owner@gmail.com", Password: "secret1", Role: RoleVendor, Phone: "01912345678", ShopName: "Hall Canteen", StudentID: "ignored",
	})
	if err != nil {
		t.Fatalf("register vendor: %v", err)
	}
	if vendor.StudentID != "" || vendor.VendorInfo == nil || !vendor.VendorInfo.IsOpen {
		t.Fatalf("unexpected vendor %+v", vendor)
	}
	if vendor.VendorInfo.Schedule.OpenTime != DefaultOpenTime {
		t.Fatalf("expected default schedule, got %+v", vendor.VendorInfo.Schedule)
	}

	_, _, err = svc.Register(ctx, Registration{
		Name: "Dup", Email: "karim@cuet.ac.bd", Password: "secret1", Role: RoleStudent, Phone: "01712345678", StudentID: "999999",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	_, _, err = svc.Register(ctx, Registration{
		Name: "Dup", Email: "other@cuet.ac.bd", Password: "secret1", Role: RoleStudent, Phone: "01712345678", StudentID: "1804002",
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate student id, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	acct, _, err := svc.Register(ctx, Registration{
		Name: "Karim", Email: "karim@cuet.ac.bd", Password: "secret1", Role: RoleStudent, Phone: "01712345678", StudentID: "1804002",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "karim@cuet.ac.bd", "wrong"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@cuet.ac.bd", "secret1"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown email, got %v", err)
	}
	got, token, err := svc.Login(ctx, "karim@cuet.ac.bd", "secret1")
	if err != nil || got.ID != acct.ID || token == "" {
		t.Fatalf("login failed: %v", err)
	}

	acct.IsActive = false
	if err := store.Save(ctx, acct); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, _, err := svc.Login(ctx, "karim@cuet.ac.bd", "secret1"); !apperr.Is(err, apperr.KindUnauthenticated) {
		t.Fatalf("expected inactive account to be rejected, got %v", err)
	}
}

func TestUpdateVendorProfile_AndListVendors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	v1, _, _ := svc.Register(ctx, Registration{Name: "V1", Email: "v1@example.com", Password: "secret1", Role: RoleVendor, Phone: "01712345678", ShopName: "Burger Point"})
	_, _, _ = svc.Register(ctx, Registration{Name: "V2", Email: "v2@example.com", Password: "secret1", Role: RoleVendor, Phone: "01712345678", ShopName: "Cha Corner"})

	closed := false
	bad := "25:00"
	_, err := svc.UpdateVendorProfile(ctx, PrincipalOf(v1), VendorProfileUpdate{OpenTime: &bad})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for bad time, got %v", err)
	}
	updated, err := svc.UpdateVendorProfile(ctx, PrincipalOf(v1), VendorProfileUpdate{IsOpen: &closed})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.VendorInfo.IsOpen {
		t.Fatalf("expected vendor to be closed")
	}

	open := true
	list, err := svc.ListVendors(ctx, VendorFilter{IsOpen: &open})
	if err != nil {
		t.Fatalf("ListVendors: %v", err)
	}
	if len(list) != 1 || list[0].ShopName() != "Cha Corner" {
		t.Fatalf("expected only the open vendor, got %+v", list)
	}
	list, _ = svc.ListVendors(ctx, VendorFilter{Search: "burger"})
	if len(list) != 1 || list[0].ID != v1.ID {
		t.Fatalf("search failed: %+v", list)
	}

	student := Principal{ID: "s", Role: RoleStudent, Active: true}
	if _, err := svc.UpdateVendorProfile(ctx, student, VendorProfileUpdate{}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for student, got %v", err)
	}
	if _, err := svc.GetVendor(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
