package accounts

import (
	"time"

	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
)

// Role discriminates student and vendor accounts.
type Role string

const (
	RoleStudent Role = "student"
	RoleVendor  Role = "vendor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleVendor
}

// Default vendor operating hours.
const (
	DefaultOpenTime  = "09:00"
	DefaultCloseTime = "22:00"
)

// Schedule holds a vendor's daily hours in HH:MM.
type Schedule struct {
	OpenTime  string `dynamodbav:"open_time" json:"openTime"`
	CloseTime string `dynamodbav:"close_time" json:"closeTime"`
}

// VendorInfo is the operating metadata of a vendor account.
type VendorInfo struct {
	ShopName    string   `dynamodbav:"shop_name" json:"shopName"`
	Description string   `dynamodbav:"description,omitempty" json:"description,omitempty"`
	IsOpen      bool     `dynamodbav:"is_open" json:"isOpen"`
	Schedule    Schedule `dynamodbav:"schedule" json:"schedule"`
	Avatar      string   `dynamodbav:"avatar,omitempty" json:"avatar,omitempty"`
}

// Account is the item stored in the accounts table.
type Account struct {
	ID           string      `dynamodbav:"account_id" json:"id"` // PK
	Name         string      `dynamodbav:"name" json:"name"`
	Email        string      `dynamodbav:"email" json:"email"`
	PasswordHash string      `dynamodbav:"password_hash" json:"-"`
	Role         Role        `dynamodbav:"role" json:"role"` // role-index
	Phone        string      `dynamodbav:"phone" json:"phone"`
	StudentID    string      `dynamodbav:"student_id,omitempty" json:"studentId,omitempty"`
	VendorInfo   *VendorInfo `dynamodbav:"vendor_info,omitempty" json:"vendorInfo,omitempty"`
	Cart         *Cart       `dynamodbav:"cart,omitempty" json:"-"`
	IsActive     bool        `dynamodbav:"is_active" json:"isActive"`
	Version      int64       `dynamodbav:"version" json:"-"`
	CreatedAt    time.Time   `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `dynamodbav:"updated_at" json:"updatedAt"`
}

// IsOpenVendor reports whether the account is an active vendor accepting orders.
func (a *Account) IsOpenVendor() bool {
	return a != nil && a.Role == RoleVendor && a.IsActive && a.VendorInfo != nil && a.VendorInfo.IsOpen
}

// ShopName returns the vendor's shop name, or "" for students.
func (a *Account) ShopName() string {
	if a == nil || a.VendorInfo == nil {
		return ""
	}
	return a.VendorInfo.ShopName
}

// Principal is the authenticated caller of a service operation.
type Principal struct {
	ID     string
	Role   Role
	Active bool
}

// PrincipalOf builds the principal for a loaded account.
func PrincipalOf(a *Account) Principal {
	return Principal{ID: a.ID, Role: a.Role, Active: a.IsActive}
}

// Require checks that p is an active account with the given role.
func (p Principal) Require(role Role) error {
	if p.ID == "" {
		return apperr.Unauthenticated("Authentication required")
	}
	if !p.Active {
		return apperr.Unauthenticated("Account is deactivated")
	}
	if p.Role != role {
		return apperr.Forbidden("Access denied. " + string(role) + " role required")
	}
	return nil
}

// RequireActive checks that p is any active account.
func (p Principal) RequireActive() error {
	if p.ID == "" {
		return apperr.Unauthenticated("Authentication required")
	}
	if !p.Active {
		return apperr.Unauthenticated("Account is deactivated")
	}
	return nil
}
