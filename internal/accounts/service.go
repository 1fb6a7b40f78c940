package accounts

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
)

var (
	phonePattern = regexp.MustCompile(`^(\+8801|01)[3-9]\d{8}$`)
	hhmmPattern  = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// ValidPhone reports whether s is a Bangladeshi mobile number.
func ValidPhone(s string) bool { return phonePattern.MatchString(s) }

// ValidHHMM reports whether s is a 24h HH:MM time.
func ValidHHMM(s string) bool { return hhmmPattern.MatchString(s) }

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(accountID string, role Role) (string, error)
}

// Service implements registration, login and profile operations.
type Service struct {
	store         *Store
	hasher        PasswordHasher
	tokens        TokenIssuer
	studentDomain string
	logger        *zap.Logger
	nowFunc       func() time.Time
	newID         func() string
}

// NewService wires an account Service. studentDomain is the email domain
// student accounts must use (e.g. "cuet.ac.bd").
func NewService(store *Store, hasher PasswordHasher, tokens TokenIssuer, studentDomain string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		hasher:        hasher,
		tokens:        tokens,
		studentDomain: strings.ToLower(strings.TrimPrefix(studentDomain, "@")),
		logger:        logger.Named("accounts"),
		nowFunc:       time.Now,
		newID:         uuid.NewString,
	}
}

// Registration is the input to Register.
type Registration struct {
	Name            string
	Email           string
	Password        string
	Role            Role
	Phone           string
	StudentID       string
	ShopName        string
	ShopDescription string
}

// Register creates an account after enforcing the role-conditional rules
// and returns it with a session token.
func (s *Service) Register(ctx context.Context, r Registration) (*Account, string, error) {
	email := strings.ToLower(strings.TrimSpace(r.Email))

	var problems []string
	if !r.Role.Valid() {
		problems = append(problems, "Role must be either student or vendor")
	}
	if !ValidPhone(r.Phone) {
		problems = append(problems, "Please provide a valid Bangladeshi phone number")
	}
	switch r.Role {
	case RoleStudent:
		if !strings.HasSuffix(email, "@"+s.studentDomain) {
			problems = append(problems, "Student email must use the @"+s.studentDomain+" domain")
		}
		if strings.TrimSpace(r.StudentID) == "" {
			problems = append(problems, "Student ID is required for students")
		}
	case RoleVendor:
		if strings.TrimSpace(r.ShopName) == "" {
			problems = append(problems, "Shop name is required for vendors")
		}
	}
	if len(problems) > 0 {
		return nil, "", apperr.Validation("Validation failed", problems...)
	}

	hash, err := s.hasher.Hash(r.Password)
	if err != nil {
		return nil, "", apperr.Internal("hash password", err)
	}

	now := s.nowFunc()
	acct := &Account{
		ID:           s.newID(),
		Name:         strings.TrimSpace(r.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         r.Role,
		Phone:        r.Phone,
		IsActive:     true,
	}
	if r.Role == RoleStudent {
		acct.StudentID = strings.ToUpper(strings.TrimSpace(r.StudentID))
		acct.Cart = &Cart{Items: []CartLine{}, LastUpdated: now}
	} else {
		acct.VendorInfo = &VendorInfo{
			ShopName:    strings.TrimSpace(r.ShopName),
			Description: strings.TrimSpace(r.ShopDescription),
			IsOpen:      true,
			Schedule:    Schedule{OpenTime: DefaultOpenTime, CloseTime: DefaultCloseTime},
		}
	}

	if err := s.store.Create(ctx, acct); err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			return nil, "", apperr.Conflict("User with this email already exists")
		case errors.Is(err, ErrStudentIDTaken):
			return nil, "", apperr.Conflict("Student ID already registered")
		}
		return nil, "", apperr.Internal("create account", err)
	}

	token, err := s.tokens.Issue(acct.ID, acct.Role)
	if err != nil {
		return nil, "", apperr.Internal("issue token", err)
	}
	s.logger.Info("account registered", zap.String("account_id", acct.ID), zap.String("role", string(acct.Role)))
	return acct, token, nil
}

// Login verifies credentials and returns the account with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*Account, string, error) {
	acct, err := s.store.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, "", apperr.Internal("load account by email", err)
	}
	if acct == nil {
		return nil, "", apperr.Unauthenticated("Invalid email or password")
	}
	if !acct.IsActive {
		return nil, "", apperr.Unauthenticated("Account is deactivated. Please contact support")
	}
	if err := s.hasher.Compare(acct.PasswordHash, password); err != nil {
		return nil, "", apperr.Unauthenticated("Invalid email or password")
	}
	token, err := s.tokens.Issue(acct.ID, acct.Role)
	if err != nil {
		return nil, "", apperr.Internal("issue token", err)
	}
	return acct, token, nil
}

// Profile returns the caller's account.
func (s *Service) Profile(ctx context.Context, p Principal) (*Account, error) {
	if err := p.RequireActive(); err != nil {
		return nil, err
	}
	acct, err := s.store.Get(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal("load account", err)
	}
	if acct == nil {
		return nil, apperr.NotFound("User not found")
	}
	return acct, nil
}

// VendorProfileUpdate is a partial update of a vendor's profile. Nil fields are left unchanged.
type VendorProfileUpdate struct {
	Name        *string
	Phone       *string
	ShopName    *string
	Description *string
	IsOpen      *bool
	OpenTime    *string
	CloseTime   *string
	Avatar      *string
}

// UpdateVendorProfile applies u to the calling vendor.
func (s *Service) UpdateVendorProfile(ctx context.Context, p Principal, u VendorProfileUpdate) (*Account, error) {
	if err := p.Require(RoleVendor); err != nil {
		return nil, err
	}
	acct, err := s.Profile(ctx, p)
	if err != nil {
		return nil, err
	}
	if acct.VendorInfo == nil {
		acct.VendorInfo = &VendorInfo{Schedule: Schedule{OpenTime: DefaultOpenTime, CloseTime: DefaultCloseTime}}
	}

	var problems []string
	if u.Phone != nil && !ValidPhone(*u.Phone) {
		problems = append(problems, "Please provide a valid Bangladeshi phone number")
	}
	if u.OpenTime != nil && !ValidHHMM(*u.OpenTime) {
		problems = append(problems, "Open time must be in HH:MM format")
	}
	if u.CloseTime != nil && !ValidHHMM(*u.CloseTime) {
		problems = append(problems, "Close time must be in HH:MM format")
	}
	if u.ShopName != nil && strings.TrimSpace(*u.ShopName) == "" {
		problems = append(problems, "Shop name is required for vendors")
	}
	if len(problems) > 0 {
		return nil, apperr.Validation("Validation failed", problems...)
	}

	if u.Name != nil {
		acct.Name = strings.TrimSpace(*u.Name)
	}
	if u.Phone != nil {
		acct.Phone = *u.Phone
	}
	vi := acct.VendorInfo
	if u.ShopName != nil {
		vi.ShopName = strings.TrimSpace(*u.ShopName)
	}
	if u.Description != nil {
		vi.Description = strings.TrimSpace(*u.Description)
	}
	if u.IsOpen != nil {
		vi.IsOpen = *u.IsOpen
	}
	if u.OpenTime != nil {
		vi.Schedule.OpenTime = *u.OpenTime
	}
	if u.CloseTime != nil {
		vi.Schedule.CloseTime = *u.CloseTime
	}
	if u.Avatar != nil {
		vi.Avatar = *u.Avatar
	}

	if err := s.store.Save(ctx, acct); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Conflict("Profile was modified concurrently, please retry")
		}
		return nil, apperr.Internal("save vendor profile", err)
	}
	return acct, nil
}

// VendorFilter narrows ListVendors.
type VendorFilter struct {
	Search string
	IsOpen *bool
}

// ListVendors returns active vendors matching f, sorted by shop name.
func (s *Service) ListVendors(ctx context.Context, f VendorFilter) ([]Account, error) {
	all, err := s.store.ListByRole(ctx, RoleVendor)
	if err != nil {
		return nil, apperr.Internal("list vendors", err)
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Account, 0, len(all))
	for _, v := range all {
		if !v.IsActive || v.VendorInfo == nil {
			continue
		}
		if f.IsOpen != nil && v.VendorInfo.IsOpen != *f.IsOpen {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(v.VendorInfo.ShopName), search) &&
			!strings.Contains(strings.ToLower(v.VendorInfo.Description), search) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].VendorInfo.ShopName) < strings.ToLower(out[j].VendorInfo.ShopName)
	})
	return out, nil
}

// GetVendor returns an active vendor account by id.
func (s *Service) GetVendor(ctx context.Context, id string) (*Account, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load vendor", err)
	}
	if acct == nil || acct.Role != RoleVendor || !acct.IsActive {
		return nil, apperr.NotFound("Vendor not found")
	}
	return acct, nil
}
