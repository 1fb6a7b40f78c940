package validation

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Name       string             `json:"name" validate:"required,min=2,max=50"`
	Email      string             `json:"email" validate:"required,email"`
	Password   string             `json:"password" validate:"required,min=6"`
	Role       string             `json:"role" validate:"required,oneof=student vendor"`
	Phone      string             `json:"phone" validate:"required,bd_phone"`
	StudentID  string             `json:"studentId,omitempty"`  // students only
	VendorInfo *VendorInfoRequest `json:"vendorInfo,omitempty"` // vendors only
}

// VendorInfoRequest is the shop block sent at vendor registration.
type VendorInfoRequest struct {
	ShopName    string `json:"shopName"`
	Description string `json:"description,omitempty" validate:"max=500"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ScheduleRequest carries daily hours.
type ScheduleRequest struct {
	OpenTime  *string `json:"openTime,omitempty" validate:"omitempty,hhmm"`
	CloseTime *string `json:"closeTime,omitempty" validate:"omitempty,hhmm"`
}

// VendorProfileRequest is the payload for PUT /vendors/profile.
type VendorProfileRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Phone       *string          `json:"phone,omitempty" validate:"omitempty,bd_phone"`
	ShopName    *string          `json:"shopName,omitempty" validate:"omitempty,min=2,max=100"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=500"`
	IsOpen      *bool            `json:"isOpen,omitempty"`
	Schedule    *ScheduleRequest `json:"schedule,omitempty"`
	Avatar      *string          `json:"avatar,omitempty" validate:"omitempty,url"`
}

// MenuItemRequest is the payload for POST /menu.
type MenuItemRequest struct {
	Name            string  `json:"name" validate:"required,min=2,max=100"`
	Description     string  `json:"description" validate:"required,min=10,max=500"`
	Price           float64 `json:"price" validate:"required,min=1,max=10000"`
	Category        string  `json:"category" validate:"required,menu_category"`
	Image           string  `json:"image,omitempty"`
	IsAvailable     *bool   `json:"isAvailable,omitempty"`
	PreparationTime int     `json:"preparationTime,omitempty" validate:"omitempty,min=5,max=120"`
}

// MenuItemPatchRequest is the payload for PUT /menu/:id.
type MenuItemPatchRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Description     *string  `json:"description,omitempty" validate:"omitempty,min=10,max=500"`
	Price           *float64 `json:"price,omitempty" validate:"omitempty,min=1,max=10000"`
	Category        *string  `json:"category,omitempty" validate:"omitempty,menu_category"`
	Image           *string  `json:"image,omitempty"`
	IsAvailable     *bool    `json:"isAvailable,omitempty"`
	PreparationTime *int     `json:"preparationTime,omitempty" validate:"omitempty,min=5,max=120"`
}

// CartAddRequest is the payload for POST /cart/add. A missing quantity means one.
type CartAddRequest struct {
	MenuItemID          string `json:"menuItemId" validate:"required"`
	Quantity            *int   `json:"quantity,omitempty" validate:"omitempty,min=1,max=50"`
	SpecialInstructions string `json:"specialInstructions,omitempty" validate:"max=200"`
}

// CartUpdateRequest is the payload for PUT /cart/update/:itemId.
type CartUpdateRequest struct {
	Quantity            *int    `json:"quantity,omitempty" validate:"omitempty,min=1,max=50"`
	SpecialInstructions *string `json:"specialInstructions,omitempty" validate:"omitempty,max=200"`
}

// CheckoutRequest is the payload for POST /cart/checkout.
type CheckoutRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=500"`
}

// OrderItemRequest is a single line of a direct order.
type OrderItemRequest struct {
	MenuItemID          string `json:"menuItemId" validate:"required"`
	Quantity            int    `json:"quantity" validate:"required,min=1,max=50"`
	SpecialInstructions string `json:"specialInstructions,omitempty" validate:"max=200"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	VendorID string             `json:"vendorId" validate:"required"`
	Items    []OrderItemRequest `json:"items" validate:"required,min=1,dive"` // at least one item
	Notes    string             `json:"notes,omitempty" validate:"max=500"`
}

// StatusUpdateRequest is the payload for PATCH /orders/:id/status.
type StatusUpdateRequest struct {
	Status        string `json:"status" validate:"required,oneof=confirmed preparing ready completed"`
	EstimatedTime *int   `json:"estimatedTime,omitempty" validate:"omitempty,min=5,max=120"`
}

// CancelRequest is the payload for PATCH /orders/:id/cancel.
type CancelRequest struct {
	CancelReason string `json:"cancelReason,omitempty" validate:"max=500"`
}

// PaymentUpdateRequest is the payload for PATCH /orders/:id/payment.
type PaymentUpdateRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required,oneof=paid failed refunded"`
	PaymentID     string `json:"paymentId,omitempty" validate:"max=100"`
}
