package orders

import "time"

// Status is the fulfilment state of an order.
type Status string

// Order statuses
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus is tracked independently of Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Pricing and limits.
const (
	TaxRate              = 0.05
	DeliveryFee          = 0.0 // pickup only
	MinQuantity          = 1
	MaxQuantity          = 50
	MinEstimatedTime     = 15
	MaxEstimatedTime     = 120
	MinEstimatedOverride = 5
	MaxNotesLen          = 500
	DefaultCancelReason  = "Cancelled by student"
)

// OrderLine is a menu item frozen at order time.
type OrderLine struct {
	MenuItemID          string  `dynamodbav:"menu_item_id" json:"menuItemId"`
	Name                string  `dynamodbav:"name" json:"name"`
	Price               float64 `dynamodbav:"price" json:"price"`
	Quantity            int     `dynamodbav:"quantity" json:"quantity"`
	SpecialInstructions string  `dynamodbav:"special_instructions,omitempty" json:"specialInstructions,omitempty"`
	Subtotal            float64 `dynamodbav:"subtotal" json:"subtotal"`
}

// StatusChange records one transition.
type StatusChange struct {
	From Status    `dynamodbav:"from,omitempty" json:"from,omitempty"`
	To   Status    `dynamodbav:"to" json:"to"`
	By   string    `dynamodbav:"by" json:"by"` // role of the actor
	At   time.Time `dynamodbav:"at" json:"at"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID       string         `dynamodbav:"order_id" json:"id"` // PK
	StudentID     string         `dynamodbav:"student_id" json:"studentId"`
	VendorID      string         `dynamodbav:"vendor_id" json:"vendorId"`
	Items         []OrderLine    `dynamodbav:"items" json:"items"`
	Subtotal      float64        `dynamodbav:"subtotal" json:"subtotal"`
	Tax           float64        `dynamodbav:"tax" json:"tax"`
	DeliveryFee   float64        `dynamodbav:"delivery_fee" json:"deliveryFee"`
	TotalAmount   float64        `dynamodbav:"total_amount" json:"totalAmount"`
	Status        Status         `dynamodbav:"status" json:"status"`
	PaymentStatus PaymentStatus  `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentID     string         `dynamodbav:"payment_id,omitempty" json:"paymentId,omitempty"`
	DeliveryCode  string         `dynamodbav:"delivery_code" json:"deliveryCode"`
	EstimatedTime int            `dynamodbav:"estimated_time" json:"estimatedTime"` // minutes
	Notes         string         `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
	CancelReason  string         `dynamodbav:"cancel_reason,omitempty" json:"cancelReason,omitempty"`
	CompletedAt   *time.Time     `dynamodbav:"completed_at,omitempty" json:"completedAt,omitempty"`
	StatusHistory []StatusChange `dynamodbav:"status_history" json:"statusHistory"`
	Version       int64          `dynamodbav:"version" json:"-"`
	CreatedAt     time.Time      `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `dynamodbav:"updated_at" json:"updatedAt"`
}

// ItemCount is the number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Items {
		n += l.Quantity
	}
	return n
}
