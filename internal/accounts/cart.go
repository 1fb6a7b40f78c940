package accounts

import "time"

// CartLine is one menu item in a student's cart. Price is the snapshot
// taken when the line was added.
type CartLine struct {
	ID                  string    `dynamodbav:"line_id" json:"id"`
	MenuItemID          string    `dynamodbav:"menu_item_id" json:"menuItemId"`
	VendorID            string    `dynamodbav:"vendor_id" json:"vendorId"`
	Name                string    `dynamodbav:"name" json:"name"`
	Price               float64   `dynamodbav:"price" json:"price"`
	Quantity            int       `dynamodbav:"quantity" json:"quantity"`
	SpecialInstructions string    `dynamodbav:"special_instructions,omitempty" json:"specialInstructions,omitempty"`
	AddedAt             time.Time `dynamodbav:"added_at" json:"addedAt"`
}

// Cart is embedded in a student account. All lines share one vendor.
type Cart struct {
	Items       []CartLine `dynamodbav:"items" json:"items"`
	TotalItems  int        `dynamodbav:"total_items" json:"totalItems"`
	TotalAmount float64    `dynamodbav:"total_amount" json:"totalAmount"`
	LastUpdated time.Time  `dynamodbav:"last_updated" json:"lastUpdated"`
}

// Totals returns the item count and amount for lines using their stored prices.
func Totals(lines []CartLine) (items int, amount float64) {
	for _, l := range lines {
		items += l.Quantity
		amount += l.Price * float64(l.Quantity)
	}
	return items, amount
}

// Recalculate refreshes the derived totals and stamps LastUpdated.
func (c *Cart) Recalculate(now time.Time) {
	c.TotalItems, c.TotalAmount = Totals(c.Items)
	c.LastUpdated = now
}

// Reset empties the cart.
func (c *Cart) Reset(now time.Time) {
	c.Items = []CartLine{}
	c.Recalculate(now)
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// VendorID returns the vendor all lines belong to, or "" when empty.
func (c *Cart) VendorID() string {
	if c.Empty() {
		return ""
	}
	return c.Items[0].VendorID
}

// Line returns the index of the line with id, or -1.
func (c *Cart) Line(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// LineForItem returns the index of the line for menuItemID, or -1.
func (c *Cart) LineForItem(menuItemID string) int {
	for i := range c.Items {
		if c.Items[i].MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}
