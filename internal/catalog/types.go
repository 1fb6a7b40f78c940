package catalog

import "time"

// Category is the closed set of menu sections.
type Category string

const (
	CategoryBreakfast Category = "breakfast"
	CategoryLunch     Category = "lunch"
	CategoryDinner    Category = "dinner"
	CategorySnacks    Category = "snacks"
	CategoryBeverages Category = "beverages"
	CategoryDesserts  Category = "desserts"
)

// Categories lists every category in menu order.
var Categories = []Category{
	CategoryBreakfast,
	CategoryLunch,
	CategoryDinner,
	CategorySnacks,
	CategoryBeverages,
	CategoryDesserts,
}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Field bounds for menu items.
const (
	MinNameLen        = 2
	MaxNameLen        = 100
	MinDescriptionLen = 10
	MaxDescriptionLen = 500
	MinPrice          = 1
	MaxPrice          = 10000
	MinPrepTime       = 5
	MaxPrepTime       = 120
	DefaultPrepTime   = 15
)

// MenuItem is the item stored in the menu_items table.
type MenuItem struct {
	ID              string    `dynamodbav:"menu_item_id" json:"id"` // PK
	VendorID        string    `dynamodbav:"vendor_id" json:"vendorId"`
	Name            string    `dynamodbav:"name" json:"name"`
	Description     string    `dynamodbav:"description" json:"description"`
	Price           float64   `dynamodbav:"price" json:"price"`
	Category        Category  `dynamodbav:"category" json:"category"`
	Image           string    `dynamodbav:"image,omitempty" json:"image,omitempty"`
	IsAvailable     bool      `dynamodbav:"is_available" json:"isAvailable"`
	PreparationTime int       `dynamodbav:"preparation_time" json:"preparationTime"` // minutes
	CreatedAt       time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// CategoryCount is one row of the categories listing.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// GroupByCategory buckets items by category, preserving order within a bucket.
func GroupByCategory(items []MenuItem) map[Category][]MenuItem {
	out := map[Category][]MenuItem{}
	for _, it := range items {
		out[it.Category] = append(out[it.Category], it)
	}
	return out
}
