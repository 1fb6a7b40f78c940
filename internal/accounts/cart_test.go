package accounts

import (
	"testing"
	"time"
)

func TestCart_RecalculateAndReset(t *testing.T) {
	now := time.Now()
	c := &Cart{Items: []CartLine{
		{ID: "l1", MenuItemID: "A", VendorID: "v", Price: 60, Quantity: 2},
		{ID: "l2", MenuItemID: "B", VendorID: "v", Price: 120, Quantity: 1},
	}}
	c.Recalculate(now)
	if c.TotalItems != 3 || c.TotalAmount != 240 {
		t.Fatalf("unexpected totals %d / %v", c.TotalItems, c.TotalAmount)
	}
	if c.VendorID() != "v" || c.LineForItem("B") != 1 || c.Line("l3") != -1 {
		t.Fatalf("lookup helpers broken")
	}

	c.Reset(now)
	if !c.Empty() || c.TotalItems != 0 || c.TotalAmount != 0 || c.VendorID() != "" {
		t.Fatalf("reset did not empty cart: %+v", c)
	}
}
