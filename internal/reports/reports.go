// Package reports computes vendor statistics from orders on demand.
package reports

import (
	"sort"
	"time"

	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/orders"
)

// Period selects the window of VendorStats.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value to a Period. Unknown values mean today.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodWeek, PeriodMonth:
		return Period(s)
	}
	return PeriodToday
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Start returns the first instant of p relative to now.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	}
	return startOfDay(now)
}

const topItemsLimit = 5

// TopItem is a best seller within a period.
type TopItem struct {
	MenuItemID    string  `json:"menuItemId"`
	Name          string  `json:"name"`
	TotalQuantity int     `json:"totalQuantity"`
	TotalRevenue  float64 `json:"totalRevenue"`
}

// VendorStats summarises a vendor's orders over a period.
type VendorStats struct {
	Period            Period    `json:"period"`
	TotalOrders       int       `json:"totalOrders"`
	TotalRevenue      float64   `json:"totalRevenue"`
	AverageOrderValue float64   `json:"averageOrderValue"`
	PendingOrders     int       `json:"pendingOrders"`
	ConfirmedOrders   int       `json:"confirmedOrders"`
	PreparingOrders   int       `json:"preparingOrders"`
	ReadyOrders       int       `json:"readyOrders"`
	CompletedOrders   int       `json:"completedOrders"`
	CancelledOrders   int       `json:"cancelledOrders"`
	TopItems          []TopItem `json:"topItems"`
}

// ComputeVendorStats aggregates the orders created within period.
// Revenue counts paid orders only; the average covers every order.
func ComputeVendorStats(all []orders.Order, period Period, now time.Time) VendorStats {
	start := period.Start(now)
	st := VendorStats{Period: period, TopItems: []TopItem{}}
	var amount float64
	top := map[string]*TopItem{}

	for _, o := range all {
		if o.CreatedAt.Before(start) || o.CreatedAt.After(now) {
			continue
		}
		st.TotalOrders++
		amount += o.TotalAmount
		if o.PaymentStatus == orders.PaymentPaid {
			st.TotalRevenue += o.TotalAmount
		}
		switch o.Status {
		case orders.StatusPending:
			st.PendingOrders++
		case orders.StatusConfirmed:
			st.ConfirmedOrders++
		case orders.StatusPreparing:
			st.PreparingOrders++
		case orders.StatusReady:
			st.ReadyOrders++
		case orders.StatusCompleted:
			st.CompletedOrders++
		case orders.StatusCancelled:
			st.CancelledOrders++
		}
		for _, l := range o.Items {
			t, ok := top[l.MenuItemID]
			if !ok {
				t = &TopItem{MenuItemID: l.MenuItemID, Name: l.Name}
				top[l.MenuItemID] = t
			}
			t.TotalQuantity += l.Quantity
			t.TotalRevenue += l.Price * float64(l.Quantity)
		}
	}
	if st.TotalOrders > 0 {
		st.AverageOrderValue = amount / float64(st.TotalOrders)
	}

	for _, t := range top {
		st.TopItems = append(st.TopItems, *t)
	}
	sort.Slice(st.TopItems, func(i, j int) bool {
		a, b := st.TopItems[i], st.TopItems[j]
		if a.TotalQuantity != b.TotalQuantity {
			return a.TotalQuantity > b.TotalQuantity
		}
		return a.Name < b.Name
	})
	if len(st.TopItems) > topItemsLimit {
		st.TopItems = st.TopItems[:topItemsLimit]
	}
	return st
}

// MenuCounts counts a vendor's menu items.
type MenuCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// OrderCounts counts a vendor's orders.
type OrderCounts struct {
	Total     int `json:"total"`
	Today     int `json:"today"`
	Week      int `json:"week"`
	Month     int `json:"month"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// Revenue sums paid orders.
type Revenue struct {
	Total float64 `json:"total"`
	Today float64 `json:"today"`
	Week  float64 `json:"week"`
	Month float64 `json:"month"`
}

// Dashboard is the vendor landing page summary.
type Dashboard struct {
	Menu    MenuCounts  `json:"menu"`
	Orders  OrderCounts `json:"orders"`
	Revenue Revenue     `json:"revenue"`
}

// ComputeDashboard summarises a vendor's menu and orders. Weeks start on Sunday.
func ComputeDashboard(items []catalog.MenuItem, all []orders.Order, now time.Time) Dashboard {
	var d Dashboard
	for _, it := range items {
		d.Menu.Total++
		if it.IsAvailable {
			d.Menu.Active++
		}
	}
	d.Menu.Inactive = d.Menu.Total - d.Menu.Active

	day := startOfDay(now)
	week := day.AddDate(0, 0, -int(day.Weekday()))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, o := range all {
		paid := o.PaymentStatus == orders.PaymentPaid
		d.Orders.Total++
		if paid {
			d.Revenue.Total += o.TotalAmount
		}
		if !o.CreatedAt.Before(day) {
			d.Orders.Today++
			if paid {
				d.Revenue.Today += o.TotalAmount
			}
		}
		if !o.CreatedAt.Before(week) {
			d.Orders.Week++
			if paid {
				d.Revenue.Week += o.TotalAmount
			}
		}
		if !o.CreatedAt.Before(month) {
			d.Orders.Month++
			if paid {
				d.Revenue.Month += o.TotalAmount
			}
		}
		if o.Status.Open() {
			d.Orders.Pending++
		}
		if o.Status == orders.StatusCompleted {
			d.Orders.Completed++
		}
	}
	return d
}
