package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/orders"
	"github.com/imrishuroy/go-campus-orderflow/internal/reports"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

func (s *server) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if !s.bind(c, &req) {
		return
	}
	place := orders.PlaceRequest{VendorID: req.VendorID, Notes: req.Notes}
	for _, it := range req.Items {
		place.Items = append(place.Items, orders.LineRequest{
			MenuItemID:          it.MenuItemID,
			Quantity:            it.Quantity,
			SpecialInstructions: it.SpecialInstructions,
		})
	}
	o, err := s.cfg.Orders.Place(c.Request.Context(), principal(c), place)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	c.Header("Location", "/api/orders/"+o.OrderID)
	respond(c, http.StatusCreated, "Order created successfully", gin.H{"order": o})
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("Validation failed", name+" must be a whole number")
	}
	return n, nil
}

func (s *server) myOrders(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	list, err := s.cfg.Orders.ListForStudent(c.Request.Context(), principal(c), orders.StudentFilter{
		Status: orders.Status(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Orders retrieved successfully", list)
}

func (s *server) getOrder(c *gin.Context) {
	o, err := s.cfg.Orders.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order details retrieved successfully", gin.H{"order": o})
}

func (s *server) searchOrder(c *gin.Context) {
	o, err := s.cfg.Orders.SearchByDeliveryCode(c.Request.Context(), principal(c), c.Query("code"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order found successfully", gin.H{"order": o})
}

func (s *server) cancelOrder(c *gin.Context) {
	var req validation.CancelRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}
	o, err := s.cfg.Orders.Cancel(c.Request.Context(), principal(c), c.Param("id"), req.CancelReason)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled successfully", gin.H{"order": o})
}

func (s *server) incomingOrders(c *gin.Context) {
	f := orders.VendorFilter{Status: orders.Status(c.Query("status"))}
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			fail(c, s.logger, apperr.Validation("Validation failed", "date must be in YYYY-MM-DD format"))
			return
		}
		f.Date = &d
	}
	list, err := s.cfg.Orders.ListForVendor(c.Request.Context(), principal(c), f)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Vendor orders retrieved successfully", list)
}

func (s *server) vendorStats(c *gin.Context) {
	period := reports.ParsePeriod(c.Query("period"))
	stats, err := s.cfg.Reports.VendorStats(c.Request.Context(), principal(c), period)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Vendor statistics retrieved successfully", gin.H{
		"stats":    stats,
		"topItems": stats.TopItems,
		"period":   stats.Period,
	})
}

func (s *server) updateOrderStatus(c *gin.Context) {
	var req validation.StatusUpdateRequest
	if !s.bind(c, &req) {
		return
	}
	o, err := s.cfg.Orders.UpdateStatus(c.Request.Context(), principal(c), c.Param("id"), orders.StatusUpdate{
		Status:        orders.Status(req.Status),
		EstimatedTime: req.EstimatedTime,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Order status updated successfully", gin.H{"order": o})
}

func (s *server) updatePayment(c *gin.Context) {
	var req validation.PaymentUpdateRequest
	if !s.bind(c, &req) {
		return
	}
	o, err := s.cfg.Orders.UpdatePaymentStatus(c.Request.Context(), principal(c), c.Param("id"), orders.PaymentUpdate{
		Status:    orders.PaymentStatus(req.PaymentStatus),
		PaymentID: req.PaymentID,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Payment status updated successfully", gin.H{"order": o})
}
