package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

// vendorSummary is the public view of a vendor.
type vendorSummary struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ShopName      string            `json:"shopName"`
	Description   string            `json:"description,omitempty"`
	IsOpen        bool              `json:"isOpen"`
	Schedule      accounts.Schedule `json:"schedule"`
	Avatar        string            `json:"avatar,omitempty"`
	MenuItemCount int               `json:"menuItemCount"`
	JoinedDate    time.Time         `json:"joinedDate"`
}

type vendorDetail struct {
	vendorSummary
	MenuByCategory map[catalog.Category][]catalog.MenuItem `json:"menuByCategory"`
}

func summarize(v *accounts.Account, menuItems int) vendorSummary {
	out := vendorSummary{ID: v.ID, Name: v.Name, MenuItemCount: menuItems, JoinedDate: v.CreatedAt}
	if vi := v.VendorInfo; vi != nil {
		out.ShopName = vi.ShopName
		out.Description = vi.Description
		out.IsOpen = vi.IsOpen
		out.Schedule = vi.Schedule
		out.Avatar = vi.Avatar
	}
	return out
}

// queryBool parses an optional true/false query parameter.
func queryBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("Validation failed", name+" must be true or false")
	}
	return &b, nil
}

func queryFloat(c *gin.Context, name string) (*float64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apperr.Validation("Validation failed", name+" must be a number")
	}
	return &f, nil
}

func (s *server) listVendors(c *gin.Context) {
	isOpen, err := queryBool(c, "isOpen")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	ctx := c.Request.Context()
	vendors, err := s.cfg.Accounts.ListVendors(ctx, accounts.VendorFilter{Search: c.Query("search"), IsOpen: isOpen})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	out := make([]vendorSummary, 0, len(vendors))
	for i := range vendors {
		items, err := s.cfg.Catalog.VendorMenu(ctx, vendors[i].ID)
		if err != nil {
			fail(c, s.logger, err)
			return
		}
		out = append(out, summarize(&vendors[i], len(items)))
	}
	respond(c, http.StatusOK, "Vendors retrieved successfully", gin.H{"vendors": out, "total": len(out)})
}

func (s *server) getVendor(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := s.cfg.Accounts.GetVendor(ctx, c.Param("id"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	items, err := s.cfg.Catalog.VendorMenu(ctx, v.ID)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	detail := vendorDetail{vendorSummary: summarize(v, len(items)), MenuByCategory: catalog.GroupByCategory(items)}
	respond(c, http.StatusOK, "Vendor details retrieved successfully", gin.H{"vendor": detail})
}

func (s *server) vendorMenu(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := s.cfg.Accounts.GetVendor(ctx, c.Param("id"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	available, err := queryBool(c, "available")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	items, err := s.cfg.Catalog.ListPublic(ctx, catalog.PublicFilter{
		VendorID:  v.ID,
		Category:  catalog.Category(c.Query("category")),
		Available: available,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Menu items retrieved successfully", gin.H{
		"menuItems":      items,
		"menuByCategory": catalog.GroupByCategory(items),
		"total":          len(items),
	})
}

func (s *server) dashboardStats(c *gin.Context) {
	stats, err := s.cfg.Reports.Dashboard(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Dashboard statistics retrieved successfully", gin.H{"stats": stats})
}

func (s *server) updateVendorProfile(c *gin.Context) {
	var req validation.VendorProfileRequest
	if !s.bind(c, &req) {
		return
	}
	u := accounts.VendorProfileUpdate{
		Name:        req.Name,
		Phone:       req.Phone,
		ShopName:    req.ShopName,
		Description: req.Description,
		IsOpen:      req.IsOpen,
		Avatar:      req.Avatar,
	}
	if req.Schedule != nil {
		u.OpenTime = req.Schedule.OpenTime
		u.CloseTime = req.Schedule.CloseTime
	}
	acct, err := s.cfg.Accounts.UpdateVendorProfile(c.Request.Context(), principal(c), u)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Vendor profile updated successfully", gin.H{"vendor": acct})
}
