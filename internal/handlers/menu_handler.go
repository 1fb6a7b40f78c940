package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

func (s *server) listMenu(c *gin.Context) {
	available, err := queryBool(c, "available")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	minPrice, err := queryFloat(c, "minPrice")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	maxPrice, err := queryFloat(c, "maxPrice")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	items, err := s.cfg.Catalog.ListPublic(c.Request.Context(), catalog.PublicFilter{
		Category:  catalog.Category(c.Query("category")),
		VendorID:  c.Query("vendor"),
		Search:    c.Query("search"),
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		Available: available,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Menu items retrieved successfully", gin.H{"menuItems": items, "total": len(items)})
}

func (s *server) menuCategories(c *gin.Context) {
	cats, err := s.cfg.Catalog.Categories(c.Request.Context())
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Categories retrieved successfully", gin.H{"categories": cats})
}

func (s *server) myMenuItems(c *gin.Context) {
	available, err := queryBool(c, "available")
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	mine, err := s.cfg.Catalog.ListMine(c.Request.Context(), principal(c), catalog.MineFilter{
		Category:  catalog.Category(c.Query("category")),
		Available: available,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Vendor menu items retrieved successfully", gin.H{
		"menuItems":      mine.Items,
		"menuByCategory": mine.ByCategory,
		"total":          mine.Total,
	})
}

func (s *server) createMenuItem(c *gin.Context) {
	var req validation.MenuItemRequest
	if !s.bind(c, &req) {
		return
	}
	item, err := s.cfg.Catalog.Create(c.Request.Context(), principal(c), catalog.ItemInput{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Category:        catalog.Category(req.Category),
		Image:           req.Image,
		IsAvailable:     req.IsAvailable,
		PreparationTime: req.PreparationTime,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusCreated, "Menu item created successfully", gin.H{"menuItem": item})
}

func (s *server) updateMenuItem(c *gin.Context) {
	var req validation.MenuItemPatchRequest
	if !s.bind(c, &req) {
		return
	}
	patch := catalog.ItemPatch{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		Image:           req.Image,
		IsAvailable:     req.IsAvailable,
		PreparationTime: req.PreparationTime,
	}
	if req.Category != nil {
		cat := catalog.Category(*req.Category)
		patch.Category = &cat
	}
	item, err := s.cfg.Catalog.Update(c.Request.Context(), principal(c), c.Param("id"), patch)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Menu item updated successfully", gin.H{"menuItem": item})
}

func (s *server) deleteMenuItem(c *gin.Context) {
	if err := s.cfg.Catalog.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Menu item deleted successfully", nil)
}

func (s *server) toggleMenuItem(c *gin.Context) {
	item, err := s.cfg.Catalog.ToggleAvailability(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	state := "disabled"
	if item.IsAvailable {
		state = "enabled"
	}
	respond(c, http.StatusOK, "Menu item "+state+" successfully", gin.H{
		"menuItem": gin.H{"id": item.ID, "name": item.Name, "isAvailable": item.IsAvailable},
	})
}
