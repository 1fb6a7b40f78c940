package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-campus-orderflow/internal/cart"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

func (s *server) viewCart(c *gin.Context) {
	view, err := s.cfg.Cart.View(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Cart retrieved successfully", gin.H{"cart": view})
}

func (s *server) addToCart(c *gin.Context) {
	var req validation.CartAddRequest
	if !s.bind(c, &req) {
		return
	}
	ct, err := s.cfg.Cart.Add(c.Request.Context(), principal(c), cart.AddRequest{
		MenuItemID:          req.MenuItemID,
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Item added to cart successfully", gin.H{"cart": ct})
}

func (s *server) updateCartItem(c *gin.Context) {
	var req validation.CartUpdateRequest
	if !s.bind(c, &req) {
		return
	}
	ct, err := s.cfg.Cart.Update(c.Request.Context(), principal(c), c.Param("itemId"), cart.UpdateRequest{
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Cart item updated successfully", gin.H{"cart": ct})
}

func (s *server) removeCartItem(c *gin.Context) {
	ct, err := s.cfg.Cart.Remove(c.Request.Context(), principal(c), c.Param("itemId"))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Item removed from cart successfully", gin.H{"cart": ct})
}

func (s *server) clearCart(c *gin.Context) {
	if err := s.cfg.Cart.Clear(c.Request.Context(), principal(c)); err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Cart cleared successfully", nil)
}

func (s *server) checkout(c *gin.Context) {
	var req validation.CheckoutRequest
	// the body is optional
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}
	o, err := s.cfg.Cart.Checkout(c.Request.Context(), principal(c), req.Notes)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusCreated, "Order placed successfully", gin.H{
		"order":   o,
		"message": "Your order has been placed and the vendor has been notified!",
	})
}
