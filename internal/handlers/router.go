// Package handlers exposes the ordering services over HTTP with gin.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/auth"
	"github.com/imrishuroy/go-campus-orderflow/internal/cart"
	"github.com/imrishuroy/go-campus-orderflow/internal/catalog"
	"github.com/imrishuroy/go-campus-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-campus-orderflow/internal/logging"
	"github.com/imrishuroy/go-campus-orderflow/internal/metrics"
	"github.com/imrishuroy/go-campus-orderflow/internal/orders"
	"github.com/imrishuroy/go-campus-orderflow/internal/reports"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

// Config groups the dependencies of the HTTP surface.
type Config struct {
	Logger    *zap.Logger
	Validator *validatorv10.Validate

	Tokens       *auth.Tokens
	TokenTTL     time.Duration
	Revocations  *auth.Revocations
	AccountStore AccountLoader

	Accounts    *accounts.Service
	Catalog     *catalog.Service
	Cart        *cart.Service
	Orders      *orders.Service
	Reports     *reports.Service
	Idempotency *idempotency.Store

	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// server holds the handlers' dependencies.
type server struct {
	cfg    Config
	logger *zap.Logger
}

// NewRouter builds the gin engine with every API route registered.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Revocations == nil {
		cfg.Revocations = auth.NewRevocations(nil)
	}
	s := &server{cfg: cfg, logger: cfg.Logger.Named("http")}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestID(), logging.Middleware(s.logger), metrics.Middleware(), correlate(), cors(cfg.AllowedOrigins))
	if cfg.RateLimitRPS > 0 {
		r.Use(newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware(s.logger))
	}
	r.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "Route not found")
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.GET("/health", s.health)

	authed := authenticate(cfg.Tokens, cfg.Revocations, cfg.AccountStore, s.logger)
	student := requireRole(accounts.RoleStudent, s.logger)
	vendor := requireRole(accounts.RoleVendor, s.logger)
	replay := idempotent(cfg.Idempotency, s.logger)

	a := api.Group("/auth")
	a.POST("/register", s.register)
	a.POST("/login", s.login)
	a.GET("/profile", authed, s.profile)
	a.POST("/logout", authed, s.logout)

	v := api.Group("/vendors")
	v.GET("", s.listVendors)
	v.GET("/dashboard/stats", authed, vendor, s.dashboardStats)
	v.PUT("/profile", authed, vendor, s.updateVendorProfile)
	v.GET("/:id", s.getVendor)
	v.GET("/:id/menu", s.vendorMenu)

	m := api.Group("/menu")
	m.GET("", s.listMenu)
	m.GET("/categories", s.menuCategories)
	m.GET("/my-items", authed, vendor, s.myMenuItems)
	m.POST("", authed, vendor, s.createMenuItem)
	m.PUT("/:id", authed, vendor, s.updateMenuItem)
	m.DELETE("/:id", authed, vendor, s.deleteMenuItem)
	m.PATCH("/:id/toggle-availability", authed, vendor, s.toggleMenuItem)

	ct := api.Group("/cart", authed, student)
	ct.GET("", s.viewCart)
	ct.POST("/add", s.addToCart)
	ct.PUT("/update/:itemId", s.updateCartItem)
	ct.DELETE("/remove/:itemId", s.removeCartItem)
	ct.DELETE("/clear", s.clearCart)
	ct.POST("/checkout", replay, s.checkout)

	o := api.Group("/orders", authed)
	o.POST("", student, replay, s.createOrder)
	o.GET("/my-orders", student, s.myOrders)
	o.GET("/vendor/incoming", vendor, s.incomingOrders)
	o.GET("/vendor/stats", vendor, s.vendorStats)
	o.GET("/search", s.searchOrder)
	o.GET("/:id", s.getOrder)
	o.PATCH("/:id/cancel", student, s.cancelOrder)
	o.PATCH("/:id/status", vendor, s.updateOrderStatus)
	o.PATCH("/:id/payment", vendor, s.updatePayment)

	return r
}

func (s *server) health(c *gin.Context) {
	respond(c, http.StatusOK, "Server is running", gin.H{"status": "ok"})
}

// bind decodes and validates the body, rendering failures itself.
func (s *server) bind(c *gin.Context, out interface{}) bool {
	if err := validation.BindAndValidate(c, out, s.cfg.Validator); err != nil {
		fail(c, s.logger, err)
		return false
	}
	return true
}
