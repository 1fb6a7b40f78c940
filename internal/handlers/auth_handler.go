package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/auth"
	"github.com/imrishuroy/go-campus-orderflow/internal/metrics"
	"github.com/imrishuroy/go-campus-orderflow/internal/validation"
)

type sessionData struct {
	User      *accounts.Account `json:"user"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

func (s *server) session(acct *accounts.Account, token string) sessionData {
	return sessionData{User: acct, Token: token, ExpiresAt: time.Now().Add(s.cfg.TokenTTL).UTC()}
}

func (s *server) register(c *gin.Context) {
	var req validation.RegisterRequest
	if !s.bind(c, &req) {
		return
	}
	reg := accounts.Registration{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      accounts.Role(req.Role),
		Phone:     req.Phone,
		StudentID: req.StudentID,
	}
	if req.VendorInfo != nil {
		reg.ShopName = req.VendorInfo.ShopName
		reg.ShopDescription = req.VendorInfo.Description
	}
	acct, token, err := s.cfg.Accounts.Register(c.Request.Context(), reg)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	role := string(acct.Role)
	respond(c, http.StatusCreated, strings.ToUpper(role[:1])+role[1:]+" account created successfully", s.session(acct, token))
}

func (s *server) login(c *gin.Context) {
	var req validation.LoginRequest
	if !s.bind(c, &req) {
		return
	}
	acct, token, err := s.cfg.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	metrics.RecordLogin(err == nil)
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Login successful", s.session(acct, token))
}

func (s *server) profile(c *gin.Context) {
	acct, err := s.cfg.Accounts.Profile(c.Request.Context(), principal(c))
	if err != nil {
		fail(c, s.logger, err)
		return
	}
	respond(c, http.StatusOK, "Profile retrieved successfully", gin.H{"user": acct})
}

func (s *server) logout(c *gin.Context) {
	v, _ := c.Get(claimsKey)
	claims, ok := v.(*auth.Claims)
	if !ok {
		fail(c, s.logger, apperr.Unauthenticated("Authentication required"))
		return
	}
	if err := s.cfg.Revocations.Revoke(c.Request.Context(), claims); err != nil {
		fail(c, s.logger, apperr.Internal("revoke token", err))
		return
	}
	respond(c, http.StatusOK, "Logged out successfully", nil)
}
