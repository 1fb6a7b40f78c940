package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/apperr"
	"github.com/imrishuroy/go-campus-orderflow/internal/auth"
	"github.com/imrishuroy/go-campus-orderflow/internal/events"
	"github.com/imrishuroy/go-campus-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-campus-orderflow/internal/logging"
	"github.com/imrishuroy/go-campus-orderflow/internal/metrics"
)

const (
	principalKey = "principal"
	claimsKey    = "claims"

	// IdempotencyHeader lets clients retry order creation safely.
	IdempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 255
)

// AccountLoader loads the account behind a token.
type AccountLoader interface {
	Get(ctx context.Context, id string) (*accounts.Account, error)
}

// principal returns the authenticated caller, or the zero Principal.
func principal(c *gin.Context) accounts.Principal {
	v, _ := c.Get(principalKey)
	p, _ := v.(accounts.Principal)
	return p
}

// correlate copies the request id into the request context so published
// events carry it.
func correlate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := events.WithCorrelationID(c.Request.Context(), logging.RequestIDFrom(c))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authenticate verifies the bearer token and loads an active account.
func authenticate(tokens *auth.Tokens, revocations *auth.Revocations, accts AccountLoader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || raw == "" || raw == header {
			fail(c, logger, apperr.Unauthenticated("Access denied. No token provided"))
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			fail(c, logger, apperr.Unauthenticated("Token is not valid"))
			return
		}

		ctx := c.Request.Context()
		revoked, err := revocations.Revoked(ctx, claims.ID)
		if err != nil {
			// fail open on cache errors
			logger.Warn("revocation check failed", zap.String("jti", claims.ID), zap.Error(err))
		}
		if revoked {
			fail(c, logger, apperr.Unauthenticated("Token has been revoked"))
			return
		}

		acct, err := accts.Get(ctx, claims.Subject)
		if err != nil {
			fail(c, logger, apperr.Internal("load account for token", err))
			return
		}
		if acct == nil {
			fail(c, logger, apperr.Unauthenticated("Token is not valid. User not found"))
			return
		}
		if !acct.IsActive {
			fail(c, logger, apperr.Unauthenticated("Account is deactivated"))
			return
		}

		c.Set(principalKey, accounts.PrincipalOf(acct))
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireRole rejects callers without role.
func requireRole(role accounts.Role, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := principal(c).Require(role); err != nil {
			fail(c, logger, err)
			return
		}
		c.Next()
	}
}

// cors answers preflight requests and stamps allowed origins.
func cors(allowed []string) gin.HandlerFunc {
	allowAll := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || set[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-Id")
			h.Set("Access-Control-Expose-Headers", "X-Request-Id, Idempotent-Replayed")
			h.Set("Access-Control-Max-Age", "3600")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
	maxIdle  time.Duration
	nowFunc  func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const maxVisitors = 10000

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: map[string]*visitor{},
		rate:     rate.Limit(rps),
		burst:    burst,
		maxIdle:  10 * time.Minute,
		nowFunc:  time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	if len(rl.limiters) >= maxVisitors {
		for k, v := range rl.limiters {
			if now.Sub(v.lastSeen) > rl.maxIdle {
				delete(rl.limiters, k)
			}
		}
	}
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			metrics.RecordRateLimited()
			logger.Warn("rate limit exceeded", zap.String("client_ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			abort(c, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		c.Next()
	}
}

// capturingWriter keeps a copy of the response body for idempotent replay.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent replays the stored response when a student repeats an
// Idempotency-Key. Requests without the header pass through.
func idempotent(store *idempotency.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKey {
			fail(c, logger, apperr.Validation(fmt.Sprintf("Idempotency-Key cannot exceed %d characters", maxIdempotencyKey)))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			fail(c, logger, apperr.Validation("Invalid request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sum := sha256.New()
		sum.Write([]byte(c.Request.Method + " " + c.FullPath() + "\n"))
		sum.Write(body)
		fingerprint := hex.EncodeToString(sum.Sum(nil))
		scoped := "http#" + principal(c).ID + "#" + key

		ctx := c.Request.Context()
		rec, created, err := store.Begin(ctx, scoped, fingerprint)
		if err != nil {
			fail(c, logger, apperr.Internal("claim idempotency key", err))
			return
		}
		if !created {
			switch {
			case rec.Fingerprint != fingerprint:
				fail(c, logger, apperr.Conflict("Idempotency-Key was already used for a different request"))
			case rec.Status == idempotency.StatusDone:
				c.Header("Idempotent-Replayed", "true")
				c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
				c.Abort()
			default:
				fail(c, logger, apperr.Conflict("A request with this Idempotency-Key is still in progress"))
			}
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// settle even if the client disconnected
		settle := context.WithoutCancel(ctx)
		status := w.Status()
		if status >= 200 && status < 300 {
			err = store.MarkDone(settle, scoped, w.body.String(), status)
		} else {
			err = store.MarkFailed(settle, scoped, fmt.Sprintf("status %d", status))
		}
		if err != nil {
			logger.Error("settle idempotency key", zap.String("key", scoped), zap.Error(err))
		}
	}
}
