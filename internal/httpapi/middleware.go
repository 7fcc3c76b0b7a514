// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phobos/authd/internal/logging"
	"github.com/phobos/authd/internal/observability"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 64

var (
	corsAllowHeaders = strings.Join([]string{"Content-Type", HeaderLocalID, HeaderIDToken, HeaderRequestID}, ", ")
	corsAllowMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}, ", ")
)

// requestContext assigns a request ID and attaches it to the request
// context so every log record of the request carries it.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = ulid.Make().String()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// route returns the matched route pattern, or "unmatched".
func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}

// accessLog logs one line per request after it completes.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"route", route(c),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP())
	}
}

// requestMetrics records request counts and latency by route.
func requestMetrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveRequest(c.Request.Method, route(c), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// recovery turns panics into a logged 500 with the standard error body.
func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.ErrorContext(c.Request.Context(), "panic in handler",
			"route", route(c),
			"panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Status: http.StatusInternalServerError,
			Msg:    "Internal server error",
		})
	})
}

// originMatcher matches request origins against glob patterns.
type originMatcher []glob.Glob

func compileOrigins(patterns []string) (originMatcher, error) {
	m := make(originMatcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code("HTTP_INVALID_ORIGIN").With("pattern", p).Wrap(err)
		}
		m = append(m, g)
	}
	return m, nil
}

func (m originMatcher) allows(origin string) bool {
	for _, g := range m {
		if g.Match(origin) {
			return true
		}
	}
	return false
}

// cors answers preflight requests and sets CORS headers for allowed
// origins. Requests without an Origin header pass through untouched.
func cors(allowed originMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		ok := allowed.allows(origin)
		c.Header("Vary", "Origin")
		if ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Expose-Headers", HeaderRequestID)
		}

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			if !ok {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Methods", corsAllowMethods)
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
