// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/phobos/authd/internal/observability"
	"github.com/phobos/authd/internal/validation"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	// Prefix is the route prefix, /{application}/api/{version}.
	Prefix string
	// AllowedOrigins are CORS origin glob patterns. Empty disables CORS.
	AllowedOrigins []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics enables request metrics when set.
	Metrics *observability.Metrics
}

// NewRouter builds the gin engine serving the user API under opts.Prefix.
func NewRouter(svc AuthService, opts RouterOptions) (*gin.Engine, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("auth service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins, err := compileOrigins(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	h := &handler{svc: svc, validator: validation.New(), logger: logger}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestContext(), recovery(logger), accessLog(logger))
	if opts.Metrics != nil {
		r.Use(requestMetrics(opts.Metrics))
	}
	if len(origins) > 0 {
		r.Use(cors(origins))
	}

	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Status: http.StatusNotFound, Msg: "Not found"})
	}
	r.NoRoute(notFound)
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse{Status: http.StatusMethodNotAllowed, Msg: "Method not allowed"})
	})

	api := r.Group(opts.Prefix)
	api.POST("/user", h.postUser)
	api.POST("/user/login", h.postLogin)
	api.GET("/user", h.requireSession(validation.GetUser), h.getUser)
	api.POST("/user/logout", h.requireSession(validation.PostLogout), h.postLogout)
	api.PATCH("/user/displayname", h.requireSession(validation.GetToken), h.patchDisplayName)
	api.PATCH("/user/email", h.requireSession(validation.GetToken), h.patchEmail)
	api.PATCH("/user/password", h.requireSession(validation.GetToken), h.patchPassword)

	return r, nil
}
