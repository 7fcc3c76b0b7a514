// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Phobos Auth Contributors

// Package httpapi exposes the auth service over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/phobos/authd/internal/auth"
	"github.com/phobos/authd/internal/validation"
	"github.com/phobos/authd/pkg/errutil"
)

// Header names carrying session credentials.
const (
	HeaderLocalID = "localId"
	HeaderIDToken = "idToken"
)

const identityKey = "authd.identity"

// AuthService is the part of *auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, profile auth.Profile, passwordDigest string) (ulid.ULID, error)
	Login(ctx context.Context, email, passwordDigest string) (*auth.LoginResult, error)
	VerifySession(ctx context.Context, localID, idToken string) (auth.Identity, error)
	GetUser(ctx context.Context, localID, idToken string) (auth.UserSummary, error)
	Logout(ctx context.Context, localID, idToken string) error
	PatchDisplayName(ctx context.Context, who auth.Identity, displayName string) error
	PatchEmail(ctx context.Context, who auth.Identity, email string) error
	PatchPassword(ctx context.Context, who auth.Identity, passwordDigest string) error
}

type registerRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type displayNameRequest struct {
	DisplayName string `json:"displayName"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type handler struct {
	svc       AuthService
	validator *validation.Validator
	logger    *slog.Logger
}

// fail writes the error response for err and aborts the chain.
func (h *handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		errutil.LogError(ctx, h.logger, "request failed", err, "route", c.FullPath())
	} else {
		h.logger.DebugContext(ctx, "request rejected",
			"route", c.FullPath(),
			"status", status,
			"error", err.Error())
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Status: status, Msg: auth.Message(err)})
}

// bind decodes the JSON body into req and checks it against set.
func (h *handler) bind(c *gin.Context, req any, set validation.RuleSet, fields func() map[string]string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, oops.Code(auth.CodeValidation).With("rule_set", string(set)).Wrapf(auth.ErrValidation, "decode body: %v", err))
		return false
	}
	if err := h.validator.Validate(set, fields()); err != nil {
		h.fail(c, err)
		return false
	}
	return true
}

// credentials returns the session headers with "null" treated as absent.
func credentials(c *gin.Context) (localID, idToken string) {
	localID, idToken = c.GetHeader(HeaderLocalID), c.GetHeader(HeaderIDToken)
	if auth.CredentialMissing(localID) {
		localID = ""
	}
	if auth.CredentialMissing(idToken) {
		idToken = ""
	}
	return localID, idToken
}

// requireSession verifies the session headers against set before the
// route handler runs. Missing headers are 401, malformed ones 400.
func (h *handler) requireSession(set validation.RuleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		localID, idToken := credentials(c)
		if localID == "" || idToken == "" {
			h.fail(c, oops.Code(auth.CodeUnauthorized).With("reason", "missing session headers").Wrap(auth.ErrUnauthorized))
			return
		}
		if err := h.validator.Validate(set, map[string]string{
			validation.FieldLocalID: localID,
			validation.FieldIDToken: idToken,
		}); err != nil {
			h.fail(c, err)
			return
		}
		who, err := h.svc.VerifySession(c.Request.Context(), localID, idToken)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

func identity(c *gin.Context) auth.Identity {
	who, _ := c.MustGet(identityKey).(auth.Identity)
	return who
}

func (h *handler) postUser(c *gin.Context) {
	var req registerRequest
	if !h.bind(c, &req, validation.PostUser, func() map[string]string {
		return map[string]string{
			validation.FieldDisplayName: req.DisplayName,
			validation.FieldEmail:       req.Email,
			validation.FieldPassword:    req.Password,
		}
	}) {
		return
	}

	id, err := h.svc.Register(c.Request.Context(), auth.Profile{DisplayName: req.DisplayName, Email: req.Email}, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, DataResponse[InsertAck]{
		Status: http.StatusCreated,
		Data:   InsertAck{Acknowledged: true, InsertedID: id.String()},
	})
}

func (h *handler) postLogin(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req, validation.PostLogin, func() map[string]string {
		return map[string]string{
			validation.FieldEmail:    req.Email,
			validation.FieldPassword: req.Password,
		}
	}) {
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, UserResponse[SessionUser]{
		Status: http.StatusOK,
		User: SessionUser{
			LocalID:     res.ID.String(),
			DisplayName: res.DisplayName,
			Email:       res.Email,
			IDToken:     res.Token,
			ExpiresIn:   res.ExpiresIn,
		},
	})
}

func (h *handler) getUser(c *gin.Context) {
	localID, idToken := credentials(c)
	summary, err := h.svc.GetUser(c.Request.Context(), localID, idToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, UserResponse[ProfileUser]{
		Status: http.StatusOK,
		User: ProfileUser{
			LocalID:     summary.ID.String(),
			DisplayName: summary.DisplayName,
			Email:       summary.Email,
		},
	})
}

func (h *handler) postLogout(c *gin.Context) {
	localID, idToken := credentials(c)
	if err := h.svc.Logout(c.Request.Context(), localID, idToken); err != nil {
		h.fail(c, err)
		return
	}
	h.updated(c)
}

func (h *handler) patchDisplayName(c *gin.Context) {
	var req displayNameRequest
	if !h.bind(c, &req, validation.PatchUserDisplayName, func() map[string]string {
		return map[string]string{validation.FieldDisplayName: req.DisplayName}
	}) {
		return
	}
	if err := h.svc.PatchDisplayName(c.Request.Context(), identity(c), req.DisplayName); err != nil {
		h.fail(c, err)
		return
	}
	h.updated(c)
}

func (h *handler) patchEmail(c *gin.Context) {
	var req emailRequest
	if !h.bind(c, &req, validation.PatchUserEmail, func() map[string]string {
		return map[string]string{validation.FieldEmail: req.Email}
	}) {
		return
	}
	if err := h.svc.PatchEmail(c.Request.Context(), identity(c), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	h.updated(c)
}

func (h *handler) patchPassword(c *gin.Context) {
	var req passwordRequest
	if !h.bind(c, &req, validation.PatchUserPassword, func() map[string]string {
		return map[string]string{validation.FieldPassword: req.Password}
	}) {
		return
	}
	if err := h.svc.PatchPassword(c.Request.Context(), identity(c), req.Password); err != nil {
		h.fail(c, err)
		return
	}
	h.updated(c)
}

func (h *handler) updated(c *gin.Context) {
	c.JSON(http.StatusOK, DataResponse[UpdateAck]{
		Status: http.StatusOK,
		Data:   UpdateAck{Acknowledged: true, ModifiedCount: 1},
	})
}
