package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/service"
	"github.com/iliyamo/tour-booking/internal/utils"
)

// TokenStore persists refresh tokens; *repository.TokenRepo implements it.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Consume(ctx context.Context, tokenHash string) (uint64, error)
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthConfig holds the token settings of the auth endpoints.
type AuthConfig struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    AuthConfig
	Users  UserService
	Tokens TokenStore
}

func NewAuthHandler(cfg AuthConfig, u UserService, t TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email      string  `json:"email" validate:"required,email"`
	Username   string  `json:"username" validate:"required"`
	FirstName  string  `json:"first_name" validate:"required"`
	LastName   string  `json:"last_name" validate:"required"`
	Password   string  `json:"password" validate:"required"`
	WantedType *string `json:"wanted_type"`
	Comment    *string `json:"comment" validate:"omitempty,max=1024"`
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotReq struct {
	Email string `json:"email" validate:"required"`
}

type resetReq struct {
	Token     string `json:"token" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Password1 string `json:"password1" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User          userView           `json:"user"`
	Access        tokenPart          `json:"access"`
	Refresh       tokenPart          `json:"refresh"`
	ChangeRequest *changeRequestView `json:"change_request,omitempty"`
}

// issue creates an access and refresh pair for u and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role()), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userViewOf(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates a tourist account, optionally filing an account type
// change request, and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	u, cr, err := h.Users.Register(ctx, service.Registration{
		Email:      strings.TrimSpace(req.Email),
		Username:   strings.TrimSpace(req.Username),
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Password:   req.Password,
		WantedType: req.WantedType,
		Comment:    req.Comment,
	})
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.issue(ctx, *u)
	if err != nil {
		return respondError(c, err)
	}
	if cr != nil {
		v := changeRequestViewOf(*cr)
		resp.ChangeRequest = &v
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	u, err := h.Users.Authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.issue(ctx, *u)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// consume spends a raw refresh token. Unknown, expired or spent tokens
// answer 401.
func (h *AuthHandler) consume(c echo.Context, raw string) (uint64, error) {
	userID, err := h.Tokens.Consume(c.Request().Context(), utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrTokenInvalid) {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token.")
	}
	return userID, err
}

// Refresh spends the old refresh token and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return msg(c, http.StatusBadRequest, "refresh_token required")
	}
	ctx := c.Request().Context()

	userID, err := h.consume(c, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return respondError(c, err)
	}
	u, err := h.Users.Load(ctx, userID)
	if err != nil {
		if service.KindOf(err) == service.KindNotFound {
			return msg(c, http.StatusUnauthorized, "Invalid refresh token.")
		}
		return respondError(c, err)
	}
	resp, err := h.issue(ctx, *u)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every refresh token
// of the authenticated caller when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)
	ctx := c.Request().Context()

	if raw != "" {
		if _, err := h.consume(c, raw); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	u, ok := middleware.Caller(c)
	if !ok {
		return msg(c, http.StatusBadRequest, "Provide a refresh_token or a bearer token.")
	}
	if err := h.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ForgotPassword always answers 200 so callers cannot probe for accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.Users.RequestPasswordReset(c.Request().Context(), strings.TrimSpace(req.Email)); err != nil {
		logging.Ctx(c.Request().Context()).Error().Err(err).Msg("password reset request failed")
	}
	return msg(c, http.StatusOK, "If the address belongs to an account, a reset link has been sent.")
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.Users.ResetPassword(c.Request().Context(), req.Token, req.Password, req.Password1); err != nil {
		return respondError(c, err)
	}
	return msg(c, http.StatusOK, "Password changed.")
}

func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, userViewOf(caller(c)))
}
