package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
)

// ChangeRequestService is implemented by *service.ChangeRequestService.
type ChangeRequestService interface {
	File(ctx context.Context, caller model.User, wanted string, comment *string) (*model.AccountTypeChangeRequest, error)
	List(ctx context.Context, caller model.User, page int, sort string) ([]model.AccountTypeChangeRequest, error)
	ListOwn(ctx context.Context, caller model.User, page int) ([]model.AccountTypeChangeRequest, error)
	Get(ctx context.Context, caller model.User, id uint64) (*model.AccountTypeChangeRequest, error)
	Adjudicate(ctx context.Context, admin model.User, id uint64, granted bool, comment string) (*model.AccountTypeChangeRequest, error)
}

type ChangeRequestHandler struct {
	Requests ChangeRequestService
}

func NewChangeRequestHandler(s ChangeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{Requests: s}
}

type fileChangeReq struct {
	WantedType string  `json:"wanted_type" validate:"required"`
	Comment    *string `json:"comment" validate:"omitempty,max=1024"`
}

type decideChangeReq struct {
	Granted *bool  `json:"granted" validate:"required"`
	Comment string `json:"comment" validate:"required"`
}

func (h *ChangeRequestHandler) File(c echo.Context) error {
	var req fileChangeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	r, err := h.Requests.File(c.Request().Context(), caller(c), req.WantedType, req.Comment)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, changeRequestViewOf(*r))
}

// Page serves GET /acc-type-change/page/:page?sort=.
func (h *ChangeRequestHandler) Page(c echo.Context) error {
	page, err := pageParam(c.Param("page"))
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Requests.List(c.Request().Context(), caller(c), page, c.QueryParam("sort"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, changeRequestViews(out))
}

func (h *ChangeRequestHandler) Own(c echo.Context) error {
	page, err := pageParam(c.QueryParam("page"))
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Requests.ListOwn(c.Request().Context(), caller(c), page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, changeRequestViews(out))
}

func (h *ChangeRequestHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	r, err := h.Requests.Get(c.Request().Context(), caller(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, changeRequestViewOf(*r))
}

func (h *ChangeRequestHandler) Decide(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req decideChangeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	r, err := h.Requests.Adjudicate(c.Request().Context(), caller(c), id, *req.Granted, req.Comment)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, changeRequestViewOf(*r))
}
