package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/service"
)

// ArrangementService is implemented by *service.ArrangementService.
type ArrangementService interface {
	List(ctx context.Context, f service.ArrangementFilter) ([]model.Arrangement, error)
	Get(ctx context.Context, id uint64) (*model.Arrangement, error)
	Create(ctx context.Context, caller model.User, in service.ArrangementInput) (*model.Arrangement, error)
	Update(ctx context.Context, caller model.User, id uint64, p service.ArrangementPatch) (*model.Arrangement, error)
	Delete(ctx context.Context, caller model.User, id uint64) error
	ListOwn(ctx context.Context, caller model.User) ([]model.Arrangement, error)
	ListAvailable(ctx context.Context, caller model.User) ([]model.Arrangement, error)
}

type ArrangementHandler struct {
	Arrangements ArrangementService
}

func NewArrangementHandler(s ArrangementService) *ArrangementHandler {
	return &ArrangementHandler{Arrangements: s}
}

type createArrangementReq struct {
	StartDate     string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Description   string  `json:"description" validate:"required"`
	Destination   string  `json:"destination" validate:"required"`
	NumberOfSeats int     `json:"number_of_seats" validate:"required"`
	Price         float64 `json:"price" validate:"required"`
	GuideID       *uint64 `json:"guide_id"`
}

type updateArrangementReq struct {
	StartDate     *string  `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string  `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Description   *string  `json:"description"`
	Destination   *string  `json:"destination"`
	NumberOfSeats *int     `json:"number_of_seats"`
	Price         *float64 `json:"price"`
	GuideID       *uint64  `json:"guide_id"`
	Cancelled     *bool    `json:"cancelled"`
}

// List serves GET /arrangements. Guests get the reduced view.
func (h *ArrangementHandler) List(c echo.Context) error {
	page, err := pageParam(c.QueryParam("page"))
	if err != nil {
		return respondError(c, err)
	}
	from, err := parseDate("start-date", c.QueryParam("start-date"))
	if err != nil {
		return respondError(c, err)
	}
	to, err := parseDate("end-date", c.QueryParam("end-date"))
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Arrangements.List(c.Request().Context(), service.ArrangementFilter{
		From: from, To: to, Destination: c.QueryParam("dest"), Sort: c.QueryParam("sort"), Page: page,
	})
	if err != nil {
		return respondError(c, err)
	}
	if _, ok := middleware.Caller(c); !ok {
		basic := make([]arrangementBasic, 0, len(out))
		for _, a := range out {
			basic = append(basic, basicView(a))
		}
		return c.JSON(http.StatusOK, basic)
	}
	return c.JSON(http.StatusOK, fullViews(out))
}

func (h *ArrangementHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	a, err := h.Arrangements.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, fullView(*a))
}

func (h *ArrangementHandler) Own(c echo.Context) error {
	out, err := h.Arrangements.ListOwn(c.Request().Context(), caller(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, fullViews(out))
}

func (h *ArrangementHandler) Available(c echo.Context) error {
	out, err := h.Arrangements.ListAvailable(c.Request().Context(), caller(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, fullViews(out))
}

func (h *ArrangementHandler) Create(c echo.Context) error {
	var req createArrangementReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return respondError(c, err)
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return respondError(c, err)
	}
	a, err := h.Arrangements.Create(c.Request().Context(), caller(c), service.ArrangementInput{
		StartDate:     *start,
		EndDate:       *end,
		Description:   req.Description,
		Destination:   req.Destination,
		NumberOfSeats: req.NumberOfSeats,
		Price:         req.Price,
		GuideID:       req.GuideID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, fullView(*a))
}

func (h *ArrangementHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req updateArrangementReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	p := service.ArrangementPatch{
		Description:   req.Description,
		Destination:   req.Destination,
		NumberOfSeats: req.NumberOfSeats,
		Price:         req.Price,
		GuideID:       req.GuideID,
		Cancelled:     req.Cancelled,
	}
	if req.StartDate != nil {
		if p.StartDate, err = parseDate("start_date", *req.StartDate); err != nil {
			return respondError(c, err)
		}
	}
	if req.EndDate != nil {
		if p.EndDate, err = parseDate("end_date", *req.EndDate); err != nil {
			return respondError(c, err)
		}
	}
	a, err := h.Arrangements.Update(c.Request().Context(), caller(c), id, p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, fullView(*a))
}

func (h *ArrangementHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Arrangements.Delete(c.Request().Context(), caller(c), id); err != nil {
		return respondError(c, err)
	}
	return msg(c, http.StatusOK, "Arrangement deleted.")
}
