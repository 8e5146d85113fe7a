package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/service"
)

// ReservationService is implemented by *service.ReservationService.
type ReservationService interface {
	Create(ctx context.Context, caller model.User, customerID *uint64, arrangementID uint64, seats int) (*model.Reservation, error)
	UpdateSeats(ctx context.Context, caller model.User, arrangementID uint64, customerID *uint64, seats int) (*service.SeatUpdate, error)
	Cancel(ctx context.Context, caller model.User, arrangementID uint64, customerID *uint64) error
	ListOwn(ctx context.Context, caller model.User) ([]model.Reservation, error)
	ListAll(ctx context.Context, caller model.User, page int) ([]model.Reservation, error)
}

type ReservationHandler struct {
	Reservations ReservationService
}

func NewReservationHandler(s ReservationService) *ReservationHandler {
	return &ReservationHandler{Reservations: s}
}

type createReservationReq struct {
	ArrangementID uint64  `json:"arrangement_id" validate:"required"`
	SeatsNeeded   int     `json:"seats_needed" validate:"required"`
	CustomerID    *uint64 `json:"customer_id"`
}

type updateReservationReq struct {
	SeatsNeeded int     `json:"seats_needed" validate:"required"`
	CustomerID  *uint64 `json:"customer_id"`
}

// Page serves GET /reservations/page/:page.
func (h *ReservationHandler) Page(c echo.Context) error {
	page, err := pageParam(c.Param("page"))
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Reservations.ListAll(c.Request().Context(), caller(c), page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, reservationViews(out))
}

func (h *ReservationHandler) Own(c echo.Context) error {
	out, err := h.Reservations.ListOwn(c.Request().Context(), caller(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, reservationViews(out))
}

func (h *ReservationHandler) Create(c echo.Context) error {
	var req createReservationReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	r, err := h.Reservations.Create(c.Request().Context(), caller(c), req.CustomerID, req.ArrangementID, req.SeatsNeeded)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, reservationViewOf(*r))
}

// Update changes the seat count. A change that does not fit answers 200
// with the unchanged reservation and an explanation.
func (h *ReservationHandler) Update(c echo.Context) error {
	arrangementID, err := pathID(c, "arrangementId")
	if err != nil {
		return respondError(c, err)
	}
	var req updateReservationReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	out, err := h.Reservations.UpdateSeats(c.Request().Context(), caller(c), arrangementID, req.CustomerID, req.SeatsNeeded)
	if err != nil {
		return respondError(c, err)
	}
	if !out.Changed {
		return c.JSON(http.StatusOK, echo.Map{"msg": out.Advice, "reservation": reservationViewOf(out.Reservation)})
	}
	return c.JSON(http.StatusOK, reservationViewOf(out.Reservation))
}

// Cancel serves DELETE /reservations/:arrangementId. Admins name the
// customer with ?customer_id=.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	arrangementID, err := pathID(c, "arrangementId")
	if err != nil {
		return respondError(c, err)
	}
	customerID, err := optionalUint(c, "customer_id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Reservations.Cancel(c.Request().Context(), caller(c), arrangementID, customerID); err != nil {
		return respondError(c, err)
	}
	return msg(c, http.StatusOK, "Reservation cancelled.")
}
