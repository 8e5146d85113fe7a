package service

import (
	"context"
	"errors"

	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// ReservationService is the reservation engine. Every capacity decision
// is taken inside a transaction that holds the arrangement row lock, so
// concurrent bookings on one arrangement are serialized.
type ReservationService struct {
	store    Store
	repos    Repos
	notifier Notifier
	opts     Options
}

func NewReservationService(store Store, repos Repos, n Notifier, opts Options) *ReservationService {
	return &ReservationService{store: store, repos: repos, notifier: n, opts: opts.withDefaults()}
}

// SeatUpdate is the outcome of UpdateSeats. When Changed is false the
// reservation was left as it was and Advice explains why.
type SeatUpdate struct {
	Reservation model.Reservation
	Changed     bool
	Advice      string
}

// AdviceNotEnoughSeats is returned when a seat change does not fit.
const AdviceNotEnoughSeats = "There is not enough seats left. Reservation unchanged."

// resolveCustomer applies the caller rule: tourists act on their own
// rows, admins must name the customer.
func resolveCustomer(caller model.User, customerID *uint64) (uint64, error) {
	switch caller.Role() {
	case model.RoleTourist:
		return caller.ID, nil
	case model.RoleAdmin:
		if customerID == nil || *customerID == 0 {
			return 0, &Error{Kind: KindValidation, Fields: map[string][]string{"customer_id": {"Customer id missing."}}}
		}
		return *customerID, nil
	}
	return 0, ErrRoleNotAllowed
}

func checkSeats(seats int) error {
	if seats <= 0 {
		return &Error{Kind: KindValidation, Fields: map[string][]string{"seats_needed": {"Seats needed must be greater than 0."}}}
	}
	return nil
}

// loadCustomer returns the caller itself or looks the customer up.
func (s *ReservationService) loadCustomer(ctx context.Context, q repository.DBTX, caller model.User, id uint64) (*model.User, error) {
	if caller.ID == id {
		return &caller, nil
	}
	u, err := s.repos.Users.GetByID(ctx, q, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound("No such customer found.")
		}
		return nil, persistence("load customer", err)
	}
	return u, nil
}

func (s *ReservationService) lockArrangement(ctx context.Context, q repository.DBTX, id uint64) (*model.Arrangement, error) {
	a, err := s.repos.Arrangements.GetForUpdate(ctx, q, id)
	if err != nil {
		if errors.Is(err, repository.ErrArrangementNotFound) {
			return nil, notFound("No such arrangement found.")
		}
		return nil, persistence("load arrangement", err)
	}
	return a, nil
}

// Create books seats for a customer on an arrangement.
func (s *ReservationService) Create(ctx context.Context, caller model.User, customerID *uint64, arrangementID uint64, seats int) (*model.Reservation, error) {
	cid, err := resolveCustomer(caller, customerID)
	if err != nil {
		return nil, err
	}
	if err := checkSeats(seats); err != nil {
		return nil, err
	}

	var (
		out      model.Reservation
		customer *model.User
	)
	err = s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		if customer, err = s.loadCustomer(ctx, q, caller, cid); err != nil {
			return err
		}
		a, err := s.lockArrangement(ctx, q, arrangementID)
		if err != nil {
			return err
		}
		if a.Cancelled {
			return ErrArrangementCancelled
		}
		if a.EditWindowClosed(s.opts.Clock()) {
			return ErrExpired
		}
		if _, err := s.repos.Reservations.GetForUpdate(ctx, q, cid, a.ID); err == nil {
			return ErrAlreadyReserved
		} else if !errors.Is(err, repository.ErrReservationNotFound) {
			return persistence("load reservation", err)
		}
		reserved, err := s.repos.Reservations.SumSeats(ctx, q, a.ID, 0)
		if err != nil {
			return persistence("sum seats", err)
		}
		if seats > model.SeatsAvailable(a.NumberOfSeats, reserved) {
			return ErrCapacityExceeded
		}
		out = model.Reservation{CustomerID: cid, ArrangementID: a.ID, SeatsNeeded: seats}
		if err := s.repos.Reservations.Create(ctx, q, &out); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyReserved
			}
			return persistence("create reservation", err)
		}
		out.Price = model.ReservationPrice(seats, a.Price)
		out.Destination = a.Destination
		out.StartDate = a.StartDate
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ReservationsTotal.WithLabelValues("created").Inc()
	s.notifier.ReservationCreated(ctx, *customer, out)
	return &out, nil
}

// UpdateSeats changes the seat count of an existing reservation. When
// the new count does not fit, the reservation is returned unchanged with
// advice instead of an error.
func (s *ReservationService) UpdateSeats(ctx context.Context, caller model.User, arrangementID uint64, customerID *uint64, seats int) (*SeatUpdate, error) {
	cid, err := resolveCustomer(caller, customerID)
	if err != nil {
		return nil, err
	}
	if err := checkSeats(seats); err != nil {
		return nil, err
	}

	var (
		out      SeatUpdate
		customer *model.User
	)
	err = s.store.WithTx(ctx, func(q repository.DBTX) error {
		a, err := s.lockArrangement(ctx, q, arrangementID)
		if err != nil {
			return err
		}
		res, err := s.repos.Reservations.GetForUpdate(ctx, q, cid, a.ID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return notFound("No such reservation found.")
			}
			return persistence("load reservation", err)
		}
		if a.Cancelled {
			return ErrArrangementCancelled
		}
		others, err := s.repos.Reservations.SumSeats(ctx, q, a.ID, cid)
		if err != nil {
			return persistence("sum seats", err)
		}
		out.Reservation = *res
		if seats > model.SeatsAvailable(a.NumberOfSeats, others) {
			out.Advice = AdviceNotEnoughSeats
			return nil
		}
		if seats != res.SeatsNeeded {
			if err := s.repos.Reservations.UpdateSeats(ctx, q, cid, a.ID, seats); err != nil {
				return persistence("update reservation", err)
			}
		}
		if customer, err = s.loadCustomer(ctx, q, caller, cid); err != nil {
			return err
		}
		out.Changed = true
		out.Reservation.SeatsNeeded = seats
		out.Reservation.Price = model.ReservationPrice(seats, a.Price)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Changed {
		metrics.ReservationsTotal.WithLabelValues("changed").Inc()
		s.notifier.ReservationChanged(ctx, *customer, out.Reservation)
	}
	return &out, nil
}

// Cancel deletes a reservation and notifies its customer.
func (s *ReservationService) Cancel(ctx context.Context, caller model.User, arrangementID uint64, customerID *uint64) error {
	cid, err := resolveCustomer(caller, customerID)
	if err != nil {
		return err
	}
	var (
		res      *model.Reservation
		customer *model.User
	)
	err = s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		res, err = s.repos.Reservations.GetForUpdate(ctx, q, cid, arrangementID)
		if err != nil {
			if errors.Is(err, repository.ErrReservationNotFound) {
				return notFound("No such reservation found.")
			}
			return persistence("load reservation", err)
		}
		if customer, err = s.loadCustomer(ctx, q, caller, cid); err != nil {
			return err
		}
		if err := s.repos.Reservations.Delete(ctx, q, cid, arrangementID); err != nil {
			return persistence("delete reservation", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.ReservationsTotal.WithLabelValues("cancelled").Inc()
	s.notifier.ReservationCancelled(ctx, *customer, *res)
	return nil
}

// ListOwn returns the tourist's reservations.
func (s *ReservationService) ListOwn(ctx context.Context, caller model.User) ([]model.Reservation, error) {
	if !caller.HasRole(model.RoleTourist) {
		return nil, ErrRoleNotAllowed
	}
	out, err := s.repos.Reservations.ListByCustomer(ctx, s.store.Conn(), caller.ID)
	if err != nil {
		return nil, persistence("list reservations", err)
	}
	return out, nil
}

// ListAll returns one page of every reservation. Admin only.
func (s *ReservationService) ListAll(ctx context.Context, caller model.User, page int) ([]model.Reservation, error) {
	if !caller.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	if err := checkPage(page); err != nil {
		return nil, err
	}
	out, err := s.repos.Reservations.List(ctx, s.store.Conn(), page, s.opts.PageSize)
	if err != nil {
		return nil, persistence("list reservations", err)
	}
	return out, nil
}
