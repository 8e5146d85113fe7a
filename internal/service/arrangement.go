package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// ArrangementService implements the arrangement lifecycle: create,
// update (including guide assignment and cancellation) and delete, plus
// the role-specific listings.
type ArrangementService struct {
	store    Store
	repos    Repos
	notifier Notifier
	opts     Options
}

func NewArrangementService(store Store, repos Repos, n Notifier, opts Options) *ArrangementService {
	return &ArrangementService{store: store, repos: repos, notifier: n, opts: opts.withDefaults()}
}

// ArrangementFilter narrows the public listing.
type ArrangementFilter struct {
	From        *time.Time
	To          *time.Time
	Destination string
	Sort        string
	Page        int
}

// ArrangementInput carries the fields of a new arrangement.
type ArrangementInput struct {
	StartDate     time.Time
	EndDate       time.Time
	Description   string
	Destination   string
	NumberOfSeats int
	Price         float64
	GuideID       *uint64
}

// ArrangementPatch carries an update. Nil fields are left untouched.
type ArrangementPatch struct {
	StartDate     *time.Time
	EndDate       *time.Time
	Description   *string
	Destination   *string
	NumberOfSeats *int
	Price         *float64
	GuideID       *uint64
	Cancelled     *bool
}

const minTextLen = 5

func validateArrangement(a model.Arrangement) error {
	fe := fieldErrors{}
	if utf8.RuneCountInString(strings.TrimSpace(a.Description)) < minTextLen {
		fe.add("description", "Description must be at least 5 characters long.")
	}
	if utf8.RuneCountInString(strings.TrimSpace(a.Destination)) < minTextLen {
		fe.add("destination", "Destination must be at least 5 characters long.")
	}
	if a.NumberOfSeats <= 0 {
		fe.add("number_of_seats", "Number of seats must be greater than 0.")
	}
	if a.Price <= 0 {
		fe.add("price", "Price must be greater than 0.")
	}
	if !model.Day(a.StartDate).Before(model.Day(a.EndDate)) {
		fe.add("end_date", "End date must be after start date.")
	}
	return fe.err()
}

// List returns one page of arrangements.
func (s *ArrangementService) List(ctx context.Context, f ArrangementFilter) ([]model.Arrangement, error) {
	if err := checkPage(f.Page); err != nil {
		return nil, err
	}
	if f.From != nil && f.To != nil && model.Day(*f.To).Before(model.Day(*f.From)) {
		return nil, &Error{Kind: KindValidation, Fields: map[string][]string{"end-date": {"End date must not be before start date."}}}
	}
	out, err := s.repos.Arrangements.List(ctx, s.store.Conn(), repository.ArrangementQuery{
		From: f.From, To: f.To, Destination: f.Destination, Sort: f.Sort, Page: f.Page, PageSize: s.opts.PageSize,
	})
	if err != nil {
		return nil, persistence("list arrangements", err)
	}
	return out, nil
}

// Get returns one arrangement.
func (s *ArrangementService) Get(ctx context.Context, id uint64) (*model.Arrangement, error) {
	a, err := s.repos.Arrangements.GetByID(ctx, s.store.Conn(), id)
	if err != nil {
		if errors.Is(err, repository.ErrArrangementNotFound) {
			return nil, notFound("No such arrangement found.")
		}
		return nil, persistence("load arrangement", err)
	}
	return a, nil
}

// checkGuide verifies that guideID holds GUIDE and has no other live
// arrangement covering start or end.
func (s *ArrangementService) checkGuide(ctx context.Context, q repository.DBTX, guideID, arrangementID uint64, start, end time.Time) error {
	g, err := s.repos.Users.GetByID(ctx, q, guideID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return notFound("There's no such guide.")
		}
		return persistence("load guide", err)
	}
	if !g.HasRole(model.RoleGuide) {
		return notFound("There's no such guide.")
	}
	for _, day := range []time.Time{start, end} {
		busy, err := s.repos.Arrangements.GuideBusy(ctx, q, guideID, arrangementID, day)
		if err != nil {
			return persistence("check guide", err)
		}
		if busy {
			return ErrGuideUnavailable
		}
	}
	return nil
}

// Create stores a new arrangement owned by the calling admin.
func (s *ArrangementService) Create(ctx context.Context, caller model.User, in ArrangementInput) (*model.Arrangement, error) {
	if !caller.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	a := model.Arrangement{
		StartDate:     model.Day(in.StartDate),
		EndDate:       model.Day(in.EndDate),
		Description:   strings.TrimSpace(in.Description),
		Destination:   strings.TrimSpace(in.Destination),
		NumberOfSeats: in.NumberOfSeats,
		Price:         in.Price,
		GuideID:       in.GuideID,
		CreatorID:     caller.ID,
	}
	if err := validateArrangement(a); err != nil {
		return nil, err
	}
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		if a.GuideID != nil {
			if err := s.checkGuide(ctx, q, *a.GuideID, 0, a.StartDate, a.EndDate); err != nil {
				return err
			}
		}
		if err := s.repos.Arrangements.Create(ctx, q, &a); err != nil {
			return persistence("create arrangement", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// guidePatchAllowed reports whether p changes nothing but the
// description of a.
func guidePatchAllowed(a model.Arrangement, p ArrangementPatch) bool {
	if p.StartDate != nil && !model.Day(*p.StartDate).Equal(model.Day(a.StartDate)) {
		return false
	}
	if p.EndDate != nil && !model.Day(*p.EndDate).Equal(model.Day(a.EndDate)) {
		return false
	}
	if p.Destination != nil && strings.TrimSpace(*p.Destination) != a.Destination {
		return false
	}
	if p.NumberOfSeats != nil && *p.NumberOfSeats != a.NumberOfSeats {
		return false
	}
	if p.Price != nil && *p.Price != a.Price {
		return false
	}
	if p.GuideID != nil && !a.HasGuide(*p.GuideID) {
		return false
	}
	if p.Cancelled != nil && *p.Cancelled != a.Cancelled {
		return false
	}
	return true
}

// Update applies p to the arrangement. The edit window is evaluated on
// the stored start date before anything in p is applied.
func (s *ArrangementService) Update(ctx context.Context, caller model.User, id uint64, p ArrangementPatch) (*model.Arrangement, error) {
	role := caller.Role()
	if role != model.RoleAdmin && role != model.RoleGuide {
		return nil, ErrRoleNotAllowed
	}
	var (
		out       model.Arrangement
		customers []model.User
	)
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		a, err := s.repos.Arrangements.GetForUpdate(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrArrangementNotFound) {
				return notFound("No such arrangement found.")
			}
			return persistence("load arrangement", err)
		}
		if a.EditWindowClosed(s.opts.Clock()) {
			return ErrEditWindowClosed
		}
		if a.Cancelled {
			return ErrArrangementCancelled
		}

		if role == model.RoleGuide {
			if !a.HasGuide(caller.ID) {
				return ErrNotAssignedGuide
			}
			if !guidePatchAllowed(*a, p) {
				return ErrGuideFieldChange
			}
			if p.Description == nil {
				return &Error{Kind: KindValidation, Fields: map[string][]string{"description": {"Description is required."}}}
			}
			a.Description = strings.TrimSpace(*p.Description)
			if utf8.RuneCountInString(a.Description) < minTextLen {
				return &Error{Kind: KindValidation, Fields: map[string][]string{"description": {"Description must be at least 5 characters long."}}}
			}
			if err := s.repos.Arrangements.Update(ctx, q, a); err != nil {
				return persistence("update arrangement", err)
			}
			out = *a
			return nil
		}

		if a.CreatorID != caller.ID {
			return ErrNotCreator
		}
		next := *a
		if p.StartDate != nil {
			next.StartDate = model.Day(*p.StartDate)
		}
		if p.EndDate != nil {
			next.EndDate = model.Day(*p.EndDate)
		}
		if p.Description != nil {
			next.Description = strings.TrimSpace(*p.Description)
		}
		if p.Destination != nil {
			next.Destination = strings.TrimSpace(*p.Destination)
		}
		if p.NumberOfSeats != nil {
			next.NumberOfSeats = *p.NumberOfSeats
		}
		if p.Price != nil {
			next.Price = *p.Price
		}
		if p.GuideID != nil {
			g := *p.GuideID
			next.GuideID = &g
		}
		if p.Cancelled != nil {
			next.Cancelled = *p.Cancelled
		}
		if err := validateArrangement(next); err != nil {
			return err
		}

		reserved, err := s.repos.Reservations.SumSeats(ctx, q, a.ID, 0)
		if err != nil {
			return persistence("sum seats", err)
		}
		if next.NumberOfSeats < reserved {
			return &Error{Kind: KindValidation, Fields: map[string][]string{
				"number_of_seats": {"Number of seats cannot be lower than the seats already reserved."},
			}}
		}
		next.SeatsAvailable = model.SeatsAvailable(next.NumberOfSeats, reserved)

		guideChanged := p.GuideID != nil && !a.HasGuide(*p.GuideID)
		datesChanged := !next.StartDate.Equal(model.Day(a.StartDate)) || !next.EndDate.Equal(model.Day(a.EndDate))
		if next.GuideID != nil && (guideChanged || datesChanged) {
			if err := s.checkGuide(ctx, q, *next.GuideID, a.ID, next.StartDate, next.EndDate); err != nil {
				return err
			}
		}

		if next.Cancelled && !a.Cancelled {
			if customers, err = s.repos.Users.CustomersOf(ctx, q, a.ID); err != nil {
				return persistence("load customers", err)
			}
		}
		if err := s.repos.Arrangements.Update(ctx, q, &next); err != nil {
			return persistence("update arrangement", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Cancelled arrangements are rejected above, so this is the transition.
	if out.Cancelled {
		metrics.ArrangementsCancelledTotal.Inc()
	}
	for _, c := range customers {
		s.notifier.ArrangementCancelled(ctx, c, out)
	}
	return &out, nil
}

// Delete removes an arrangement created by the caller after collecting
// the customers to notify. Reservations are removed in the same
// transaction.
func (s *ArrangementService) Delete(ctx context.Context, caller model.User, id uint64) error {
	if !caller.HasRole(model.RoleAdmin) {
		return ErrRoleNotAllowed
	}
	var (
		a         *model.Arrangement
		customers []model.User
	)
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		a, err = s.repos.Arrangements.GetForUpdate(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrArrangementNotFound) {
				return notFound("No such arrangement found.")
			}
			return persistence("load arrangement", err)
		}
		if a.CreatorID != caller.ID {
			return ErrNotCreator
		}
		if customers, err = s.repos.Users.CustomersOf(ctx, q, a.ID); err != nil {
			return persistence("load customers", err)
		}
		if _, err := s.repos.Reservations.DeleteByArrangement(ctx, q, a.ID); err != nil {
			return persistence("delete reservations", err)
		}
		if err := s.repos.Arrangements.Delete(ctx, q, a.ID); err != nil {
			return persistence("delete arrangement", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range customers {
		s.notifier.ArrangementCancelled(ctx, c, *a)
	}
	return nil
}

// ListOwn returns arrangements created by an admin or assigned to a guide.
func (s *ArrangementService) ListOwn(ctx context.Context, caller model.User) ([]model.Arrangement, error) {
	var (
		out []model.Arrangement
		err error
	)
	switch caller.Role() {
	case model.RoleAdmin:
		out, err = s.repos.Arrangements.ListByCreator(ctx, s.store.Conn(), caller.ID)
	case model.RoleGuide:
		out, err = s.repos.Arrangements.ListByGuide(ctx, s.store.Conn(), caller.ID)
	default:
		return nil, ErrRoleNotAllowed
	}
	if err != nil {
		return nil, persistence("list arrangements", err)
	}
	return out, nil
}

// ListAvailable returns arrangements a tourist can still book: more than
// the edit window away, not cancelled, not already reserved by them.
func (s *ArrangementService) ListAvailable(ctx context.Context, caller model.User) ([]model.Arrangement, error) {
	if !caller.HasRole(model.RoleTourist) {
		return nil, ErrRoleNotAllowed
	}
	cutoff := model.Day(s.opts.Clock()).AddDate(0, 0, model.EditWindowDays)
	out, err := s.repos.Arrangements.ListAvailable(ctx, s.store.Conn(), caller.ID, cutoff)
	if err != nil {
		return nil, persistence("list arrangements", err)
	}
	return out, nil
}
