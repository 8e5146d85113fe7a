package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// ChangeRequestService runs the account type change workflow: users file
// requests for a higher role and admins adjudicate them.
type ChangeRequestService struct {
	store    Store
	repos    Repos
	notifier Notifier
	opts     Options
}

func NewChangeRequestService(store Store, repos Repos, n Notifier, opts Options) *ChangeRequestService {
	return &ChangeRequestService{store: store, repos: repos, notifier: n, opts: opts.withDefaults()}
}

var errInvalidWantedType = &Error{Kind: KindValidation, Fields: map[string][]string{"wanted_type": {"Invalid account wanted type."}}}

// file validates the transition from current to wanted and stores the
// request on q. Registration reuses it inside its own transaction.
func (s *ChangeRequestService) file(ctx context.Context, q repository.DBTX, userID uint64, current model.Role, wanted string, comment *string) (*model.AccountTypeChangeRequest, error) {
	target, ok := model.ParseRole(wanted)
	if !ok || !current.CanRequest(target) {
		return nil, errInvalidWantedType
	}
	t, err := s.repos.AccountTypes.GetByName(ctx, q, string(target))
	if err != nil {
		if errors.Is(err, repository.ErrAccountTypeNotFound) {
			return nil, notFound("No such account type found.")
		}
		return nil, persistence("load account type", err)
	}
	c := &model.AccountTypeChangeRequest{
		UserID:       userID,
		WantedTypeID: t.ID,
		WantedType:   t.Name,
		FilingDate:   s.opts.Clock(),
		Comment:      comment,
	}
	if err := s.repos.ChangeRequests.Create(ctx, q, c); err != nil {
		return nil, persistence("create change request", err)
	}
	return c, nil
}

// File records a request by the caller for the wanted account type.
func (s *ChangeRequestService) File(ctx context.Context, caller model.User, wanted string, comment *string) (*model.AccountTypeChangeRequest, error) {
	if comment != nil && utf8.RuneCountInString(*comment) > 1024 {
		return nil, &Error{Kind: KindValidation, Fields: map[string][]string{"comment": {"Comment must be at most 1024 characters long."}}}
	}
	var out *model.AccountTypeChangeRequest
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		out, err = s.file(ctx, q, caller.ID, caller.Role(), wanted, comment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns one page of requests: all of them for admins, the
// caller's own otherwise.
func (s *ChangeRequestService) List(ctx context.Context, caller model.User, page int, sort string) ([]model.AccountTypeChangeRequest, error) {
	if err := checkPage(page); err != nil {
		return nil, err
	}
	var (
		out []model.AccountTypeChangeRequest
		err error
	)
	if caller.HasRole(model.RoleAdmin) {
		out, err = s.repos.ChangeRequests.List(ctx, s.store.Conn(), sort, page, s.opts.PageSize)
	} else {
		out, err = s.repos.ChangeRequests.ListByUser(ctx, s.store.Conn(), caller.ID, sort, page, s.opts.PageSize)
	}
	if err != nil {
		return nil, persistence("list change requests", err)
	}
	return out, nil
}

// ListOwn returns the first page of the caller's own requests.
func (s *ChangeRequestService) ListOwn(ctx context.Context, caller model.User, page int) ([]model.AccountTypeChangeRequest, error) {
	if err := checkPage(page); err != nil {
		return nil, err
	}
	out, err := s.repos.ChangeRequests.ListByUser(ctx, s.store.Conn(), caller.ID, "", page, s.opts.PageSize)
	if err != nil {
		return nil, persistence("list change requests", err)
	}
	return out, nil
}

// Get returns a request visible to the caller. Requests of other users
// look absent to non-admins.
func (s *ChangeRequestService) Get(ctx context.Context, caller model.User, id uint64) (*model.AccountTypeChangeRequest, error) {
	c, err := s.repos.ChangeRequests.GetByID(ctx, s.store.Conn(), id)
	if err != nil {
		if errors.Is(err, repository.ErrChangeRequestNotFound) {
			return nil, notFound("No such request found.")
		}
		return nil, persistence("load change request", err)
	}
	if c.UserID != caller.ID && !caller.HasRole(model.RoleAdmin) {
		return nil, notFound("No such request found.")
	}
	return c, nil
}

// Adjudicate records the admin's decision and notifies the filer. A
// granted request replaces the filer's account types with the wanted
// one. Deciding an already decided request overwrites the previous
// decision.
func (s *ChangeRequestService) Adjudicate(ctx context.Context, admin model.User, id uint64, granted bool, comment string) (*model.AccountTypeChangeRequest, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	comment = strings.TrimSpace(comment)
	if n := utf8.RuneCountInString(comment); n < 5 || n > 1024 {
		return nil, &Error{Kind: KindValidation, Fields: map[string][]string{"comment": {"Comment must be between 5 and 1024 characters long."}}}
	}
	var (
		out   *model.AccountTypeChangeRequest
		filer *model.User
	)
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		out, err = s.repos.ChangeRequests.GetForUpdate(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrChangeRequestNotFound) {
				return notFound("No such request found.")
			}
			return persistence("load change request", err)
		}
		if out.Decided() {
			logging.Ctx(ctx).Warn().Uint64("request_id", id).Bool("previous", *out.Granted).Bool("granted", granted).
				Msg("overwriting decided account type change request")
		}
		now := s.opts.Clock()
		adminID := admin.ID
		out.Granted = &granted
		out.Comment = &comment
		out.ConfirmationDate = &now
		out.AdminConfirmedID = &adminID
		if err := s.repos.ChangeRequests.Decide(ctx, q, out); err != nil {
			return persistence("decide change request", err)
		}
		if filer, err = s.repos.Users.GetByID(ctx, q, out.UserID); err != nil {
			return persistence("load filer", err)
		}
		if granted {
			if err := s.repos.Users.SetAccountTypes(ctx, q, filer.ID, []uint8{out.WantedTypeID}); err != nil {
				return persistence("grant account type", err)
			}
			filer.AccountTypes = []model.AccountType{{ID: out.WantedTypeID, Name: out.WantedType}}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.ChangeRequestDecided(ctx, *filer, *out)
	return out, nil
}
