package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/utils"
	"github.com/iliyamo/tour-booking/internal/validation"
)

// TokenRevoker revokes refresh tokens; password resets end every session.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AccountOptions configures password hashing and reset tokens.
type AccountOptions struct {
	Secret     string
	ResetTTL   time.Duration
	BcryptCost int
}

// UserService manages accounts, account types and credentials.
type UserService struct {
	store    Store
	repos    Repos
	notifier Notifier
	tokens   TokenRevoker
	requests *ChangeRequestService
	opts     Options
	acct     AccountOptions
}

func NewUserService(store Store, repos Repos, n Notifier, tokens TokenRevoker, acct AccountOptions, opts Options) *UserService {
	if acct.BcryptCost == 0 {
		acct.BcryptCost = 12
	}
	if acct.ResetTTL <= 0 {
		acct.ResetTTL = 30 * time.Minute
	}
	return &UserService{
		store:    store,
		repos:    repos,
		notifier: n,
		tokens:   tokens,
		requests: NewChangeRequestService(store, repos, n, opts),
		opts:     opts.withDefaults(),
		acct:     acct,
	}
}

// Registration is the input of Register and AdminCreate.
type Registration struct {
	Email      string
	Username   string
	FirstName  string
	LastName   string
	Password   string
	WantedType *string
	Comment    *string
	// Types is honoured for admin creation only.
	Types []string
}

// ProfileUpdate carries the fields to change; nil means keep.
type ProfileUpdate struct {
	Email     *string
	Username  *string
	FirstName *string
	LastName  *string
	Password  *string
	// Types is honoured for admin updates only.
	Types []string
}

func checkLen(f fieldErrors, field, v string, lo, hi int) {
	if n := utf8.RuneCountInString(v); n < lo || n > hi {
		f.add(field, "Length must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi)+".")
	}
}

func validateProfile(u model.User, password *string) error {
	f := fieldErrors{}
	checkLen(f, "username", u.Username, 5, 32)
	checkLen(f, "email", u.Email, 5, 64)
	if _, ok := f["email"]; !ok && !validation.Var(u.Email, "email") {
		f.add("email", "Not a valid email address.")
	}
	checkLen(f, "first_name", u.FirstName, 1, 32)
	checkLen(f, "last_name", u.LastName, 1, 32)
	if password != nil {
		checkLen(f, "password", *password, 8, 256)
	}
	return f.err()
}

func (s *UserService) hash(plain string) (string, error) {
	h, err := utils.HashPassword(plain, s.acct.BcryptCost)
	if err != nil {
		return "", persistence("hash password", err)
	}
	return h, nil
}

// resolveTypes maps names to stored account types.
func (s *UserService) resolveTypes(ctx context.Context, q repository.DBTX, names []string) ([]model.AccountType, error) {
	out := make([]model.AccountType, 0, len(names))
	seen := map[uint8]bool{}
	for _, name := range names {
		t, err := s.repos.AccountTypes.GetByName(ctx, q, name)
		if err != nil {
			if errors.Is(err, repository.ErrAccountTypeNotFound) {
				return nil, &Error{Kind: KindValidation, Fields: map[string][]string{"account_types": {"Unknown account type " + name + "."}}}
			}
			return nil, persistence("load account type", err)
		}
		if !seen[t.ID] {
			seen[t.ID] = true
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *UserService) create(ctx context.Context, in Registration, types []string, wanted *string) (*model.User, *model.AccountTypeChangeRequest, error) {
	u := model.User{
		Email:     strings.TrimSpace(in.Email),
		Username:  strings.TrimSpace(in.Username),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
	if err := validateProfile(u, &in.Password); err != nil {
		return nil, nil, err
	}
	h, err := s.hash(in.Password)
	if err != nil {
		return nil, nil, err
	}
	u.PasswordHash = h

	var req *model.AccountTypeChangeRequest
	err = s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		if u.AccountTypes, err = s.resolveTypes(ctx, q, types); err != nil {
			return err
		}
		if err := s.repos.Users.Create(ctx, q, &u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrUserExists
			}
			return persistence("create user", err)
		}
		if wanted != nil && strings.TrimSpace(*wanted) != "" {
			req, err = s.requests.file(ctx, q, u.ID, u.Role(), *wanted, in.Comment)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &u, req, nil
}

// Register creates a TOURIST account. A wanted type files a change
// request in the same transaction.
func (s *UserService) Register(ctx context.Context, in Registration) (*model.User, *model.AccountTypeChangeRequest, error) {
	u, req, err := s.create(ctx, in, []string{string(model.RoleTourist)}, in.WantedType)
	if err != nil {
		return nil, nil, err
	}
	s.notifier.Registered(ctx, *u)
	return u, req, nil
}

// AdminCreate creates an account holding in.Types, TOURIST when empty.
func (s *UserService) AdminCreate(ctx context.Context, admin model.User, in Registration) (*model.User, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	types := in.Types
	if len(types) == 0 {
		types = []string{string(model.RoleTourist)}
	}
	u, _, err := s.create(ctx, in, types, nil)
	if err != nil {
		return nil, err
	}
	s.notifier.Registered(ctx, *u)
	return u, nil
}

// Authenticate checks credentials by username.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.repos.Users.GetByUsername(ctx, s.store.Conn(), username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, persistence("load user", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Load returns a user by id; it backs the caller resolution middleware.
func (s *UserService) Load(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.repos.Users.GetByID(ctx, s.store.Conn(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound("No such user found.")
		}
		return nil, persistence("load user", err)
	}
	return u, nil
}

// Get returns a user to an admin or to the user themselves.
func (s *UserService) Get(ctx context.Context, caller model.User, id uint64) (*model.User, error) {
	if caller.ID != id && !caller.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	return s.Load(ctx, id)
}

// List returns one page of users. Admin only.
func (s *UserService) List(ctx context.Context, admin model.User, f repository.UserQuery) ([]model.User, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	if err := checkPage(f.Page); err != nil {
		return nil, err
	}
	f.PageSize = s.opts.PageSize
	out, err := s.repos.Users.List(ctx, s.store.Conn(), f)
	if err != nil {
		return nil, persistence("list users", err)
	}
	return out, nil
}

func (s *UserService) update(ctx context.Context, id uint64, in ProfileUpdate, allowTypes bool) (*model.User, error) {
	var out *model.User
	passwordChanged := false
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		u, err := s.repos.Users.GetByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return notFound("No such user found.")
			}
			return persistence("load user", err)
		}
		if in.Email != nil {
			u.Email = strings.TrimSpace(*in.Email)
		}
		if in.Username != nil {
			u.Username = strings.TrimSpace(*in.Username)
		}
		if in.FirstName != nil {
			u.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			u.LastName = strings.TrimSpace(*in.LastName)
		}
		if err := validateProfile(*u, in.Password); err != nil {
			return err
		}
		if in.Password != nil {
			if u.PasswordHash, err = s.hash(*in.Password); err != nil {
				return err
			}
			passwordChanged = true
		}
		if err := s.repos.Users.Update(ctx, q, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrUserExists
			}
			return persistence("update user", err)
		}
		if allowTypes && len(in.Types) > 0 {
			types, err := s.resolveTypes(ctx, q, in.Types)
			if err != nil {
				return err
			}
			ids := make([]uint8, 0, len(types))
			for _, t := range types {
				ids = append(ids, t.ID)
			}
			if err := s.repos.Users.SetAccountTypes(ctx, q, u.ID, ids); err != nil {
				return persistence("set account types", err)
			}
			u.AccountTypes = types
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if passwordChanged {
		s.notifier.PasswordChanged(ctx, *out)
	}
	return out, nil
}

// UpdateSelf changes the caller's own profile.
func (s *UserService) UpdateSelf(ctx context.Context, caller model.User, in ProfileUpdate) (*model.User, error) {
	return s.update(ctx, caller.ID, in, false)
}

// AdminUpdate changes any profile and optionally the account types.
func (s *UserService) AdminUpdate(ctx context.Context, admin model.User, id uint64, in ProfileUpdate) (*model.User, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	return s.update(ctx, id, in, true)
}

// Delete removes a user. Callers delete themselves; admins anyone. Users
// who created arrangements must hand them off or delete them first.
func (s *UserService) Delete(ctx context.Context, caller model.User, id uint64) error {
	if caller.ID != id && !caller.HasRole(model.RoleAdmin) {
		return ErrRoleNotAllowed
	}
	return s.store.WithTx(ctx, func(q repository.DBTX) error {
		n, err := s.repos.Arrangements.CountByCreator(ctx, q, id)
		if err != nil {
			return persistence("count arrangements", err)
		}
		if n > 0 {
			return ErrOwnsArrangements
		}
		if err := s.repos.Users.Delete(ctx, q, id); err != nil {
			switch {
			case errors.Is(err, repository.ErrUserNotFound):
				return notFound("No such user found.")
			case errors.Is(err, repository.ErrInUse):
				return ErrOwnsArrangements
			}
			return persistence("delete user", err)
		}
		return nil
	})
}

// FreeGuides lists guides with no non-cancelled arrangement overlapping
// [start, end]. Admin only.
func (s *UserService) FreeGuides(ctx context.Context, admin model.User, start, end time.Time) ([]model.User, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	if model.Day(end).Before(model.Day(start)) {
		return nil, &Error{Kind: KindValidation, Fields: map[string][]string{"end_date": {"End date must not be before start date."}}}
	}
	out, err := s.repos.Users.FreeGuides(ctx, s.store.Conn(), start, end)
	if err != nil {
		return nil, persistence("list free guides", err)
	}
	return out, nil
}

// ListTypes returns every account type.
func (s *UserService) ListTypes(ctx context.Context) ([]model.AccountType, error) {
	out, err := s.repos.AccountTypes.List(ctx, s.store.Conn())
	if err != nil {
		return nil, persistence("list account types", err)
	}
	return out, nil
}

func (s *UserService) GetType(ctx context.Context, id uint8) (*model.AccountType, error) {
	t, err := s.repos.AccountTypes.GetByID(ctx, s.store.Conn(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountTypeNotFound) {
			return nil, notFound("No such account type found.")
		}
		return nil, persistence("load account type", err)
	}
	return t, nil
}

func checkTypeName(name string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n < 1 || n > 32 {
		return &Error{Kind: KindValidation, Fields: map[string][]string{"name": {"Length must be between 1 and 32."}}}
	}
	return nil
}

// CreateType adds a custom account type. Admin only.
func (s *UserService) CreateType(ctx context.Context, admin model.User, name string) (*model.AccountType, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	if err := checkTypeName(name); err != nil {
		return nil, err
	}
	t := model.AccountType{Name: name}
	if err := s.repos.AccountTypes.Create(ctx, s.store.Conn(), &t); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrTypeExists
		}
		return nil, persistence("create account type", err)
	}
	return &t, nil
}

// RenameType renames a custom account type. Built-in types are fixed
// and no type may be renamed to a built-in name.
func (s *UserService) RenameType(ctx context.Context, admin model.User, id uint8, name string) (*model.AccountType, error) {
	if !admin.HasRole(model.RoleAdmin) {
		return nil, ErrRoleNotAllowed
	}
	if err := checkTypeName(name); err != nil {
		return nil, err
	}
	var out *model.AccountType
	err := s.store.WithTx(ctx, func(q repository.DBTX) error {
		t, err := s.repos.AccountTypes.GetByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrAccountTypeNotFound) {
				return notFound("No such account type found.")
			}
			return persistence("load account type", err)
		}
		if model.IsBuiltin(t.Name) {
			return ErrBuiltinType
		}
		if model.IsBuiltin(name) {
			return ErrTypeExists
		}
		if err := s.repos.AccountTypes.Rename(ctx, q, id, name); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrTypeExists
			}
			return persistence("rename account type", err)
		}
		out, err = s.repos.AccountTypes.GetByID(ctx, q, id)
		if err != nil {
			return persistence("load account type", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteType removes an unused custom account type.
func (s *UserService) DeleteType(ctx context.Context, admin model.User, id uint8) error {
	if !admin.HasRole(model.RoleAdmin) {
		return ErrRoleNotAllowed
	}
	return s.store.WithTx(ctx, func(q repository.DBTX) error {
		t, err := s.repos.AccountTypes.GetByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrAccountTypeNotFound) {
				return notFound("No such account type found.")
			}
			return persistence("load account type", err)
		}
		if model.IsBuiltin(t.Name) {
			return ErrBuiltinType
		}
		if err := s.repos.AccountTypes.Delete(ctx, q, id); err != nil {
			if errors.Is(err, repository.ErrInUse) {
				return ErrTypeInUse
			}
			return persistence("delete account type", err)
		}
		return nil
	})
}

// RequestPasswordReset emails a reset token when the address is known.
// Unknown addresses are ignored so the endpoint does not reveal accounts.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.repos.Users.GetByEmail(ctx, s.store.Conn(), email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logging.Ctx(ctx).Debug().Msg("password reset for unknown email")
			return nil
		}
		return persistence("load user", err)
	}
	tok, err := utils.NewResetToken(s.acct.Secret, u.ID, u.PasswordHash, s.acct.ResetTTL)
	if err != nil {
		return persistence("sign reset token", err)
	}
	s.notifier.PasswordResetRequested(ctx, *u, tok)
	return nil
}

// ResetPassword sets a new password from a reset token. The token is
// bound to the old hash, so it works once.
func (s *UserService) ResetPassword(ctx context.Context, token, password, password1 string) error {
	f := fieldErrors{}
	checkLen(f, "password", password, 8, 256)
	if password != password1 {
		f.add("password1", "Passwords do not match.")
	}
	if err := f.err(); err != nil {
		return err
	}
	id, fp, err := utils.ParseResetToken(s.acct.Secret, token)
	if err != nil {
		return ErrInvalidResetToken
	}
	h, err := s.hash(password)
	if err != nil {
		return err
	}
	var u *model.User
	err = s.store.WithTx(ctx, func(q repository.DBTX) error {
		var err error
		u, err = s.repos.Users.GetByID(ctx, q, id)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrInvalidResetToken
			}
			return persistence("load user", err)
		}
		if utils.PasswordFingerprint(u.PasswordHash) != fp {
			return ErrInvalidResetToken
		}
		u.PasswordHash = h
		if err := s.repos.Users.Update(ctx, q, u); err != nil {
			return persistence("update password", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.tokens != nil {
		if err := s.tokens.RevokeAllForUser(ctx, u.ID); err != nil {
			logging.Ctx(ctx).Error().Err(err).Uint64("user_id", u.ID).Msg("revoke sessions after password reset")
		}
	}
	s.notifier.PasswordChanged(ctx, *u)
	return nil
}
