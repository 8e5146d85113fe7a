// Package service holds the booking core: reservations, the arrangement
// lifecycle, the account type change workflow and account management.
// Services depend on the narrow interfaces below; the MySQL repositories
// satisfy them in production.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// Store runs work against the database, either standalone through Conn
// or atomically through WithTx.
type Store interface {
	Conn() repository.DBTX
	WithTx(ctx context.Context, fn func(q repository.DBTX) error) error
}

type ArrangementRepository interface {
	Create(ctx context.Context, q repository.DBTX, a *model.Arrangement) error
	GetByID(ctx context.Context, q repository.DBTX, id uint64) (*model.Arrangement, error)
	GetForUpdate(ctx context.Context, q repository.DBTX, id uint64) (*model.Arrangement, error)
	Update(ctx context.Context, q repository.DBTX, a *model.Arrangement) error
	Delete(ctx context.Context, q repository.DBTX, id uint64) error
	List(ctx context.Context, q repository.DBTX, f repository.ArrangementQuery) ([]model.Arrangement, error)
	ListByCreator(ctx context.Context, q repository.DBTX, creatorID uint64) ([]model.Arrangement, error)
	ListByGuide(ctx context.Context, q repository.DBTX, guideID uint64) ([]model.Arrangement, error)
	ListAvailable(ctx context.Context, q repository.DBTX, customerID uint64, after time.Time) ([]model.Arrangement, error)
	GuideBusy(ctx context.Context, q repository.DBTX, guideID, excludeID uint64, day time.Time) (bool, error)
	CountByCreator(ctx context.Context, q repository.DBTX, creatorID uint64) (int, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, q repository.DBTX, r *model.Reservation) error
	GetForUpdate(ctx context.Context, q repository.DBTX, customerID, arrangementID uint64) (*model.Reservation, error)
	UpdateSeats(ctx context.Context, q repository.DBTX, customerID, arrangementID uint64, seats int) error
	Delete(ctx context.Context, q repository.DBTX, customerID, arrangementID uint64) error
	DeleteByArrangement(ctx context.Context, q repository.DBTX, arrangementID uint64) (int64, error)
	SumSeats(ctx context.Context, q repository.DBTX, arrangementID, excludeCustomerID uint64) (int, error)
	ListByCustomer(ctx context.Context, q repository.DBTX, customerID uint64) ([]model.Reservation, error)
	List(ctx context.Context, q repository.DBTX, page, pageSize int) ([]model.Reservation, error)
}

type UserRepository interface {
	Create(ctx context.Context, q repository.DBTX, u *model.User) error
	GetByID(ctx context.Context, q repository.DBTX, id uint64) (*model.User, error)
	GetByUsername(ctx context.Context, q repository.DBTX, username string) (*model.User, error)
	GetByEmail(ctx context.Context, q repository.DBTX, email string) (*model.User, error)
	List(ctx context.Context, q repository.DBTX, f repository.UserQuery) ([]model.User, error)
	Update(ctx context.Context, q repository.DBTX, u *model.User) error
	SetAccountTypes(ctx context.Context, q repository.DBTX, userID uint64, typeIDs []uint8) error
	Delete(ctx context.Context, q repository.DBTX, id uint64) error
	CustomersOf(ctx context.Context, q repository.DBTX, arrangementID uint64) ([]model.User, error)
	FreeGuides(ctx context.Context, q repository.DBTX, start, end time.Time) ([]model.User, error)
}

type AccountTypeRepository interface {
	List(ctx context.Context, q repository.DBTX) ([]model.AccountType, error)
	GetByID(ctx context.Context, q repository.DBTX, id uint8) (*model.AccountType, error)
	GetByName(ctx context.Context, q repository.DBTX, name string) (*model.AccountType, error)
	Create(ctx context.Context, q repository.DBTX, t *model.AccountType) error
	Rename(ctx context.Context, q repository.DBTX, id uint8, name string) error
	Delete(ctx context.Context, q repository.DBTX, id uint8) error
}

type ChangeRequestRepository interface {
	Create(ctx context.Context, q repository.DBTX, c *model.AccountTypeChangeRequest) error
	GetByID(ctx context.Context, q repository.DBTX, id uint64) (*model.AccountTypeChangeRequest, error)
	GetForUpdate(ctx context.Context, q repository.DBTX, id uint64) (*model.AccountTypeChangeRequest, error)
	List(ctx context.Context, q repository.DBTX, sort string, page, pageSize int) ([]model.AccountTypeChangeRequest, error)
	ListByUser(ctx context.Context, q repository.DBTX, userID uint64, sort string, page, pageSize int) ([]model.AccountTypeChangeRequest, error)
	Decide(ctx context.Context, q repository.DBTX, c *model.AccountTypeChangeRequest) error
}

// Notifier is the outbound notification port. Calls are fire-and-forget:
// implementations must not block on delivery and report failures through
// their own logging.
type Notifier interface {
	Registered(ctx context.Context, u model.User)
	ReservationCreated(ctx context.Context, customer model.User, r model.Reservation)
	ReservationChanged(ctx context.Context, customer model.User, r model.Reservation)
	ReservationCancelled(ctx context.Context, customer model.User, r model.Reservation)
	ArrangementCancelled(ctx context.Context, customer model.User, a model.Arrangement)
	ChangeRequestDecided(ctx context.Context, u model.User, c model.AccountTypeChangeRequest)
	PasswordResetRequested(ctx context.Context, u model.User, token string)
	PasswordChanged(ctx context.Context, u model.User)
}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// Repos bundles the repositories a service set needs.
type Repos struct {
	Arrangements   ArrangementRepository
	Reservations   ReservationRepository
	Users          UserRepository
	AccountTypes   AccountTypeRepository
	ChangeRequests ChangeRequestRepository
}

// Options carries configuration shared by all services.
type Options struct {
	PageSize int
	Clock    Clock
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 20
	}
	if o.Clock == nil {
		o.Clock = systemClock
	}
	return o
}

func checkPage(page int) error {
	if page <= 0 {
		return invalid("Page number must be greater than 0.")
	}
	return nil
}
