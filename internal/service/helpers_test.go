package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/utils"
)

var testNow = time.Date(2026, time.March, 1, 10, 30, 0, 0, time.UTC)

const testSecret = "service-test-secret"

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memStore
	notes   *recordingNotifier
	revoked *revokeRecorder

	reservations *ReservationService
	arrangements *ArrangementService
	requests     *ChangeRequestService
	users        *UserService

	admin   model.User
	guide   model.User
	tourist model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	notes := &recordingNotifier{}
	revoked := &revokeRecorder{}
	opts := Options{PageSize: 10, Clock: func() time.Time { return testNow }}
	repos := store.repos()
	f := &fixture{
		t:            t,
		ctx:          context.Background(),
		store:        store,
		notes:        notes,
		revoked:      revoked,
		reservations: NewReservationService(store, repos, notes, opts),
		arrangements: NewArrangementService(store, repos, notes, opts),
		requests:     NewChangeRequestService(store, repos, notes, opts),
		users: NewUserService(store, repos, notes, revoked,
			AccountOptions{Secret: testSecret, ResetTTL: time.Hour, BcryptCost: 4}, opts),
	}
	f.admin = f.addUser("admin", model.RoleAdmin)
	f.guide = f.addUser("guide", model.RoleGuide)
	f.tourist = f.addUser("tourist", model.RoleTourist)
	return f
}

// addUser stores a user holding role with password "password123".
func (f *fixture) addUser(name string, role model.Role) model.User {
	f.t.Helper()
	hash, err := utils.HashPassword("password123", 4)
	require.NoError(f.t, err)
	u := model.User{
		Email:        name + "@example.com",
		Username:     name,
		FirstName:    "First",
		LastName:     "Last",
		PasswordHash: hash,
	}
	if role != model.RoleNone {
		typ, err := memTypes{f.store}.GetByName(f.ctx, nil, string(role))
		require.NoError(f.t, err)
		u.AccountTypes = []model.AccountType{*typ}
	}
	require.NoError(f.t, memUsers{f.store}.Create(f.ctx, nil, &u))
	return u
}

func (f *fixture) addTourist(n int) model.User {
	return f.addUser(fmt.Sprintf("tourist%02d", n), model.RoleTourist)
}

// day returns the date n days after testNow.
func day(n int) time.Time { return model.Day(testNow).AddDate(0, 0, n) }

// addArrangement stores an arrangement created by the fixture admin that
// starts in startIn days and lasts four days.
func (f *fixture) addArrangement(seats, startIn int) model.Arrangement {
	f.t.Helper()
	a, err := f.arrangements.Create(f.ctx, f.admin, ArrangementInput{
		StartDate:     day(startIn),
		EndDate:       day(startIn + 4),
		Description:   "Walking tour of the old town",
		Destination:   "Lisbon, Portugal",
		NumberOfSeats: seats,
		Price:         100,
	})
	require.NoError(f.t, err)
	return *a
}

func (f *fixture) reserve(u model.User, arrangementID uint64, seats int) {
	f.t.Helper()
	_, err := f.reservations.Create(f.ctx, u, nil, arrangementID, seats)
	require.NoError(f.t, err)
}

func (f *fixture) seatsAvailable(id uint64) int {
	f.t.Helper()
	a, err := f.arrangements.Get(f.ctx, id)
	require.NoError(f.t, err)
	return a.SeatsAvailable
}

func ptr[T any](v T) *T { return &v }
