package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/service"
	"github.com/iliyamo/tour-booking/internal/utils"
	"github.com/iliyamo/tour-booking/internal/validation"
)

const secret = "handler-secret"

var (
	admin   = model.User{ID: 1, Username: "admin", AccountTypes: []model.AccountType{{ID: 1, Name: "ADMIN"}}}
	tourist = model.User{ID: 3, Username: "tina", Email: "tina@example.org", AccountTypes: []model.AccountType{{ID: 3, Name: "TOURIST"}}}
)

type stubLoader map[uint64]model.User

func (s stubLoader) Load(_ context.Context, id uint64) (*model.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, &service.Error{Kind: service.KindNotFound, Msg: "No such user found."}
	}
	return &u, nil
}

var loader = stubLoader{admin.ID: admin, tourist.ID: tourist}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validation.Echo{}
	return e
}

func bearerFor(t *testing.T, u model.User) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, u.ID, string(u.Role()), 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func do(e *echo.Echo, method, target, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    any
	}{
		{"conflict", service.ErrCapacityExceeded, http.StatusConflict, "There is not that much seats left."},
		{"forbidden", service.ErrEditWindowClosed, http.StatusForbidden, service.ErrEditWindowClosed.Msg},
		{"not found", &service.Error{Kind: service.KindNotFound, Msg: "No such arrangement found."}, http.StatusNotFound, "No such arrangement found."},
		{"fields", &service.Error{Kind: service.KindValidation, Fields: map[string][]string{"seats": {"Must be positive."}}}, http.StatusBadRequest, map[string]any{"seats": []any{"Must be positive."}}},
		{"persistence", &service.Error{Kind: service.KindPersistence, Msg: "insert", Err: errors.New("deadlock")}, http.StatusInternalServerError, "Internal error."},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Internal error."},
		{"http error", echo.NewHTTPError(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEcho()
			e.GET("/x", func(c echo.Context) error { return respondError(c, tc.err) })
			rec := do(e, http.MethodGet, "/x", "", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, decode(t, rec)["msg"])
		})
	}
}

func TestPageParam(t *testing.T) {
	p, err := pageParam("")
	require.NoError(t, err)
	assert.Equal(t, 1, p)

	p, err = pageParam("4")
	require.NoError(t, err)
	assert.Equal(t, 4, p)

	_, err = pageParam("zero")
	assert.Equal(t, service.KindValidation, service.KindOf(err))
}

// ----- arrangements -----

type fakeArrangements struct {
	ArrangementService
	list    []model.Arrangement
	filter  service.ArrangementFilter
	patch   service.ArrangementPatch
	updated *model.Arrangement
}

func (f *fakeArrangements) List(_ context.Context, flt service.ArrangementFilter) ([]model.Arrangement, error) {
	f.filter = flt
	return f.list, nil
}

func (f *fakeArrangements) Update(_ context.Context, _ model.User, id uint64, p service.ArrangementPatch) (*model.Arrangement, error) {
	f.patch = p
	if f.updated == nil {
		return nil, service.ErrNotCreator
	}
	return f.updated, nil
}

func arrangementServer(f *fakeArrangements) *echo.Echo {
	e := newEcho()
	h := NewArrangementHandler(f)
	e.GET("/arrangements", h.List, middleware.OptionalAuth(secret), middleware.LoadCaller(loader))
	e.PUT("/arrangements/:id", h.Update, middleware.JWTAuth(secret), middleware.LoadCaller(loader))
	return e
}

var lisbon = model.Arrangement{
	ID: 9, Destination: "Lisbon", Description: "Old town walk", NumberOfSeats: 20, SeatsAvailable: 12, Price: 99.5,
	StartDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC), CreatorID: 1,
}

func TestArrangementListGuestGetsReducedView(t *testing.T) {
	f := &fakeArrangements{list: []model.Arrangement{lisbon}}
	e := arrangementServer(f)

	rec := do(e, http.MethodGet, "/arrangements?page=2&dest=lis&start-date=2026-11-01&sort=price-a", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var guest []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &guest))
	require.Len(t, guest, 1)
	assert.Equal(t, "Lisbon", guest[0]["destination"])
	assert.Equal(t, "2026-12-01", guest[0]["start_date"])
	assert.NotContains(t, guest[0], "description")
	assert.NotContains(t, guest[0], "seats_available")

	assert.Equal(t, 2, f.filter.Page)
	assert.Equal(t, "lis", f.filter.Destination)
	assert.Equal(t, "price-a", f.filter.Sort)
	require.NotNil(t, f.filter.From)
	assert.Nil(t, f.filter.To)

	rec = do(e, http.MethodGet, "/arrangements", bearerFor(t, tourist), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var full []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Equal(t, "Old town walk", full[0]["description"])
	assert.EqualValues(t, 12, full[0]["seats_available"])
}

func TestArrangementListRejectsBadDate(t *testing.T) {
	e := arrangementServer(&fakeArrangements{})
	rec := do(e, http.MethodGet, "/arrangements?end-date=12/01/2026", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArrangementUpdateParsesPatch(t *testing.T) {
	updated := lisbon
	updated.Cancelled = true
	f := &fakeArrangements{updated: &updated}
	e := arrangementServer(f)

	rec := do(e, http.MethodPut, "/arrangements/9", bearerFor(t, admin), `{"cancelled":true,"start_date":"2026-12-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["cancelled"])
	require.NotNil(t, f.patch.Cancelled)
	assert.True(t, *f.patch.Cancelled)
	require.NotNil(t, f.patch.StartDate)
	assert.Equal(t, 2, f.patch.StartDate.Day())
	assert.Nil(t, f.patch.Description)

	f.updated = nil
	rec = do(e, http.MethodPut, "/arrangements/9", bearerFor(t, admin), `{"description":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ----- reservations -----

type fakeReservations struct {
	ReservationService
	update *service.SeatUpdate
}

func (f *fakeReservations) UpdateSeats(context.Context, model.User, uint64, *uint64, int) (*service.SeatUpdate, error) {
	return f.update, nil
}

func TestReservationUpdateAdvisory(t *testing.T) {
	r := model.Reservation{CustomerID: 3, ArrangementID: 9, SeatsNeeded: 2}
	f := &fakeReservations{update: &service.SeatUpdate{Reservation: r, Advice: "There is not that much seats left."}}
	e := newEcho()
	h := NewReservationHandler(f)
	e.PUT("/reservations/:arrangementId", h.Update, middleware.JWTAuth(secret), middleware.LoadCaller(loader))

	rec := do(e, http.MethodPut, "/reservations/9", bearerFor(t, tourist), `{"seats_needed":50}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "There is not that much seats left.", body["msg"])
	assert.EqualValues(t, 2, body["reservation"].(map[string]any)["seats_needed"])

	f.update = &service.SeatUpdate{Reservation: model.Reservation{CustomerID: 3, ArrangementID: 9, SeatsNeeded: 4}, Changed: true}
	rec = do(e, http.MethodPut, "/reservations/9", bearerFor(t, tourist), `{"seats_needed":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.NotContains(t, body, "msg")
	assert.EqualValues(t, 4, body["seats_needed"])
}

func TestReservationUpdateValidatesBody(t *testing.T) {
	e := newEcho()
	h := NewReservationHandler(&fakeReservations{})
	e.PUT("/reservations/:arrangementId", h.Update, middleware.JWTAuth(secret), middleware.LoadCaller(loader))

	rec := do(e, http.MethodPut, "/reservations/9", bearerFor(t, tourist), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodPut, "/reservations/abc", bearerFor(t, tourist), `{"seats_needed":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ----- auth -----

type fakeUsers struct {
	UserService
	resetCalls int
}

func (f *fakeUsers) Authenticate(_ context.Context, username, password string) (*model.User, error) {
	if username == tourist.Username && password == "correct horse" {
		u := tourist
		return &u, nil
	}
	return nil, service.ErrInvalidCredentials
}

func (f *fakeUsers) Load(ctx context.Context, id uint64) (*model.User, error) {
	return loader.Load(ctx, id)
}

func (f *fakeUsers) RequestPasswordReset(context.Context, string) error {
	f.resetCalls++
	return errors.New("smtp down")
}

type memTokens struct {
	live map[string]uint64
}

func (m *memTokens) StoreRefresh(_ context.Context, userID uint64, hash string, _ time.Time) error {
	m.live[hash] = userID
	return nil
}

func (m *memTokens) Consume(_ context.Context, hash string) (uint64, error) {
	id, ok := m.live[hash]
	if !ok {
		return 0, repository.ErrTokenInvalid
	}
	delete(m.live, hash)
	return id, nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	for h, id := range m.live {
		if id == userID {
			delete(m.live, h)
		}
	}
	return nil
}

func authServer() (*echo.Echo, *memTokens, *fakeUsers) {
	tokens := &memTokens{live: map[string]uint64{}}
	users := &fakeUsers{}
	h := NewAuthHandler(AuthConfig{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1}, users, tokens)
	e := newEcho()
	e.POST("/auth/login", h.Login)
	e.POST("/auth/refresh", h.Refresh)
	e.POST("/auth/logout", h.Logout, middleware.OptionalAuth(secret), middleware.LoadCaller(loader))
	e.POST("/auth/forgot-password", h.ForgotPassword)
	return e, tokens, users
}

func TestLoginAndRefreshRotation(t *testing.T) {
	e, tokens, _ := authServer()

	rec := do(e, http.MethodPost, "/auth/login", "", `{"username":"tina","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TOURIST", resp.User.Role)

	claims, err := utils.ParseAccessToken(secret, resp.Access.Token)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, tourist.ID, uid)
	require.Len(t, tokens.live, 1)

	old := resp.Refresh.Token
	rec = do(e, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+old+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, old, resp.Refresh.Token)
	assert.Len(t, tokens.live, 1)

	rec = do(e, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"`+old+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	e, tokens, _ := authServer()
	rec := do(e, http.MethodPost, "/auth/login", "", `{"username":"tina","password":"nope"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, tokens.live)

	rec = do(e, http.MethodPost, "/auth/login", "", `{"username":"tina"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutAllWithBearer(t *testing.T) {
	e, tokens, _ := authServer()
	do(e, http.MethodPost, "/auth/login", "", `{"username":"tina","password":"correct horse"}`)
	do(e, http.MethodPost, "/auth/login", "", `{"username":"tina","password":"correct horse"}`)
	require.Len(t, tokens.live, 2)

	rec := do(e, http.MethodPost, "/auth/logout", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/auth/logout", bearerFor(t, tourist), `{}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, tokens.live)
}

func TestForgotPasswordAlwaysOK(t *testing.T) {
	e, _, users := authServer()
	rec := do(e, http.MethodPost, "/auth/forgot-password", "", `{"email":"nobody@example.org"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, users.resetCalls)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := newEcho()
	e.GET("/ok", Health(pinger{}))
	e.GET("/down", Health(pinger{err: errors.New("gone")}))

	rec := do(e, http.MethodGet, "/ok", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(e, http.MethodGet, "/down", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
