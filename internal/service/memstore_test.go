package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// memStore is an in-memory stand-in for the MySQL repositories. WithTx
// serializes transactions and restores a snapshot when fn fails.
type memStore struct {
	mu sync.Mutex

	types        map[uint8]model.AccountType
	users        map[uint64]model.User
	arrangements map[uint64]model.Arrangement
	reservations map[resKey]model.Reservation
	requests     map[uint64]model.AccountTypeChangeRequest

	nextType uint8
	nextID   uint64
	seq      int
}

type resKey struct{ customer, arrangement uint64 }

func newMemStore() *memStore {
	m := &memStore{
		types:        map[uint8]model.AccountType{},
		users:        map[uint64]model.User{},
		arrangements: map[uint64]model.Arrangement{},
		reservations: map[resKey]model.Reservation{},
		requests:     map[uint64]model.AccountTypeChangeRequest{},
	}
	for _, name := range []string{"ADMIN", "GUIDE", "TOURIST"} {
		m.nextType++
		m.types[m.nextType] = model.AccountType{ID: m.nextType, Name: name}
	}
	return m
}

func (m *memStore) repos() Repos {
	return Repos{
		Arrangements:   memArrangements{m},
		Reservations:   memReservations{m},
		Users:          memUsers{m},
		AccountTypes:   memTypes{m},
		ChangeRequests: memRequests{m},
	}
}

func (m *memStore) Conn() repository.DBTX { return nil }

func (m *memStore) WithTx(ctx context.Context, fn func(q repository.DBTX) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(nil); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	types        map[uint8]model.AccountType
	users        map[uint64]model.User
	arrangements map[uint64]model.Arrangement
	reservations map[resKey]model.Reservation
	requests     map[uint64]model.AccountTypeChangeRequest
}

func cloneMap[K comparable, V any](in map[K]V, cp func(V) V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = cp(v)
	}
	return out
}

func same[V any](v V) V { return v }

func copyUser(u model.User) model.User {
	u.AccountTypes = append([]model.AccountType(nil), u.AccountTypes...)
	return u
}

func (m *memStore) snapshot() memSnapshot {
	return memSnapshot{
		types:        cloneMap(m.types, same[model.AccountType]),
		users:        cloneMap(m.users, copyUser),
		arrangements: cloneMap(m.arrangements, same[model.Arrangement]),
		reservations: cloneMap(m.reservations, same[model.Reservation]),
		requests:     cloneMap(m.requests, same[model.AccountTypeChangeRequest]),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.types, m.users, m.arrangements, m.reservations, m.requests = s.types, s.users, s.arrangements, s.reservations, s.requests
}

func (m *memStore) id() uint64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) reserved(arrangementID, exclude uint64) int {
	n := 0
	for k, r := range m.reservations {
		if k.arrangement == arrangementID && k.customer != exclude {
			n += r.SeatsNeeded
		}
	}
	return n
}

func (m *memStore) view(a model.Arrangement) model.Arrangement {
	a.SeatsAvailable = model.SeatsAvailable(a.NumberOfSeats, m.reserved(a.ID, 0))
	return a
}

func page[T any](in []T, p, size int) []T {
	if size <= 0 {
		size = 20
	}
	if p <= 0 {
		p = 1
	}
	start := (p - 1) * size
	if start >= len(in) {
		return []T{}
	}
	end := start + size
	if end > len(in) {
		end = len(in)
	}
	return in[start:end]
}

// ---- arrangements ----

type memArrangements struct{ m *memStore }

func (r memArrangements) Create(_ context.Context, _ repository.DBTX, a *model.Arrangement) error {
	a.ID = r.m.id()
	a.SeatsAvailable = a.NumberOfSeats
	r.m.arrangements[a.ID] = *a
	return nil
}

func (r memArrangements) GetByID(_ context.Context, _ repository.DBTX, id uint64) (*model.Arrangement, error) {
	a, ok := r.m.arrangements[id]
	if !ok {
		return nil, repository.ErrArrangementNotFound
	}
	v := r.m.view(a)
	return &v, nil
}

func (r memArrangements) GetForUpdate(ctx context.Context, q repository.DBTX, id uint64) (*model.Arrangement, error) {
	return r.GetByID(ctx, q, id)
}

func (r memArrangements) Update(_ context.Context, _ repository.DBTX, a *model.Arrangement) error {
	if _, ok := r.m.arrangements[a.ID]; !ok {
		return repository.ErrArrangementNotFound
	}
	r.m.arrangements[a.ID] = *a
	return nil
}

func (r memArrangements) Delete(_ context.Context, _ repository.DBTX, id uint64) error {
	if _, ok := r.m.arrangements[id]; !ok {
		return repository.ErrArrangementNotFound
	}
	delete(r.m.arrangements, id)
	for k := range r.m.reservations {
		if k.arrangement == id {
			delete(r.m.reservations, k)
		}
	}
	return nil
}

func (r memArrangements) filter(keep func(model.Arrangement) bool) []model.Arrangement {
	out := []model.Arrangement{}
	for _, a := range r.m.arrangements {
		if keep(a) {
			out = append(out, r.m.view(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memArrangements) List(_ context.Context, _ repository.DBTX, f repository.ArrangementQuery) ([]model.Arrangement, error) {
	dest := strings.ToLower(strings.TrimSpace(f.Destination))
	out := r.filter(func(a model.Arrangement) bool {
		if f.From != nil && a.StartDate.Before(model.Day(*f.From)) {
			return false
		}
		if f.To != nil && a.EndDate.After(model.Day(*f.To)) {
			return false
		}
		return dest == "" || strings.Contains(strings.ToLower(a.Destination), dest)
	})
	return page(out, f.Page, f.PageSize), nil
}

func (r memArrangements) ListByCreator(_ context.Context, _ repository.DBTX, creatorID uint64) ([]model.Arrangement, error) {
	return r.filter(func(a model.Arrangement) bool { return a.CreatorID == creatorID }), nil
}

func (r memArrangements) ListByGuide(_ context.Context, _ repository.DBTX, guideID uint64) ([]model.Arrangement, error) {
	return r.filter(func(a model.Arrangement) bool { return a.HasGuide(guideID) }), nil
}

func (r memArrangements) ListAvailable(_ context.Context, _ repository.DBTX, customerID uint64, after time.Time) ([]model.Arrangement, error) {
	return r.filter(func(a model.Arrangement) bool {
		_, reserved := r.m.reservations[resKey{customerID, a.ID}]
		return a.StartDate.After(model.Day(after)) && !a.Cancelled && !reserved
	}), nil
}

func (r memArrangements) GuideBusy(_ context.Context, _ repository.DBTX, guideID, excludeID uint64, day time.Time) (bool, error) {
	for _, a := range r.m.arrangements {
		if a.HasGuide(guideID) && a.ID != excludeID && !a.Cancelled && a.Covers(day) {
			return true, nil
		}
	}
	return false, nil
}

func (r memArrangements) CountByCreator(_ context.Context, _ repository.DBTX, creatorID uint64) (int, error) {
	return len(r.filter(func(a model.Arrangement) bool { return a.CreatorID == creatorID })), nil
}

// ---- reservations ----

type memReservations struct{ m *memStore }

func (r memReservations) full(res model.Reservation) model.Reservation {
	if a, ok := r.m.arrangements[res.ArrangementID]; ok {
		res.Price = model.ReservationPrice(res.SeatsNeeded, a.Price)
		res.Destination = a.Destination
		res.StartDate = a.StartDate
	}
	return res
}

func (r memReservations) Create(_ context.Context, _ repository.DBTX, res *model.Reservation) error {
	k := resKey{res.CustomerID, res.ArrangementID}
	if _, ok := r.m.reservations[k]; ok {
		return repository.ErrDuplicate
	}
	r.m.seq++
	res.CreatedAt = time.Unix(int64(r.m.seq), 0).UTC()
	r.m.reservations[k] = *res
	return nil
}

func (r memReservations) GetForUpdate(_ context.Context, _ repository.DBTX, customerID, arrangementID uint64) (*model.Reservation, error) {
	res, ok := r.m.reservations[resKey{customerID, arrangementID}]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	out := r.full(res)
	return &out, nil
}

func (r memReservations) UpdateSeats(_ context.Context, _ repository.DBTX, customerID, arrangementID uint64, seats int) error {
	k := resKey{customerID, arrangementID}
	res, ok := r.m.reservations[k]
	if !ok {
		return repository.ErrReservationNotFound
	}
	res.SeatsNeeded = seats
	r.m.reservations[k] = res
	return nil
}

func (r memReservations) Delete(_ context.Context, _ repository.DBTX, customerID, arrangementID uint64) error {
	k := resKey{customerID, arrangementID}
	if _, ok := r.m.reservations[k]; !ok {
		return repository.ErrReservationNotFound
	}
	delete(r.m.reservations, k)
	return nil
}

func (r memReservations) DeleteByArrangement(_ context.Context, _ repository.DBTX, arrangementID uint64) (int64, error) {
	var n int64
	for k := range r.m.reservations {
		if k.arrangement == arrangementID {
			delete(r.m.reservations, k)
			n++
		}
	}
	return n, nil
}

func (r memReservations) SumSeats(_ context.Context, _ repository.DBTX, arrangementID, excludeCustomerID uint64) (int, error) {
	return r.m.reserved(arrangementID, excludeCustomerID), nil
}

func (r memReservations) sorted(keep func(model.Reservation) bool) []model.Reservation {
	out := []model.Reservation{}
	for _, res := range r.m.reservations {
		if keep(res) {
			out = append(out, r.full(res))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r memReservations) ListByCustomer(_ context.Context, _ repository.DBTX, customerID uint64) ([]model.Reservation, error) {
	return r.sorted(func(res model.Reservation) bool { return res.CustomerID == customerID }), nil
}

func (r memReservations) List(_ context.Context, _ repository.DBTX, p, size int) ([]model.Reservation, error) {
	return page(r.sorted(func(model.Reservation) bool { return true }), p, size), nil
}

// ---- users ----

type memUsers struct{ m *memStore }

func (r memUsers) clash(u model.User) bool {
	for _, o := range r.m.users {
		if o.ID != u.ID && (strings.EqualFold(o.Email, u.Email) || o.Username == u.Username) {
			return true
		}
	}
	return false
}

func (r memUsers) Create(_ context.Context, _ repository.DBTX, u *model.User) error {
	u.Email = strings.ToLower(u.Email)
	if r.clash(*u) {
		return repository.ErrDuplicate
	}
	u.ID = r.m.id()
	r.m.users[u.ID] = copyUser(*u)
	return nil
}

func (r memUsers) get(match func(model.User) bool) (*model.User, error) {
	for _, u := range r.m.users {
		if match(u) {
			c := copyUser(u)
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r memUsers) GetByID(_ context.Context, _ repository.DBTX, id uint64) (*model.User, error) {
	return r.get(func(u model.User) bool { return u.ID == id })
}

func (r memUsers) GetByUsername(_ context.Context, _ repository.DBTX, username string) (*model.User, error) {
	return r.get(func(u model.User) bool { return u.Username == strings.TrimSpace(username) })
}

func (r memUsers) GetByEmail(_ context.Context, _ repository.DBTX, email string) (*model.User, error) {
	return r.get(func(u model.User) bool { return strings.EqualFold(u.Email, strings.TrimSpace(email)) })
}

func (r memUsers) sorted(keep func(model.User) bool) []model.User {
	out := []model.User{}
	for _, u := range r.m.users {
		if keep(u) {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memUsers) List(_ context.Context, _ repository.DBTX, f repository.UserQuery) ([]model.User, error) {
	want := strings.ToUpper(strings.TrimSpace(f.TypeName))
	out := r.sorted(func(u model.User) bool {
		if want == "" {
			return true
		}
		for _, t := range u.AccountTypes {
			if t.Name == want {
				return true
			}
		}
		return false
	})
	return page(out, f.Page, f.PageSize), nil
}

func (r memUsers) Update(_ context.Context, _ repository.DBTX, u *model.User) error {
	old, ok := r.m.users[u.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Email = strings.ToLower(u.Email)
	if r.clash(*u) {
		return repository.ErrDuplicate
	}
	old.Email, old.Username, old.FirstName, old.LastName, old.PasswordHash = u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash
	r.m.users[u.ID] = old
	return nil
}

func (r memUsers) SetAccountTypes(_ context.Context, _ repository.DBTX, userID uint64, typeIDs []uint8) error {
	u, ok := r.m.users[userID]
	if !ok {
		return repository.ErrInUse
	}
	u.AccountTypes = nil
	for _, id := range typeIDs {
		t, ok := r.m.types[id]
		if !ok {
			return repository.ErrInUse
		}
		u.AccountTypes = append(u.AccountTypes, t)
	}
	r.m.users[userID] = u
	return nil
}

func (r memUsers) Delete(_ context.Context, _ repository.DBTX, id uint64) error {
	if _, ok := r.m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	for _, a := range r.m.arrangements {
		if a.CreatorID == id {
			return repository.ErrInUse
		}
	}
	delete(r.m.users, id)
	for k := range r.m.reservations {
		if k.customer == id {
			delete(r.m.reservations, k)
		}
	}
	for rid, c := range r.m.requests {
		if c.UserID == id {
			delete(r.m.requests, rid)
		}
	}
	for aid, a := range r.m.arrangements {
		if a.HasGuide(id) {
			a.GuideID = nil
			r.m.arrangements[aid] = a
		}
	}
	return nil
}

func (r memUsers) CustomersOf(_ context.Context, _ repository.DBTX, arrangementID uint64) ([]model.User, error) {
	return r.sorted(func(u model.User) bool {
		_, ok := r.m.reservations[resKey{u.ID, arrangementID}]
		return ok
	}), nil
}

func (r memUsers) FreeGuides(_ context.Context, _ repository.DBTX, start, end time.Time) ([]model.User, error) {
	s, e := model.Day(start), model.Day(end)
	return r.sorted(func(u model.User) bool {
		if !u.HasRole(model.RoleGuide) {
			return false
		}
		for _, a := range r.m.arrangements {
			if a.HasGuide(u.ID) && !a.Cancelled && !(a.EndDate.Before(s) || a.StartDate.After(e)) {
				return false
			}
		}
		return true
	}), nil
}

// ---- account types ----

type memTypes struct{ m *memStore }

func (r memTypes) List(_ context.Context, _ repository.DBTX) ([]model.AccountType, error) {
	out := []model.AccountType{}
	for _, t := range r.m.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTypes) GetByID(_ context.Context, _ repository.DBTX, id uint8) (*model.AccountType, error) {
	t, ok := r.m.types[id]
	if !ok {
		return nil, repository.ErrAccountTypeNotFound
	}
	return &t, nil
}

func (r memTypes) GetByName(_ context.Context, _ repository.DBTX, name string) (*model.AccountType, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, t := range r.m.types {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, repository.ErrAccountTypeNotFound
}

func (r memTypes) Create(ctx context.Context, q repository.DBTX, t *model.AccountType) error {
	t.Name = strings.ToUpper(strings.TrimSpace(t.Name))
	if _, err := r.GetByName(ctx, q, t.Name); err == nil {
		return repository.ErrDuplicate
	}
	r.m.nextType++
	t.ID = r.m.nextType
	r.m.types[t.ID] = *t
	return nil
}

func (r memTypes) Rename(ctx context.Context, q repository.DBTX, id uint8, name string) error {
	name = strings.ToUpper(strings.TrimSpace(name))
	if o, err := r.GetByName(ctx, q, name); err == nil && o.ID != id {
		return repository.ErrDuplicate
	}
	if _, ok := r.m.types[id]; !ok {
		return repository.ErrAccountTypeNotFound
	}
	r.m.types[id] = model.AccountType{ID: id, Name: name}
	return nil
}

func (r memTypes) Delete(_ context.Context, _ repository.DBTX, id uint8) error {
	if _, ok := r.m.types[id]; !ok {
		return repository.ErrAccountTypeNotFound
	}
	for _, u := range r.m.users {
		for _, t := range u.AccountTypes {
			if t.ID == id {
				return repository.ErrInUse
			}
		}
	}
	for _, c := range r.m.requests {
		if c.WantedTypeID == id {
			return repository.ErrInUse
		}
	}
	delete(r.m.types, id)
	return nil
}

// ---- change requests ----

type memRequests struct{ m *memStore }

func (r memRequests) Create(_ context.Context, _ repository.DBTX, c *model.AccountTypeChangeRequest) error {
	c.ID = r.m.id()
	r.m.requests[c.ID] = *c
	return nil
}

func (r memRequests) GetByID(_ context.Context, _ repository.DBTX, id uint64) (*model.AccountTypeChangeRequest, error) {
	c, ok := r.m.requests[id]
	if !ok {
		return nil, repository.ErrChangeRequestNotFound
	}
	return &c, nil
}

func (r memRequests) GetForUpdate(ctx context.Context, q repository.DBTX, id uint64) (*model.AccountTypeChangeRequest, error) {
	return r.GetByID(ctx, q, id)
}

func (r memRequests) sorted(sortKey string, keep func(model.AccountTypeChangeRequest) bool) []model.AccountTypeChangeRequest {
	out := []model.AccountTypeChangeRequest{}
	for _, c := range r.m.requests {
		if keep(c) {
			out = append(out, c)
		}
	}
	desc := strings.HasSuffix(sortKey, "-d")
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].FilingDate.After(out[j].FilingDate) || (out[i].FilingDate.Equal(out[j].FilingDate) && out[i].ID < out[j].ID)
		}
		return out[i].FilingDate.Before(out[j].FilingDate) || (out[i].FilingDate.Equal(out[j].FilingDate) && out[i].ID < out[j].ID)
	})
	return out
}

func (r memRequests) List(_ context.Context, _ repository.DBTX, sortKey string, p, size int) ([]model.AccountTypeChangeRequest, error) {
	return page(r.sorted(sortKey, func(model.AccountTypeChangeRequest) bool { return true }), p, size), nil
}

func (r memRequests) ListByUser(_ context.Context, _ repository.DBTX, userID uint64, sortKey string, p, size int) ([]model.AccountTypeChangeRequest, error) {
	return page(r.sorted(sortKey, func(c model.AccountTypeChangeRequest) bool { return c.UserID == userID }), p, size), nil
}

func (r memRequests) Decide(_ context.Context, _ repository.DBTX, c *model.AccountTypeChangeRequest) error {
	if _, ok := r.m.requests[c.ID]; !ok {
		return repository.ErrChangeRequestNotFound
	}
	r.m.requests[c.ID] = *c
	return nil
}

// ---- notifier ----

type note struct {
	kind string
	to   uint64
	ref  uint64
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
	token string
}

func (n *recordingNotifier) add(kind string, to, ref uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{kind: kind, to: to, ref: ref})
}

func (n *recordingNotifier) of(kind string) []note {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []note{}
	for _, x := range n.notes {
		if x.kind == kind {
			out = append(out, x)
		}
	}
	return out
}

func (n *recordingNotifier) Registered(_ context.Context, u model.User) { n.add("registered", u.ID, 0) }

func (n *recordingNotifier) ReservationCreated(_ context.Context, c model.User, r model.Reservation) {
	n.add("reservation_created", c.ID, r.ArrangementID)
}

func (n *recordingNotifier) ReservationChanged(_ context.Context, c model.User, r model.Reservation) {
	n.add("reservation_changed", c.ID, r.ArrangementID)
}

func (n *recordingNotifier) ReservationCancelled(_ context.Context, c model.User, r model.Reservation) {
	n.add("reservation_cancelled", c.ID, r.ArrangementID)
}

func (n *recordingNotifier) ArrangementCancelled(_ context.Context, c model.User, a model.Arrangement) {
	n.add("arrangement_cancelled", c.ID, a.ID)
}

func (n *recordingNotifier) ChangeRequestDecided(_ context.Context, u model.User, c model.AccountTypeChangeRequest) {
	n.add("change_decided", u.ID, c.ID)
}

func (n *recordingNotifier) PasswordResetRequested(_ context.Context, u model.User, token string) {
	n.mu.Lock()
	n.token = token
	n.mu.Unlock()
	n.add("password_reset", u.ID, 0)
}

func (n *recordingNotifier) PasswordChanged(_ context.Context, u model.User) { n.add("password_changed", u.ID, 0) }

type revokeRecorder struct{ revoked []uint64 }

func (r *revokeRecorder) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.revoked = append(r.revoked, userID)
	return nil
}
