package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
)

// UserRepo reads and writes users together with their account type links.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UserQuery defines filters & pagination for the admin user listing.
type UserQuery struct {
	TypeName string
	Sort     string
	Page     int
	PageSize int
}

var userSorts = map[string]string{
	"id-a":         "u.id ASC",
	"id-d":         "u.id DESC",
	"email-a":      "u.email ASC",
	"email-d":      "u.email DESC",
	"username-a":   "u.username ASC",
	"username-d":   "u.username DESC",
	"first-name-a": "u.first_name ASC",
	"first-name-d": "u.first_name DESC",
	"last-name-a":  "u.last_name ASC",
	"last-name-d":  "u.last_name DESC",
}

// UserOrderBy resolves a sort key; unknown keys sort by id.
func UserOrderBy(key string) string {
	if o, ok := userSorts[strings.ToLower(strings.TrimSpace(key))]; ok {
		return o
	}
	return "u.id ASC"
}

const userSelect = `SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.password_hash, u.created_at, u.updated_at
	FROM users u`

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts the user and links u.AccountTypes by ID. It should run
// inside a transaction so a failed link does not leave a bare user.
func (r *UserRepo) Create(ctx context.Context, q DBTX, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	res, err := q.ExecContext(ctx,
		"INSERT INTO users (email, username, first_name, last_name, password_hash) VALUES (?,?,?,?,?)",
		u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	ids := make([]uint8, 0, len(u.AccountTypes))
	for _, t := range u.AccountTypes {
		ids = append(ids, t.ID)
	}
	return r.linkTypes(ctx, q, u.ID, ids)
}

func (r *UserRepo) linkTypes(ctx context.Context, q DBTX, userID uint64, typeIDs []uint8) error {
	for _, id := range typeIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO user_account_types (user_id, account_type_id) VALUES (?,?)", userID, id); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

// SetAccountTypes replaces every type link of the user.
func (r *UserRepo) SetAccountTypes(ctx context.Context, q DBTX, userID uint64, typeIDs []uint8) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM user_account_types WHERE user_id = ?", userID); err != nil {
		return err
	}
	return r.linkTypes(ctx, q, userID, typeIDs)
}

func (r *UserRepo) getOne(ctx context.Context, q DBTX, where string, arg any) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, userSelect+" WHERE "+where+" LIMIT 1", arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	users := []model.User{u}
	if err := r.attachTypes(ctx, q, users); err != nil {
		return nil, err
	}
	return &users[0], nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, q DBTX, id uint64) (*model.User, error) {
	return r.getOne(ctx, q, "u.id = ?", id)
}

// GetByUsername fetches a user by login name.
func (r *UserRepo) GetByUsername(ctx context.Context, q DBTX, username string) (*model.User, error) {
	return r.getOne(ctx, q, "u.username = ?", strings.TrimSpace(username))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, q DBTX, email string) (*model.User, error) {
	return r.getOne(ctx, q, "u.email = ?", normalizeEmail(email))
}

// List returns one page of users, optionally restricted to holders of
// one account type.
func (r *UserRepo) List(ctx context.Context, q DBTX, f UserQuery) ([]model.User, error) {
	query := userSelect
	args := []any{}
	if t := strings.TrimSpace(f.TypeName); t != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM user_account_types ut JOIN account_types t ON t.id = ut.account_type_id
			WHERE ut.user_id = u.id AND t.name = ?)`
		args = append(args, strings.ToUpper(t))
	}
	limit, offset := pageBounds(f.Page, f.PageSize)
	query += " ORDER BY " + UserOrderBy(f.Sort) + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	return r.query(ctx, q, query, args...)
}

// CustomersOf returns users holding a reservation on the arrangement.
func (r *UserRepo) CustomersOf(ctx context.Context, q DBTX, arrangementID uint64) ([]model.User, error) {
	return r.query(ctx, q, userSelect+`
		JOIN reservations r ON r.customer_id = u.id
		WHERE r.arrangement_id = ? ORDER BY u.id ASC`, arrangementID)
}

// FreeGuides returns GUIDE holders without a non-cancelled arrangement
// overlapping [start, end].
func (r *UserRepo) FreeGuides(ctx context.Context, q DBTX, start, end time.Time) ([]model.User, error) {
	return r.query(ctx, q, userSelect+`
		JOIN user_account_types ut ON ut.user_id = u.id
		JOIN account_types t ON t.id = ut.account_type_id AND t.name = ?
		WHERE NOT EXISTS (
			SELECT 1 FROM arrangements a
			WHERE a.guide_id = u.id AND a.cancelled = FALSE
			  AND NOT (a.end_date < ? OR a.start_date > ?))
		ORDER BY u.id ASC`, string(model.RoleGuide), model.Day(start), model.Day(end))
}

func (r *UserRepo) query(ctx context.Context, q DBTX, query string, args ...any) ([]model.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachTypes(ctx, q, users); err != nil {
		return nil, err
	}
	return users, nil
}

// attachTypes loads account types for all users in one query.
func (r *UserRepo) attachTypes(ctx context.Context, q DBTX, users []model.User) error {
	if len(users) == 0 {
		return nil
	}
	idx := make(map[uint64]int, len(users))
	marks := make([]string, 0, len(users))
	args := make([]any, 0, len(users))
	for i, u := range users {
		idx[u.ID] = i
		marks = append(marks, "?")
		args = append(args, u.ID)
	}
	rows, err := q.QueryContext(ctx,
		`SELECT ut.user_id, t.id, t.name FROM user_account_types ut
		 JOIN account_types t ON t.id = ut.account_type_id
		 WHERE ut.user_id IN (`+strings.Join(marks, ",")+`) ORDER BY ut.user_id, t.id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			uid uint64
			t   model.AccountType
		)
		if err := rows.Scan(&uid, &t.ID, &t.Name); err != nil {
			return err
		}
		if i, ok := idx[uid]; ok {
			users[i].AccountTypes = append(users[i].AccountTypes, t)
		}
	}
	return rows.Err()
}

// Update writes the profile columns and password hash.
func (r *UserRepo) Update(ctx context.Context, q DBTX, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	_, err := q.ExecContext(ctx,
		"UPDATE users SET email=?, username=?, first_name=?, last_name=?, password_hash=? WHERE id=?",
		u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash, u.ID)
	return mapWriteErr(err)
}

// Delete removes the user. Reservations, change requests and refresh
// tokens cascade; guide assignments are set to NULL; arrangements the
// user created block the delete with ErrInUse.
func (r *UserRepo) Delete(ctx context.Context, q DBTX, id uint64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
