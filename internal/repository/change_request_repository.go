package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/tour-booking/internal/model"
)

// ChangeRequestRepo stores account type change requests.
type ChangeRequestRepo struct{ db *sql.DB }

func NewChangeRequestRepo(db *sql.DB) *ChangeRequestRepo { return &ChangeRequestRepo{db: db} }

var changeRequestSorts = map[string]string{
	"filing-date-a":       "c.filing_date ASC",
	"filing-date-d":       "c.filing_date DESC",
	"confirmation-date-a": "c.confirmation_date ASC",
	"confirmation-date-d": "c.confirmation_date DESC",
}

// ChangeRequestOrderBy resolves a sort key; the default is filing date
// ascending.
func ChangeRequestOrderBy(key string) string {
	if o, ok := changeRequestSorts[strings.ToLower(strings.TrimSpace(key))]; ok {
		return o
	}
	return "c.filing_date ASC"
}

const changeRequestSelect = `SELECT c.id, c.user_id, c.wanted_type_id, t.name, c.filing_date,
		c.confirmation_date, c.admin_confirmed_id, c.granted, c.comment
	FROM account_type_change_requests c
	JOIN account_types t ON t.id = c.wanted_type_id`

func scanChangeRequest(s rowScanner) (model.AccountTypeChangeRequest, error) {
	var (
		c         model.AccountTypeChangeRequest
		confirmed sql.NullTime
		admin     sql.NullInt64
		granted   sql.NullBool
		comment   sql.NullString
	)
	err := s.Scan(&c.ID, &c.UserID, &c.WantedTypeID, &c.WantedType, &c.FilingDate,
		&confirmed, &admin, &granted, &comment)
	if err != nil {
		return c, err
	}
	if confirmed.Valid {
		t := confirmed.Time
		c.ConfirmationDate = &t
	}
	if admin.Valid {
		id := uint64(admin.Int64)
		c.AdminConfirmedID = &id
	}
	if granted.Valid {
		g := granted.Bool
		c.Granted = &g
	}
	if comment.Valid {
		s := comment.String
		c.Comment = &s
	}
	return c, nil
}

func (r *ChangeRequestRepo) Create(ctx context.Context, q DBTX, c *model.AccountTypeChangeRequest) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO account_type_change_requests (user_id, wanted_type_id, filing_date, comment) VALUES (?,?,?,?)",
		c.UserID, c.WantedTypeID, c.FilingDate, c.Comment)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

func (r *ChangeRequestRepo) getOne(ctx context.Context, q DBTX, suffix string, id uint64) (*model.AccountTypeChangeRequest, error) {
	c, err := scanChangeRequest(q.QueryRowContext(ctx, changeRequestSelect+" WHERE c.id = ?"+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChangeRequestNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ChangeRequestRepo) GetByID(ctx context.Context, q DBTX, id uint64) (*model.AccountTypeChangeRequest, error) {
	return r.getOne(ctx, q, "", id)
}

// GetForUpdate locks the request row for adjudication.
func (r *ChangeRequestRepo) GetForUpdate(ctx context.Context, q DBTX, id uint64) (*model.AccountTypeChangeRequest, error) {
	return r.getOne(ctx, q, " FOR UPDATE", id)
}

func (r *ChangeRequestRepo) list(ctx context.Context, q DBTX, query string, args ...any) ([]model.AccountTypeChangeRequest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AccountTypeChangeRequest{}
	for rows.Next() {
		c, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns one page of every request.
func (r *ChangeRequestRepo) List(ctx context.Context, q DBTX, sort string, page, pageSize int) ([]model.AccountTypeChangeRequest, error) {
	limit, offset := pageBounds(page, pageSize)
	return r.list(ctx, q, changeRequestSelect+" ORDER BY "+ChangeRequestOrderBy(sort)+", c.id ASC LIMIT ? OFFSET ?", limit, offset)
}

// ListByUser returns one page of the user's own requests.
func (r *ChangeRequestRepo) ListByUser(ctx context.Context, q DBTX, userID uint64, sort string, page, pageSize int) ([]model.AccountTypeChangeRequest, error) {
	limit, offset := pageBounds(page, pageSize)
	return r.list(ctx, q, changeRequestSelect+" WHERE c.user_id = ? ORDER BY "+ChangeRequestOrderBy(sort)+", c.id ASC LIMIT ? OFFSET ?",
		userID, limit, offset)
}

// Decide stores the adjudication fields of c.
func (r *ChangeRequestRepo) Decide(ctx context.Context, q DBTX, c *model.AccountTypeChangeRequest) error {
	res, err := q.ExecContext(ctx,
		`UPDATE account_type_change_requests
		 SET granted = ?, comment = ?, confirmation_date = ?, admin_confirmed_id = ? WHERE id = ?`,
		c.Granted, c.Comment, c.ConfirmationDate, nullableID(c.AdminConfirmedID), c.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrChangeRequestNotFound
	}
	return nil
}
