package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/tour-booking/internal/model"
)

type AccountTypeRepo struct{ db *sql.DB }

func NewAccountTypeRepo(db *sql.DB) *AccountTypeRepo { return &AccountTypeRepo{db: db} }

func (r *AccountTypeRepo) List(ctx context.Context, q DBTX) ([]model.AccountType, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name FROM account_types ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AccountType{}
	for rows.Next() {
		var t model.AccountType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AccountTypeRepo) get(ctx context.Context, q DBTX, where string, arg any) (*model.AccountType, error) {
	var t model.AccountType
	err := q.QueryRowContext(ctx, "SELECT id, name FROM account_types WHERE "+where+" LIMIT 1", arg).Scan(&t.ID, &t.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *AccountTypeRepo) GetByID(ctx context.Context, q DBTX, id uint8) (*model.AccountType, error) {
	return r.get(ctx, q, "id = ?", id)
}

// GetByName matches names case-insensitively; names are stored upper-case.
func (r *AccountTypeRepo) GetByName(ctx context.Context, q DBTX, name string) (*model.AccountType, error) {
	return r.get(ctx, q, "name = ?", strings.ToUpper(strings.TrimSpace(name)))
}

func (r *AccountTypeRepo) Create(ctx context.Context, q DBTX, t *model.AccountType) error {
	t.Name = strings.ToUpper(strings.TrimSpace(t.Name))
	res, err := q.ExecContext(ctx, "INSERT INTO account_types (name) VALUES (?)", t.Name)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint8(id)
	return nil
}

func (r *AccountTypeRepo) Rename(ctx context.Context, q DBTX, id uint8, name string) error {
	res, err := q.ExecContext(ctx, "UPDATE account_types SET name = ? WHERE id = ?", strings.ToUpper(strings.TrimSpace(name)), id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountTypeNotFound
	}
	return nil
}

// Delete fails with ErrInUse while users or change requests reference
// the type.
func (r *AccountTypeRepo) Delete(ctx context.Context, q DBTX, id uint8) error {
	res, err := q.ExecContext(ctx, "DELETE FROM account_types WHERE id = ?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountTypeNotFound
	}
	return nil
}
