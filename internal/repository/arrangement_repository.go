package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
)

// ArrangementRepo provides CRUD and search over the arrangements table.
type ArrangementRepo struct{ db *sql.DB }

func NewArrangementRepo(db *sql.DB) *ArrangementRepo { return &ArrangementRepo{db: db} }

// ArrangementQuery defines filters & pagination for listing arrangements.
// From/To bound start_date >= From and end_date <= To.
type ArrangementQuery struct {
	From        *time.Time
	To          *time.Time
	Destination string
	Sort        string
	Page        int
	PageSize    int
}

// arrangementSorts whitelists the accepted sort keys.
var arrangementSorts = map[string]string{
	"price-a":           "a.price ASC",
	"price-d":           "a.price DESC",
	"start-date-a":      "a.start_date ASC",
	"start-date-d":      "a.start_date DESC",
	"end-date-a":        "a.end_date ASC",
	"end-date-d":        "a.end_date DESC",
	"destination-a":     "a.destination ASC",
	"destination-d":     "a.destination DESC",
	"number-of-seats-a": "a.number_of_seats ASC",
	"number-of-seats-d": "a.number_of_seats DESC",
}

const defaultArrangementSort = "a.start_date ASC"

// ArrangementOrderBy resolves a sort key; unknown keys fall back to
// ascending start date.
func ArrangementOrderBy(key string) string {
	if o, ok := arrangementSorts[strings.ToLower(strings.TrimSpace(key))]; ok {
		return o
	}
	return defaultArrangementSort
}

const arrangementSelect = `SELECT a.id, a.start_date, a.end_date, a.description, a.destination,
		a.number_of_seats, a.price, a.cancelled, a.guide_id, a.creator_id, a.created_at, a.updated_at,
		a.number_of_seats - COALESCE((SELECT SUM(r.seats_needed) FROM reservations r WHERE r.arrangement_id = a.id), 0) AS seats_available
	FROM arrangements a`

func scanArrangement(s rowScanner) (model.Arrangement, error) {
	var (
		a     model.Arrangement
		guide sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.StartDate, &a.EndDate, &a.Description, &a.Destination,
		&a.NumberOfSeats, &a.Price, &a.Cancelled, &guide, &a.CreatorID, &a.CreatedAt, &a.UpdatedAt,
		&a.SeatsAvailable)
	if err != nil {
		return a, err
	}
	if guide.Valid {
		id := uint64(guide.Int64)
		a.GuideID = &id
	}
	return a, nil
}

func collectArrangements(rows *sql.Rows) ([]model.Arrangement, error) {
	defer rows.Close()
	out := []model.Arrangement{}
	for rows.Next() {
		a, err := scanArrangement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

// Create inserts a and sets its ID.
func (r *ArrangementRepo) Create(ctx context.Context, q DBTX, a *model.Arrangement) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO arrangements (start_date, end_date, description, destination, number_of_seats, price, cancelled, guide_id, creator_id)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		model.Day(a.StartDate), model.Day(a.EndDate), a.Description, a.Destination,
		a.NumberOfSeats, a.Price, a.Cancelled, nullableID(a.GuideID), a.CreatorID)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.SeatsAvailable = a.NumberOfSeats
	return nil
}

// GetByID loads one arrangement with its derived seat availability.
func (r *ArrangementRepo) GetByID(ctx context.Context, q DBTX, id uint64) (*model.Arrangement, error) {
	a, err := scanArrangement(q.QueryRowContext(ctx, arrangementSelect+" WHERE a.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArrangementNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetForUpdate loads the arrangement and takes an exclusive row lock held
// until q's transaction ends. Reservation writes on the same arrangement
// queue behind it.
func (r *ArrangementRepo) GetForUpdate(ctx context.Context, q DBTX, id uint64) (*model.Arrangement, error) {
	a, err := scanArrangement(q.QueryRowContext(ctx, arrangementSelect+" WHERE a.id = ? FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArrangementNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Update writes every mutable column of a.
func (r *ArrangementRepo) Update(ctx context.Context, q DBTX, a *model.Arrangement) error {
	res, err := q.ExecContext(ctx,
		`UPDATE arrangements SET start_date=?, end_date=?, description=?, destination=?,
		 number_of_seats=?, price=?, cancelled=?, guide_id=? WHERE id=?`,
		model.Day(a.StartDate), model.Day(a.EndDate), a.Description, a.Destination,
		a.NumberOfSeats, a.Price, a.Cancelled, nullableID(a.GuideID), a.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	// The DSN sets clientFoundRows, so unchanged rows still count.
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArrangementNotFound
	}
	return nil
}

// Delete removes the arrangement; reservations go with it through the
// foreign key cascade.
func (r *ArrangementRepo) Delete(ctx context.Context, q DBTX, id uint64) error {
	res, err := q.ExecContext(ctx, "DELETE FROM arrangements WHERE id=?", id)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrArrangementNotFound
	}
	return nil
}

// List returns one page of arrangements matching f.
func (r *ArrangementRepo) List(ctx context.Context, q DBTX, f ArrangementQuery) ([]model.Arrangement, error) {
	where := []string{}
	args := []any{}
	if f.From != nil {
		where = append(where, "a.start_date >= ?")
		args = append(args, model.Day(*f.From))
	}
	if f.To != nil {
		where = append(where, "a.end_date <= ?")
		args = append(args, model.Day(*f.To))
	}
	if d := strings.TrimSpace(f.Destination); d != "" {
		where = append(where, "LOWER(a.destination) LIKE ?")
		args = append(args, "%"+strings.ToLower(d)+"%")
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	limit, offset := pageBounds(f.Page, f.PageSize)
	query := arrangementSelect + " WHERE " + cond +
		" ORDER BY " + ArrangementOrderBy(f.Sort) + ", a.id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectArrangements(rows)
}

// ListByCreator returns arrangements created by the admin.
func (r *ArrangementRepo) ListByCreator(ctx context.Context, q DBTX, creatorID uint64) ([]model.Arrangement, error) {
	rows, err := q.QueryContext(ctx, arrangementSelect+" WHERE a.creator_id = ? ORDER BY a.start_date ASC, a.id ASC", creatorID)
	if err != nil {
		return nil, err
	}
	return collectArrangements(rows)
}

// ListByGuide returns arrangements assigned to the guide.
func (r *ArrangementRepo) ListByGuide(ctx context.Context, q DBTX, guideID uint64) ([]model.Arrangement, error) {
	rows, err := q.QueryContext(ctx, arrangementSelect+" WHERE a.guide_id = ? ORDER BY a.start_date ASC, a.id ASC", guideID)
	if err != nil {
		return nil, err
	}
	return collectArrangements(rows)
}

// ListAvailable returns non-cancelled arrangements starting after the
// cutoff day on which customerID holds no reservation.
func (r *ArrangementRepo) ListAvailable(ctx context.Context, q DBTX, customerID uint64, after time.Time) ([]model.Arrangement, error) {
	rows, err := q.QueryContext(ctx, arrangementSelect+`
		WHERE a.start_date > ? AND a.cancelled = FALSE
		  AND NOT EXISTS (SELECT 1 FROM reservations x WHERE x.arrangement_id = a.id AND x.customer_id = ?)
		ORDER BY a.start_date ASC, a.id ASC`, model.Day(after), customerID)
	if err != nil {
		return nil, err
	}
	return collectArrangements(rows)
}

// GuideBusy reports whether the guide has a non-cancelled arrangement,
// other than excludeID, whose date range contains day.
func (r *ArrangementRepo) GuideBusy(ctx context.Context, q DBTX, guideID, excludeID uint64, day time.Time) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM arrangements
		 WHERE guide_id = ? AND id <> ? AND cancelled = FALSE AND start_date <= ? AND end_date >= ?`,
		guideID, excludeID, model.Day(day), model.Day(day)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountByCreator counts arrangements the user created.
func (r *ArrangementRepo) CountByCreator(ctx context.Context, q DBTX, creatorID uint64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM arrangements WHERE creator_id = ?", creatorID).Scan(&n)
	return n, err
}
