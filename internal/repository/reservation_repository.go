package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/tour-booking/internal/model"
)

// ReservationRepo manages rows of the reservations table. Reads join the
// arrangement so callers can price a reservation without a second query.
type ReservationRepo struct{ db *sql.DB }

func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationSelect = `SELECT r.customer_id, r.arrangement_id, r.seats_needed, r.created_at, r.updated_at,
		a.price, a.destination, a.start_date
	FROM reservations r
	JOIN arrangements a ON a.id = r.arrangement_id`

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		res   model.Reservation
		price float64
	)
	err := s.Scan(&res.CustomerID, &res.ArrangementID, &res.SeatsNeeded, &res.CreatedAt, &res.UpdatedAt,
		&price, &res.Destination, &res.StartDate)
	if err != nil {
		return res, err
	}
	res.Price = model.ReservationPrice(res.SeatsNeeded, price)
	return res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Create inserts a reservation. A second row for the same customer and
// arrangement fails with ErrDuplicate from the primary key.
func (r *ReservationRepo) Create(ctx context.Context, q DBTX, res *model.Reservation) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO reservations (customer_id, arrangement_id, seats_needed) VALUES (?,?,?)",
		res.CustomerID, res.ArrangementID, res.SeatsNeeded)
	return mapWriteErr(err)
}

// GetForUpdate loads and locks one reservation row.
func (r *ReservationRepo) GetForUpdate(ctx context.Context, q DBTX, customerID, arrangementID uint64) (*model.Reservation, error) {
	res, err := scanReservation(q.QueryRowContext(ctx,
		reservationSelect+" WHERE r.customer_id = ? AND r.arrangement_id = ? FOR UPDATE",
		customerID, arrangementID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

// UpdateSeats sets the seat count of an existing reservation.
func (r *ReservationRepo) UpdateSeats(ctx context.Context, q DBTX, customerID, arrangementID uint64, seats int) error {
	res, err := q.ExecContext(ctx,
		"UPDATE reservations SET seats_needed = ? WHERE customer_id = ? AND arrangement_id = ?",
		seats, customerID, arrangementID)
	if err != nil {
		return mapWriteErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// Delete removes one reservation.
func (r *ReservationRepo) Delete(ctx context.Context, q DBTX, customerID, arrangementID uint64) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM reservations WHERE customer_id = ? AND arrangement_id = ?",
		customerID, arrangementID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// DeleteByArrangement removes every reservation of an arrangement and
// returns how many rows went away.
func (r *ReservationRepo) DeleteByArrangement(ctx context.Context, q DBTX, arrangementID uint64) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM reservations WHERE arrangement_id = ?", arrangementID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SumSeats returns the seats reserved on the arrangement by everyone
// except excludeCustomerID (0 excludes nobody). It is a locking read so
// the total reflects the latest committed rows, not the transaction
// snapshot.
func (r *ReservationRepo) SumSeats(ctx context.Context, q DBTX, arrangementID, excludeCustomerID uint64) (int, error) {
	var total int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(seats_needed), 0) FROM reservations
		 WHERE arrangement_id = ? AND customer_id <> ? FOR UPDATE`,
		arrangementID, excludeCustomerID).Scan(&total)
	return total, err
}

// ListByCustomer returns every reservation held by the customer.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, q DBTX, customerID uint64) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx,
		reservationSelect+" WHERE r.customer_id = ? ORDER BY a.start_date ASC, r.arrangement_id ASC", customerID)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// List returns one page of all reservations.
func (r *ReservationRepo) List(ctx context.Context, q DBTX, page, pageSize int) ([]model.Reservation, error) {
	limit, offset := pageBounds(page, pageSize)
	rows, err := q.QueryContext(ctx,
		reservationSelect+" ORDER BY r.created_at ASC, r.customer_id ASC, r.arrangement_id ASC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}
