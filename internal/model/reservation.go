package model

import "time"

// Reservation mirrors the `reservations` table. The pair
// (CustomerID, ArrangementID) is the primary key, so a customer holds at
// most one reservation per arrangement. Price and Destination are filled
// from the joined arrangement when the row is read.
type Reservation struct {
	CustomerID    uint64    // reservations.customer_id
	ArrangementID uint64    // reservations.arrangement_id
	SeatsNeeded   int       // reservations.seats_needed
	Price         float64   // derived from arrangements.price
	Destination   string    // arrangements.destination
	StartDate     time.Time // arrangements.start_date
	CreatedAt     time.Time // reservations.created_at
	UpdatedAt     time.Time // reservations.updated_at
}

// volumeTier is the seat count from which the discounted tier applies.
const volumeTier = 3

// ReservationPrice returns the price of seats at the given unit price.
// Below three seats every seat costs the unit price; from three on, the
// first three are charged in full and each further seat adds 0.9.
func ReservationPrice(seats int, price float64) float64 {
	if seats < volumeTier {
		return float64(seats) * price
	}
	return volumeTier*price + 0.9*float64(seats-volumeTier)
}
