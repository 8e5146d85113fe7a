package model

import "time"

// AccountTypeChangeRequest mirrors `account_type_change_requests`. The
// confirmation fields stay nil until an admin decides the request.
type AccountTypeChangeRequest struct {
	ID               uint64
	UserID           uint64
	WantedTypeID     uint8
	WantedType       string // account_types.name of WantedTypeID
	FilingDate       time.Time
	ConfirmationDate *time.Time
	AdminConfirmedID *uint64
	Granted          *bool
	Comment          *string
}

// Decided reports whether an admin has adjudicated the request.
func (r AccountTypeChangeRequest) Decided() bool {
	return r.Granted != nil
}
