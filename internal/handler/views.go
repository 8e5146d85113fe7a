package handler

import (
	"time"

	"github.com/iliyamo/tour-booking/internal/model"
)

// arrangementBasic is what guests see in the public list.
type arrangementBasic struct {
	ID          uint64  `json:"id"`
	StartDate   string  `json:"start_date"`
	Destination string  `json:"destination"`
	Price       float64 `json:"price"`
}

type arrangementFull struct {
	ID             uint64  `json:"id"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	Description    string  `json:"description"`
	Destination    string  `json:"destination"`
	NumberOfSeats  int     `json:"number_of_seats"`
	SeatsAvailable int     `json:"seats_available"`
	Price          float64 `json:"price"`
	Cancelled      bool    `json:"cancelled"`
	GuideID        *uint64 `json:"guide_id"`
	CreatorID      uint64  `json:"creator_id"`
}

func basicView(a model.Arrangement) arrangementBasic {
	return arrangementBasic{ID: a.ID, StartDate: a.StartDate.Format(model.DateLayout), Destination: a.Destination, Price: a.Price}
}

func fullView(a model.Arrangement) arrangementFull {
	return arrangementFull{
		ID:             a.ID,
		StartDate:      a.StartDate.Format(model.DateLayout),
		EndDate:        a.EndDate.Format(model.DateLayout),
		Description:    a.Description,
		Destination:    a.Destination,
		NumberOfSeats:  a.NumberOfSeats,
		SeatsAvailable: a.SeatsAvailable,
		Price:          a.Price,
		Cancelled:      a.Cancelled,
		GuideID:        a.GuideID,
		CreatorID:      a.CreatorID,
	}
}

func fullViews(in []model.Arrangement) []arrangementFull {
	out := make([]arrangementFull, 0, len(in))
	for _, a := range in {
		out = append(out, fullView(a))
	}
	return out
}

type reservationView struct {
	CustomerID    uint64  `json:"customer_id"`
	ArrangementID uint64  `json:"arrangement_id"`
	SeatsNeeded   int     `json:"seats_needed"`
	Price         float64 `json:"price"`
	Destination   string  `json:"destination"`
	StartDate     string  `json:"start_date"`
}

func reservationViewOf(r model.Reservation) reservationView {
	return reservationView{
		CustomerID:    r.CustomerID,
		ArrangementID: r.ArrangementID,
		SeatsNeeded:   r.SeatsNeeded,
		Price:         r.Price,
		Destination:   r.Destination,
		StartDate:     r.StartDate.Format(model.DateLayout),
	}
}

func reservationViews(in []model.Reservation) []reservationView {
	out := make([]reservationView, 0, len(in))
	for _, r := range in {
		out = append(out, reservationViewOf(r))
	}
	return out
}

type userView struct {
	ID           uint64   `json:"id"`
	Email        string   `json:"email"`
	Username     string   `json:"username"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Role         string   `json:"role"`
	AccountTypes []string `json:"account_types"`
}

func userViewOf(u model.User) userView {
	return userView{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         string(u.Role()),
		AccountTypes: u.TypeNames(),
	}
}

func userViews(in []model.User) []userView {
	out := make([]userView, 0, len(in))
	for _, u := range in {
		out = append(out, userViewOf(u))
	}
	return out
}

type changeRequestView struct {
	ID               uint64     `json:"id"`
	UserID           uint64     `json:"user_id"`
	WantedType       string     `json:"wanted_type"`
	FilingDate       time.Time  `json:"filing_date"`
	ConfirmationDate *time.Time `json:"confirmation_date"`
	AdminConfirmedID *uint64    `json:"admin_confirmed_id"`
	Granted          *bool      `json:"granted"`
	Comment          *string    `json:"comment"`
}

func changeRequestViewOf(r model.AccountTypeChangeRequest) changeRequestView {
	return changeRequestView{
		ID:               r.ID,
		UserID:           r.UserID,
		WantedType:       r.WantedType,
		FilingDate:       r.FilingDate,
		ConfirmationDate: r.ConfirmationDate,
		AdminConfirmedID: r.AdminConfirmedID,
		Granted:          r.Granted,
		Comment:          r.Comment,
	}
}

func changeRequestViews(in []model.AccountTypeChangeRequest) []changeRequestView {
	out := make([]changeRequestView, 0, len(in))
	for _, r := range in {
		out = append(out, changeRequestViewOf(r))
	}
	return out
}

type accountTypeView struct {
	ID   uint8  `json:"id"`
	Name string `json:"name"`
}

func accountTypeViewOf(t model.AccountType) accountTypeView {
	return accountTypeView{ID: t.ID, Name: t.Name}
}
