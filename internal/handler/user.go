package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/service"
)

// UserService is implemented by *service.UserService.
type UserService interface {
	Register(ctx context.Context, in service.Registration) (*model.User, *model.AccountTypeChangeRequest, error)
	AdminCreate(ctx context.Context, admin model.User, in service.Registration) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	Load(ctx context.Context, id uint64) (*model.User, error)
	Get(ctx context.Context, caller model.User, id uint64) (*model.User, error)
	List(ctx context.Context, admin model.User, f repository.UserQuery) ([]model.User, error)
	UpdateSelf(ctx context.Context, caller model.User, in service.ProfileUpdate) (*model.User, error)
	AdminUpdate(ctx context.Context, admin model.User, id uint64, in service.ProfileUpdate) (*model.User, error)
	Delete(ctx context.Context, caller model.User, id uint64) error
	FreeGuides(ctx context.Context, admin model.User, start, end time.Time) ([]model.User, error)
	ListTypes(ctx context.Context) ([]model.AccountType, error)
	GetType(ctx context.Context, id uint8) (*model.AccountType, error)
	CreateType(ctx context.Context, admin model.User, name string) (*model.AccountType, error)
	RenameType(ctx context.Context, admin model.User, id uint8, name string) (*model.AccountType, error)
	DeleteType(ctx context.Context, admin model.User, id uint8) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password, password1 string) error
}

type UserHandler struct {
	Users UserService
}

func NewUserHandler(s UserService) *UserHandler { return &UserHandler{Users: s} }

type createUserReq struct {
	Email     string   `json:"email" validate:"required,email"`
	Username  string   `json:"username" validate:"required"`
	FirstName string   `json:"first_name" validate:"required"`
	LastName  string   `json:"last_name" validate:"required"`
	Password  string   `json:"password" validate:"required"`
	Types     []string `json:"account_types"`
}

type updateUserReq struct {
	Email     *string  `json:"email" validate:"omitempty,email"`
	Username  *string  `json:"username"`
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
	Password  *string  `json:"password"`
	Types     []string `json:"account_types"`
}

func (r updateUserReq) patch() service.ProfileUpdate {
	return service.ProfileUpdate{
		Email:     r.Email,
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Password:  r.Password,
		Types:     r.Types,
	}
}

type typeReq struct {
	Name string `json:"name" validate:"required,max=32"`
}

func (h *UserHandler) Self(c echo.Context) error {
	return c.JSON(http.StatusOK, userViewOf(caller(c)))
}

func (h *UserHandler) UpdateSelf(c echo.Context) error {
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	u, err := h.Users.UpdateSelf(c.Request().Context(), caller(c), req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, userViewOf(*u))
}

func (h *UserHandler) DeleteSelf(c echo.Context) error {
	me := caller(c)
	if err := h.Users.Delete(c.Request().Context(), me, me.ID); err != nil {
		return respondError(c, err)
	}
	return msg(c, http.StatusOK, "Account deleted.")
}

// List serves GET /users?page&sort&type.
func (h *UserHandler) List(c echo.Context) error {
	page, err := pageParam(c.QueryParam("page"))
	if err != nil {
		return respondError(c, err)
	}
	out, err := h.Users.List(c.Request().Context(), caller(c), repository.UserQuery{
		TypeName: c.QueryParam("type"), Sort: c.QueryParam("sort"), Page: page,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, userViews(out))
}

func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	u, err := h.Users.AdminCreate(c.Request().Context(), caller(c), service.Registration{
		Email: req.Email, Username: req.Username, FirstName: req.FirstName, LastName: req.LastName,
		Password: req.Password, Types: req.Types,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, userViewOf(*u))
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	u, err := h.Users.Get(c.Request().Context(), caller(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, userViewOf(*u))
}

func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	u, err := h.Users.AdminUpdate(c.Request().Context(), caller(c), id, req.patch())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, userViewOf(*u))
}

func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Users.Delete(c.Request().Context(), caller(c), id); err != nil {
		return respondError(c, err)
	}
	return msg(c, http.StatusOK, "User deleted.")
}

// FreeGuides serves GET /users/guides/free?start_date&end_date.
func (h *UserHandler) FreeGuides(c echo.Context) error {
	start, err := parseDate("start_date", c.QueryParam("start_date"))
	if err != nil {
		return respondError(c, err)
	}
	end, err := parseDate("end_date", c.QueryParam("end_date"))
	if err != nil {
		return respondError(c, err)
	}
	if start == nil || end == nil {
		return msg(c, http.StatusBadRequest, "start_date and end_date are required.")
	}
	out, err := h.Users.FreeGuides(c.Request().Context(), caller(c), *start, *end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, userViews(out))
}

func typeID(c echo.Context) (uint8, error) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil || n == 0 {
		return 0, &service.Error{Kind: service.KindValidation, Msg: "Invalid id."}
	}
	return uint8(n), nil
}

func (h *UserHandler) ListTypes(c echo.Context) error {
	out, err := h.Users.ListTypes(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	views := make([]accountTypeView, 0, len(out))
	for _, t := range out {
		views = append(views, accountTypeViewOf(t))
	}
	return c.JSON(http.StatusOK, views)
}

func (h *UserHandler) GetType(c echo.Context) error {
	id, err := typeID(c)
	if err != nil {
		return respondError(c, err)
	}
	t, err := h.Users.GetType(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, accountTypeViewOf(*t))
}

func (h *UserHandler) CreateType(c echo.Context) error {
	var req typeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	t, err := h.Users.CreateType(c.Request().Context(), caller(c), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, accountTypeViewOf(*t))
}

func (h *UserHandler) RenameType(c echo.Context) error {
	id, err := typeID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req typeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	t, err := h.Users.RenameType(c.Request().Context(), caller(c), id, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, accountTypeViewOf(*t))
}

func (h *UserHandler) DeleteType(c echo.Context) error {
	id, err := typeID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.Users.DeleteType(c.Request().Context(), caller(c), id); err != nil {
		return respondError(c, err)
	}
	return msg(c, http.StatusOK, "Account type deleted.")
}
