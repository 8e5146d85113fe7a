// Package router registers the HTTP surface on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
)

// Deps carries everything the routes need.
type Deps struct {
	JWTSecret string
	Users     middleware.UserLoader
	DB        handler.Pinger

	Auth           *handler.AuthHandler
	Arrangements   *handler.ArrangementHandler
	Reservations   *handler.ReservationHandler
	ChangeRequests *handler.ChangeRequestHandler
	Accounts       *handler.UserHandler

	// Cache and RateLimit may be nil; both then pass through.
	Cache     *middleware.ResponseCache
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", metrics.Handler())
}

// Register wires every /v1 route.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)

	v1 := e.Group("/v1")
	if d.RateLimit != nil {
		v1.Use(d.RateLimit)
	}

	authed := []echo.MiddlewareFunc{middleware.JWTAuth(d.JWTSecret), middleware.LoadCaller(d.Users)}
	optional := []echo.MiddlewareFunc{middleware.OptionalAuth(d.JWTSecret), middleware.LoadCaller(d.Users)}

	registerAuth(v1, d, authed, optional)
	registerArrangements(v1, d, authed, optional)
	registerReservations(v1, d, authed)
	registerChangeRequests(v1, d, authed)
	registerUsers(v1, d, authed)
}

func registerAuth(v1 *echo.Group, d Deps, authed, optional []echo.MiddlewareFunc) {
	a := d.Auth
	g := v1.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, optional...)
	g.POST("/forgot-password", a.ForgotPassword)
	g.POST("/reset-password", a.ResetPassword)

	v1.GET("/me", a.Me, authed...)
}

func registerArrangements(v1 *echo.Group, d Deps, authed, optional []echo.MiddlewareFunc) {
	h := d.Arrangements
	admin := middleware.RequireRole(model.RoleAdmin)
	staff := middleware.RequireRole(model.RoleAdmin, model.RoleGuide)
	tourist := middleware.RequireRole(model.RoleTourist)

	// Static paths are registered before :id; echo prefers them either way.
	v1.GET("/arrangements", h.List, append(optional, d.Cache.Middleware())...)

	g := v1.Group("/arrangements", authed...)
	g.GET("/own", h.Own, staff)
	g.GET("/available", h.Available, tourist)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, admin, d.Cache.InvalidateOnWrite())
	g.PUT("/:id", h.Update, staff, d.Cache.InvalidateOnWrite())
	g.DELETE("/:id", h.Delete, admin, d.Cache.InvalidateOnWrite())
}

func registerReservations(v1 *echo.Group, d Deps, authed []echo.MiddlewareFunc) {
	h := d.Reservations
	g := v1.Group("/reservations", authed...)
	booker := middleware.RequireRole(model.RoleAdmin, model.RoleTourist)

	g.GET("/page/:page", h.Page, middleware.RequireRole(model.RoleAdmin))
	g.GET("/own", h.Own, middleware.RequireRole(model.RoleTourist))
	g.POST("", h.Create, booker, d.Cache.InvalidateOnWrite())
	g.PUT("/:arrangementId", h.Update, booker, d.Cache.InvalidateOnWrite())
	g.DELETE("/:arrangementId", h.Cancel, booker, d.Cache.InvalidateOnWrite())
}

func registerChangeRequests(v1 *echo.Group, d Deps, authed []echo.MiddlewareFunc) {
	h := d.ChangeRequests
	g := v1.Group("/acc-type-change", authed...)
	g.POST("", h.File)
	g.GET("/page/:page", h.Page)
	g.GET("/own", h.Own)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Decide, middleware.RequireRole(model.RoleAdmin))
}

func registerUsers(v1 *echo.Group, d Deps, authed []echo.MiddlewareFunc) {
	h := d.Accounts
	admin := middleware.RequireRole(model.RoleAdmin)
	g := v1.Group("/users", authed...)

	g.GET("/self", h.Self)
	g.PUT("/self", h.UpdateSelf)
	g.DELETE("/self", h.DeleteSelf)

	g.GET("/guides/free", h.FreeGuides, admin)

	g.GET("/types", h.ListTypes)
	g.GET("/types/:id", h.GetType)
	g.POST("/types", h.CreateType, admin)
	g.PUT("/types/:id", h.RenameType, admin)
	g.DELETE("/types/:id", h.DeleteType, admin)

	g.GET("", h.List, admin)
	g.POST("", h.Create, admin)
	g.GET("/:id", h.Get, admin)
	g.PUT("/:id", h.Update, admin)
	g.DELETE("/:id", h.Delete, admin)
}
