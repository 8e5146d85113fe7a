package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/logging"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/service"
	"github.com/iliyamo/tour-booking/internal/validation"
)

// msg writes the {"msg": ...} body used by every non-resource response.
func msg(c echo.Context, status int, m any) error {
	return c.JSON(status, echo.Map{"msg": m})
}

var kindStatus = map[service.Kind]int{
	service.KindValidation: http.StatusBadRequest,
	service.KindNotFound:   http.StatusNotFound,
	service.KindForbidden:  http.StatusForbidden,
	service.KindConflict:   http.StatusConflict,
}

// respondError maps service and validation errors to status and body.
// Anything unclassified is logged and reported as 500.
func respondError(c echo.Context, err error) error {
	var ve *validation.Error
	if errors.As(err, &ve) {
		return msg(c, http.StatusBadRequest, ve.Fields)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return msg(c, he.Code, he.Message)
	}
	var se *service.Error
	if errors.As(err, &se) {
		if status, ok := kindStatus[se.Kind]; ok {
			if len(se.Fields) > 0 {
				return msg(c, status, se.Fields)
			}
			return msg(c, status, se.Msg)
		}
	}
	logging.Ctx(c.Request().Context()).Error().Err(err).Str("route", c.Path()).Msg("request failed")
	return msg(c, http.StatusInternalServerError, "Internal error.")
}

// bind decodes the body into dst and runs struct validation.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return &service.Error{Kind: service.KindValidation, Msg: "Invalid request body."}
	}
	return c.Validate(dst)
}

// caller returns the user loaded by middleware.LoadCaller. Routes that
// call it are always behind JWTAuth.
func caller(c echo.Context) model.User {
	u, _ := middleware.Caller(c)
	return u
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.Error{Kind: service.KindValidation, Msg: "Invalid " + name + "."}
	}
	return id, nil
}

// pageParam reads an integer page from the path or query. Absent means 1;
// range checks are left to the services.
func pageParam(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &service.Error{Kind: service.KindValidation, Msg: "Page number must be an integer."}
	}
	return n, nil
}

// optionalUint parses an optional numeric query parameter.
func optionalUint(c echo.Context, name string) (*uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, &service.Error{Kind: service.KindValidation, Msg: "Invalid " + name + "."}
	}
	return &id, nil
}

// parseDate reads a yyyy-mm-dd value. Empty input yields nil.
func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(model.DateLayout, raw, time.UTC)
	if err != nil {
		return nil, &service.Error{Kind: service.KindValidation, Fields: map[string][]string{field: {"Must be a date formatted as YYYY-MM-DD."}}}
	}
	return &t, nil
}
