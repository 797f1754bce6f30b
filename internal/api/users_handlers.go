package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tokka/internal/api/auth"
	"github.com/tokka/internal/users"
)

func (s *Server) searchUsers(c echo.Context) error {
	claims := auth.CurrentUser(c)

	result, err := s.services.Users.Search(c.Request().Context(), claims.UserID, c.QueryParam("q"))
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, result, "")
}

func (s *Server) updateProfile(c echo.Context) error {
	claims := auth.CurrentUser(c)

	var req users.ProfileUpdate
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	user, err := s.services.Users.UpdateProfile(c.Request().Context(), claims.UserID, req)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, user, "profile updated")
}

func (s *Server) listPersonas(c echo.Context) error {
	personas, err := s.services.Friends.ListPersonas(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, personas, "")
}
