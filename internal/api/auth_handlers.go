package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tokka/internal/api/auth"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User      interface{} `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, "email, password and nickname are required")
	}

	user, err := s.services.Users.Register(c.Request().Context(), req.Email, req.Password, req.Nickname)
	if err != nil {
		return serviceError(c, err)
	}

	token, expiresAt, err := s.tokenService.CreateToken(user)
	if err != nil {
		return serviceError(c, err)
	}

	return ok(c, http.StatusCreated, authResponse{User: user, Token: token, ExpiresAt: expiresAt}, "registration complete")
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, "email and password are required")
	}

	user, err := s.services.Users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return serviceError(c, err)
	}

	token, expiresAt, err := s.tokenService.CreateToken(user)
	if err != nil {
		return serviceError(c, err)
	}

	return ok(c, http.StatusOK, authResponse{User: user, Token: token, ExpiresAt: expiresAt}, "login successful")
}

func (s *Server) me(c echo.Context) error {
	claims := auth.CurrentUser(c)

	user, err := s.services.Users.GetByID(c.Request().Context(), claims.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, user, "")
}
