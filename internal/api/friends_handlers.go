package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tokka/internal/api/auth"
)

type addAIFriendRequest struct {
	PersonaID string `json:"personaId" validate:"required"`
}

// pathUUID extracts and validates a UUID path parameter before it reaches
// SQL, so malformed ids fail fast instead of as cast errors.
func pathUUID(c echo.Context, name string) (string, bool) {
	value := c.Param(name)
	if _, err := uuid.Parse(value); err != nil {
		return "", false
	}
	return value, true
}

func (s *Server) listFriends(c echo.Context) error {
	claims := auth.CurrentUser(c)

	result, err := s.services.Friends.ListFriends(c.Request().Context(), claims.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, result, "")
}

func (s *Server) listBlocked(c echo.Context) error {
	claims := auth.CurrentUser(c)

	result, err := s.services.Friends.ListBlocked(c.Request().Context(), claims.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, result, "")
}

func (s *Server) addFriend(c echo.Context) error {
	claims := auth.CurrentUser(c)

	friendID, valid := pathUUID(c, "friendId")
	if !valid {
		return fail(c, http.StatusNotFound, "user not found")
	}

	friend, err := s.services.Friends.AddFriend(c.Request().Context(), claims.UserID, friendID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusCreated, friend, "friend added")
}

func (s *Server) addAIFriend(c echo.Context) error {
	claims := auth.CurrentUser(c)

	var req addAIFriendRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, "select a persona")
	}
	if _, err := uuid.Parse(req.PersonaID); err != nil {
		return fail(c, http.StatusNotFound, "persona not found")
	}

	bot, err := s.services.Friends.AddAIFriend(c.Request().Context(), claims.UserID, req.PersonaID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusCreated, bot, "AI friend added")
}

func (s *Server) removeFriend(c echo.Context) error {
	claims := auth.CurrentUser(c)

	friendID, valid := pathUUID(c, "friendId")
	if !valid {
		return fail(c, http.StatusNotFound, "user not found")
	}

	if err := s.services.Friends.RemoveFriend(c.Request().Context(), claims.UserID, friendID); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, nil, "friend removed")
}

func (s *Server) blockFriend(c echo.Context) error {
	claims := auth.CurrentUser(c)

	friendID, valid := pathUUID(c, "friendId")
	if !valid {
		return fail(c, http.StatusNotFound, "user not found")
	}

	if err := s.services.Friends.Block(c.Request().Context(), claims.UserID, friendID); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, nil, "user blocked")
}

func (s *Server) unblockFriend(c echo.Context) error {
	claims := auth.CurrentUser(c)

	friendID, valid := pathUUID(c, "friendId")
	if !valid {
		return fail(c, http.StatusNotFound, "user not found")
	}

	if err := s.services.Friends.Unblock(c.Request().Context(), claims.UserID, friendID); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, nil, "user unblocked")
}
