package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tokka/internal/api/auth"
)

type createRoomRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,uuid"`
}

type inviteRequest struct {
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,uuid"`
}

func (s *Server) listRooms(c echo.Context) error {
	claims := auth.CurrentUser(c)

	result, err := s.services.Rooms.ListRooms(c.Request().Context(), claims.UserID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, result, "")
}

func (s *Server) createRoom(c echo.Context) error {
	claims := auth.CurrentUser(c)

	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, "select at least one member")
	}

	room, created, err := s.services.Rooms.CreateRoom(c.Request().Context(), claims.UserID, req.Name, req.MemberIDs)
	if err != nil {
		return serviceError(c, err)
	}
	if !created {
		return ok(c, http.StatusOK, room, "returning existing room")
	}
	return ok(c, http.StatusCreated, room, "room created")
}

func (s *Server) roomDetail(c echo.Context) error {
	claims := auth.CurrentUser(c)

	roomID, valid := pathUUID(c, "roomId")
	if !valid {
		return fail(c, http.StatusNotFound, "room not found")
	}

	detail, err := s.services.Rooms.GetRoomDetail(c.Request().Context(), claims.UserID, roomID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, detail, "")
}

func (s *Server) invite(c echo.Context) error {
	claims := auth.CurrentUser(c)

	roomID, valid := pathUUID(c, "roomId")
	if !valid {
		return fail(c, http.StatusNotFound, "room not found")
	}

	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, "select members to invite")
	}

	if err := s.services.Rooms.Invite(c.Request().Context(), claims.UserID, roomID, req.MemberIDs); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, nil, "members invited")
}

func (s *Server) leaveRoom(c echo.Context) error {
	claims := auth.CurrentUser(c)

	roomID, valid := pathUUID(c, "roomId")
	if !valid {
		return fail(c, http.StatusNotFound, "room not found")
	}

	if err := s.services.Rooms.Leave(c.Request().Context(), claims.UserID, roomID); err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, nil, "left the room")
}

func (s *Server) markRead(c echo.Context) error {
	claims := auth.CurrentUser(c)

	roomID, valid := pathUUID(c, "roomId")
	if !valid {
		return fail(c, http.StatusNotFound, "room not found")
	}

	lastReadAt, err := s.services.Rooms.MarkRead(c.Request().Context(), claims.UserID, roomID)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusOK, map[string]interface{}{"last_read_at": lastReadAt}, "marked as read")
}
