package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tokka/internal/api/auth"
)

type sendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type messagesMeta struct {
	Count   int  `json:"count"`
	HasMore bool `json:"hasMore"`
}

func (s *Server) listMessages(c echo.Context) error {
	claims := auth.CurrentUser(c)

	roomID, valid := pathUUID(c, "roomId")
	if !valid {
		return fail(c, http.StatusNotFound, "room not found")
	}

	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return fail(c, http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}

	var before *time.Time
	if beforeStr := c.QueryParam("before"); beforeStr != "" {
		parsed, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid before cursor")
		}
		before = &parsed
	}

	page, err := s.services.Messages.List(c.Request().Context(), claims.UserID, roomID, before, limit)
	if err != nil {
		return serviceError(c, err)
	}

	return okWithMeta(c, http.StatusOK, page.Messages, messagesMeta{
		Count:   len(page.Messages),
		HasMore: page.HasMore,
	})
}

func (s *Server) sendMessage(c echo.Context) error {
	claims := auth.CurrentUser(c)

	roomID, valid := pathUUID(c, "roomId")
	if !valid {
		return fail(c, http.StatusNotFound, "room not found")
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	msg, err := s.services.Messages.Send(c.Request().Context(), claims.UserID, roomID, req.Content)
	if err != nil {
		return serviceError(c, err)
	}
	return ok(c, http.StatusCreated, msg, "message sent")
}
