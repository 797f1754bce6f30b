package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokka/internal/errs"
)

func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestServiceErrorTranslation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", errs.New(errs.ErrValidation, "content must not be empty"), http.StatusBadRequest},
		{"self reference", errs.New(errs.ErrSelfReference, "cannot add yourself"), http.StatusBadRequest},
		{"already blocked", errs.New(errs.ErrAlreadyBlocked, "user is blocked"), http.StatusBadRequest},
		{"not blocked", errs.New(errs.ErrNotBlocked, "user is not blocked"), http.StatusBadRequest},
		{"ai exclusivity", errs.New(errs.ErrAIExclusivity, "room already has an AI member"), http.StatusBadRequest},
		{"unauthorized", errs.New(errs.ErrUnauthorized, "invalid credentials"), http.StatusUnauthorized},
		{"forbidden", errs.New(errs.ErrForbidden, "not a member of this room"), http.StatusForbidden},
		{"not found", errs.New(errs.ErrNotFound, "user not found"), http.StatusNotFound},
		{"conflict", errs.New(errs.ErrConflict, "already friends"), http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext(t)
			require.NoError(t, serviceError(c, tc.err))

			assert.Equal(t, tc.wantStatus, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tc.err.Error(), env.Message)
		})
	}
}

func TestServiceErrorHidesInternalDetail(t *testing.T) {
	c, rec := newTestContext(t)
	require.NoError(t, serviceError(c, errors.New("pq: connection refused on 10.0.0.3")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "internal server error", env.Message)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestOkEnvelopeShape(t *testing.T) {
	c, rec := newTestContext(t)
	require.NoError(t, ok(c, http.StatusCreated, map[string]string{"id": "abc"}, "created"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "created", env.Message)
	require.IsType(t, map[string]interface{}{}, env.Data)
	assert.Equal(t, "abc", env.Data.(map[string]interface{})["id"])
}

func TestOkWithMetaEnvelopeShape(t *testing.T) {
	c, rec := newTestContext(t)
	require.NoError(t, okWithMeta(c, http.StatusOK, []string{}, map[string]int{"count": 0}))

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Empty(t, env.Message)
	assert.NotNil(t, env.Meta)
}
