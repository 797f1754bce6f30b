package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tokka/internal/api/auth"
	"github.com/tokka/internal/friends"
	"github.com/tokka/internal/messages"
	"github.com/tokka/internal/rooms"
	"github.com/tokka/internal/users"
)

// Services bundles the core services the API dispatches to
type Services struct {
	Users    *users.Service
	Friends  *friends.Service
	Rooms    *rooms.Service
	Messages *messages.Service
}

// Server represents the API server
type Server struct {
	echo         *echo.Echo
	port         int
	db           *sql.DB
	tokenService *auth.TokenService
	services     Services
}

// requestValidator adapts go-playground/validator to echo's Validator hook
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// NewServer creates a new API server
func NewServer(port int, db *sql.DB, tokenService *auth.TokenService, services Services) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Validator = &requestValidator{validate: validator.New()}

	// Failures from echo itself (404s, auth middleware rejections, bind
	// errors) go through the same envelope as service failures.
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		he, ok := err.(*echo.HTTPError)
		if !ok {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
			fail(c, http.StatusInternalServerError, "internal server error")
			return
		}
		fail(c, he.Code, fmt.Sprint(he.Message))
	}

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:         e,
		port:         port,
		db:           db,
		tokenService: tokenService,
		services:     services,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	api := s.echo.Group("/api")

	// Auth (no credential required)
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	authed := api.Group("", auth.RequireAuth(s.tokenService))

	authed.GET("/auth/me", s.me)

	// Users
	authed.GET("/users/search", s.searchUsers)
	authed.PUT("/users/profile", s.updateProfile)

	// Personas
	authed.GET("/ai-personas", s.listPersonas)

	// Friends. The /friends/ai route must be registered before the
	// parameterized one so "ai" is not taken as a friend id.
	authed.GET("/friends", s.listFriends)
	authed.GET("/friends/blocked", s.listBlocked)
	authed.POST("/friends/ai", s.addAIFriend)
	authed.POST("/friends/:friendId", s.addFriend)
	authed.DELETE("/friends/:friendId", s.removeFriend)
	authed.POST("/friends/:friendId/block", s.blockFriend)
	authed.POST("/friends/:friendId/unblock", s.unblockFriend)

	// Rooms
	authed.GET("/rooms", s.listRooms)
	authed.POST("/rooms", s.createRoom)
	authed.GET("/rooms/:roomId", s.roomDetail)
	authed.POST("/rooms/:roomId/invite", s.invite)
	authed.POST("/rooms/:roomId/leave", s.leaveRoom)
	authed.PUT("/rooms/:roomId/read", s.markRead)

	// Messages; sends are rate limited per user
	authed.GET("/rooms/:roomId/messages", s.listMessages)
	authed.POST("/rooms/:roomId/messages", s.sendMessage, sendRateLimiter())
}

// sendRateLimiter bounds message sends per authenticated user
func sendRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(5),
			Burst:     10,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return auth.CurrentUser(c).UserID, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return fail(c, http.StatusForbidden, "could not identify sender")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return fail(c, http.StatusTooManyRequests, "sending too fast, slow down")
		},
	})
}

// Start begins the API server and blocks until interrupted
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}
