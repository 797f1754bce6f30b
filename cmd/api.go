package cmd

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tokka/internal/ai"
	"github.com/tokka/internal/ai/langchain"
	"github.com/tokka/internal/api"
	"github.com/tokka/internal/api/auth"
	"github.com/tokka/internal/config"
	"github.com/tokka/internal/database"
	"github.com/tokka/internal/friends"
	"github.com/tokka/internal/messages"
	"github.com/tokka/internal/persona"
	"github.com/tokka/internal/rooms"
	"github.com/tokka/internal/users"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Tokka API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if port := c.Int("port"); port != 0 {
				cfg.Server.Port = port
			}

			db, err := database.Open(cfg.Database.URL, database.Options{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
			})
			if err != nil {
				return err
			}

			tokenService := auth.NewTokenService(cfg.Auth.JWTSecret,
				time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

			responder, err := buildResponder(cfg, db)
			if err != nil {
				return err
			}

			services := api.Services{
				Users:   users.NewService(db),
				Friends: friends.NewService(db),
				Rooms:   rooms.NewService(db),
				Messages: messages.NewService(db, responder,
					time.Duration(cfg.Responder.WaitSeconds)*time.Second),
			}

			fmt.Printf("Starting Tokka API server on port %d...\n", cfg.Server.Port)
			server := api.NewServer(cfg.Server.Port, db, tokenService, services)
			return server.Start()
		},
	}
}

// buildResponder wires the persona responder when a completion provider is
// configured. Without an API key the server still runs; sends simply never
// trigger a bot reply.
func buildResponder(cfg *config.Config, db *sql.DB) (messages.BotResponder, error) {
	if strings.TrimSpace(cfg.AI.APIKey) == "" {
		log.Warn().Msg("no AI api key configured, persona replies disabled")
		return nil, nil
	}

	provider, err := langchain.NewProvider(langchain.Config{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return nil, err
	}

	factory := ai.NewDefaultFactory()
	factory.Register(provider.Name(), provider)
	selected, err := factory.Create(cfg.AI.Provider, nil)
	if err != nil {
		return nil, err
	}

	return persona.NewResponder(persona.NewSQLStore(db), selected, persona.Options{
		MinDelay:     time.Duration(cfg.Responder.MinDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Responder.MaxDelayMs) * time.Millisecond,
		HistoryLimit: cfg.Responder.HistoryLimit,
	}), nil
}
