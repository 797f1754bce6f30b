package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tokka/internal/config"
	"github.com/tokka/internal/database"
)

// SetupDBCommand returns the CLI command that creates the schema and seeds
// the persona catalog. Safe to re-run.
func SetupDBCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-db",
		Usage: "Create the database schema and seed AI personas",
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required (TOKKA_DATABASE_URL)")
			}

			db, err := database.Open(cfg.Database.URL, database.Options{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Setup(context.Background(), db); err != nil {
				return err
			}

			fmt.Println("Database schema created and personas seeded.")
			return nil
		},
	}
}
