package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/linuxautomates/gitsei-sub043/pkg/log"
	"github.com/linuxautomates/gitsei-sub043/pkg/persistence/postgresql"
)

func main() {
	cmd := &cli.Command{
		Name:                  "runbookd",
		Usage:                 "Operate the runbook store database",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			healthCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("runbookd").Error("command failed", "error", err)
		os.Exit(1)
	}
}

// connect sets up logging and opens the store, running pending migrations.
func connect(ctx context.Context, command *cli.Command) (*postgresql.Persistence, error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("runbookd")

	return postgresql.NewPersistence(ctx, logger, command.String("database-url"))
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Action: func(ctx context.Context, command *cli.Command) error {
			p, err := connect(ctx, command)
			if err != nil {
				return err
			}

			return p.Close(ctx)
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Upsert the bundled template catalog",
		Action: func(ctx context.Context, command *cli.Command) error {
			p, err := connect(ctx, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := p.Close(ctx); err != nil {
					log.WithModule("runbookd").ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			return p.Templates().SeedTemplates(ctx)
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Verify database connectivity",
		Action: func(ctx context.Context, command *cli.Command) error {
			p, err := connect(ctx, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := p.Close(ctx); err != nil {
					log.WithModule("runbookd").ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			return p.HealthCheck(ctx)
		},
	}
}
