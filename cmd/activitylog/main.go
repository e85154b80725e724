package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/activitylog/internal/app"
	"github.com/atvirokodosprendimai/activitylog/internal/config"
	"github.com/atvirokodosprendimai/activitylog/internal/core/usecase"
	"github.com/atvirokodosprendimai/activitylog/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "activitylog",
		Usage: "Per-subject activity logs with typed, versioned events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Optional dotenv file loaded before reading ACTIVITYLOG_* variables",
			},
			&cli.StringFlag{
				Name:  "db-driver",
				Usage: "Database driver (sqlite or postgres); overrides ACTIVITYLOG_DB_DRIVER",
			},
			&cli.StringFlag{
				Name:  "db-dsn",
				Usage: "Database DSN or sqlite file path; overrides ACTIVITYLOG_DB_DSN",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			apiKeyCommand(),
			verifyCommand(),
			outboxCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		logrus.WithError(err).Fatal("activitylog")
	}
}

// open loads configuration, applies flag overrides and wires the app.
func open(ctx context.Context, c *cli.Command) (*app.App, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if v := c.String("db-driver"); v != "" {
		cfg.DB.Driver = v
	}
	if v := c.String("db-dsn"); v != "" {
		cfg.DB.DSN = v
	}
	if v := c.String("addr"); v != "" {
		cfg.HTTP.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Log.WithError(err).Warn("close resources")
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address; overrides ACTIVITYLOG_HTTP_ADDR"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := open(ctx, c)
			if err != nil {
				return err
			}
			defer closeApp(a)

			server := a.HTTPServer()
			errCh := make(chan error, 1)
			go func() {
				a.Log.WithField("addr", server.Addr).Info("listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				a.Log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := open(ctx, c)
			if err != nil {
				return err
			}
			defer closeApp(a)
			a.Log.Info("migrations applied")
			return nil
		},
	}
}

func apiKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apikey",
		Usage: "Manage API keys",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Issue a key bound to a tenant and acting user; prints the token once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Required: true, Usage: "Tenant UUID"},
					&cli.StringFlag{Name: "name", Value: "default", Usage: "Key name"},
					&cli.StringFlag{Name: "actor-id", Usage: "Acting user UUID (generated when empty)"},
					&cli.StringFlag{Name: "actor-name", Required: true, Usage: "Acting user's full name"},
					&cli.StringSliceFlag{Name: "actor-role", Usage: "Acting user's role, repeatable"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					tenant, err := uuid.Parse(c.String("tenant"))
					if err != nil {
						return fmt.Errorf("tenant: %w", err)
					}
					var actorID uuid.UUID
					if raw := c.String("actor-id"); raw != "" {
						if actorID, err = uuid.Parse(raw); err != nil {
							return fmt.Errorf("actor-id: %w", err)
						}
					}

					a, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer closeApp(a)

					token, key, err := a.Auth.IssueKey(ctx, usecase.IssueKeyInput{
						TenantID:   tenant,
						Name:       c.String("name"),
						ActorID:    actorID,
						ActorName:  c.String("actor-name"),
						ActorRoles: c.StringSlice("actor-role"),
					})
					if err != nil {
						return err
					}
					a.Log.WithFields(logrus.Fields{
						"tenant_id": key.TenantID,
						"name":      key.Name,
						"actor_id":  key.ActorID,
					}).Info("api key issued")
					_, err = fmt.Fprintln(c.Root().Writer, token)
					return err
				},
			},
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Render and schema-check every stored activity entry of a tenant",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true, Usage: "Tenant UUID"},
			&cli.IntFlag{Name: "batch-size", Value: 500, Usage: "Entries read per query"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			tenant, err := uuid.Parse(c.String("tenant"))
			if err != nil {
				return fmt.Errorf("tenant: %w", err)
			}
			a, err := open(ctx, c)
			if err != nil {
				return err
			}
			defer closeApp(a)

			report, err := a.Activity.Verify(ctx, tenant, c.Int("batch-size"))
			if err != nil {
				return err
			}
			for _, issue := range report.Issues {
				a.Log.WithFields(logrus.Fields{
					"kind":     issue.Kind,
					"entry_id": issue.EntryID,
					"key":      issue.Key,
				}).Error(issue.Problem)
			}
			a.Log.WithFields(logrus.Fields{"checked": report.Checked, "issues": len(report.Issues)}).Info("verify finished")
			if !report.OK() {
				return fmt.Errorf("%d of %d entries cannot be rendered", len(report.Issues), report.Checked)
			}
			return nil
		},
	}
}

func outboxCommand() *cli.Command {
	return &cli.Command{
		Name:  "outbox",
		Usage: "Deliver queued activity events",
		Commands: []*cli.Command{
			{
				Name:  "drain",
				Usage: "Publish pending outbox events once, or keep polling with --follow",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "follow", Usage: "Keep dispatching until interrupted"},
					&cli.StringFlag{Name: "publisher", Usage: "log, webhook or kafka; overrides ACTIVITYLOG_OUTBOX_PUBLISHER"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					a, err := open(ctx, c)
					if err != nil {
						return err
					}
					defer closeApp(a)

					if v := strings.TrimSpace(c.String("publisher")); v != "" {
						a.Config.Outbox.Publisher = v
						if err := a.Config.Validate(); err != nil {
							return err
						}
					}
					pub, closer, err := a.Publisher()
					if err != nil {
						return err
					}
					defer closer.Close()

					_, err = a.Drain(ctx, pub, c.Bool("follow"))
					return err
				},
			},
		},
	}
}
