package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"rsstoot/config"
	"rsstoot/db"
	"rsstoot/feed"
	"rsstoot/mastodon"
	"rsstoot/runner"
	"rsstoot/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the scheduler and the admin API server",
		Description: `Starts the rsstoot service.

		Runs pending database migrations, starts the recurring feed run on the
		configured interval, and serves the JSON API used to manage feeds,
		accounts and the run log.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				EnvVars: []string{"RSSTOOT_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   5000,
				Usage:   "HTTP port to listen on",
				EnvVars: []string{"RSSTOOT_PORT"},
			},
			&cli.IntFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Value:   30,
				Usage:   "Minutes between scheduled feed runs",
				EnvVars: []string{"RSSTOOT_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "public-url",
				Usage:   "Externally reachable base URL, used for OAuth redirects",
				Value:   "http://localhost:5000",
				EnvVars: []string{"RSSTOOT_PUBLIC_URL"},
			},
			&cli.StringFlag{
				Name:    "admin-user",
				Value:   "admin",
				Usage:   "Basic auth user for the admin API",
				EnvVars: []string{"RSSTOOT_ADMIN_USER"},
			},
			&cli.StringFlag{
				Name:    "admin-password",
				Value:   "admin",
				Usage:   "Basic auth password for the admin API",
				EnvVars: []string{"RSSTOOT_ADMIN_PASSWORD"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg := settingsFromFlags(ctx)

			if err := db.Migrate(cfg.Database); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}

			store, err := db.New(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			client := mastodon.NewClient()
			engine := runner.NewEngine(store, feed.NewReader(), client)
			scheduler := runner.NewScheduler(engine)
			scheduler.Configure(time.Duration(cfg.IntervalMinutes) * time.Minute)
			scheduler.Start()
			defer scheduler.Stop()

			app := server.Server(&server.ServerConfig{
				Store:         store,
				Scheduler:     scheduler,
				Mastodon:      client,
				PublicURL:     cfg.PublicURL,
				AdminUser:     cfg.AdminUser,
				AdminPassword: cfg.AdminPassword,
			})

			// Graceful shutdown
			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			go func() {
				<-interrupt
				log.Info("Gracefully shutting down...")
				scheduler.Stop()
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Error("Error shutting down server: ", err)
				}
			}()

			log.WithFields(log.Fields{
				"port":     cfg.Port,
				"interval": cfg.IntervalMinutes,
				"database": cfg.Database,
			}).Info("Starting rsstoot")

			return app.Listen(fmt.Sprintf(":%d", cfg.Port))
		},
	}
}

// settingsFromFlags merges the optional TOML config file with CLI flags.
// Flags set explicitly (or via environment) win over file values.
func settingsFromFlags(ctx *cli.Context) *config.Config {
	cfg := &config.Config{
		Database:        ctx.String("database"),
		Port:            ctx.Int("port"),
		PublicURL:       ctx.String("public-url"),
		IntervalMinutes: ctx.Int("interval"),
		AdminUser:       ctx.String("admin-user"),
		AdminPassword:   ctx.String("admin-password"),
	}

	path := ctx.String("config")
	if path == "" {
		return cfg
	}

	fileCfg, err := config.LoadConfig(path)
	if err != nil {
		log.WithFields(log.Fields{"path": path, "error": err}).Warn("Could not load config file")
		return cfg
	}

	if fileCfg.Database != "" && !ctx.IsSet("database") {
		cfg.Database = fileCfg.Database
	}
	if fileCfg.Port != 0 && !ctx.IsSet("port") {
		cfg.Port = fileCfg.Port
	}
	if fileCfg.PublicURL != "" && !ctx.IsSet("public-url") {
		cfg.PublicURL = fileCfg.PublicURL
	}
	if fileCfg.IntervalMinutes != 0 && !ctx.IsSet("interval") {
		cfg.IntervalMinutes = fileCfg.IntervalMinutes
	}
	if fileCfg.AdminUser != "" && !ctx.IsSet("admin-user") {
		cfg.AdminUser = fileCfg.AdminUser
	}
	if fileCfg.AdminPassword != "" && !ctx.IsSet("admin-password") {
		cfg.AdminPassword = fileCfg.AdminPassword
	}
	return cfg
}
