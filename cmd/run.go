package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"rsstoot/db"
	"rsstoot/feed"
	"rsstoot/mastodon"
	"rsstoot/models"
	"rsstoot/runner"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:        "run",
		Usage:       "Execute a single feed run and exit",
		Description: `Fetches all active feeds once, posts unseen items to their linked accounts and prints the run report. Useful for cron setups and for testing feed configuration.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")

			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}

			store, err := db.New(database)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := runner.NewEngine(store, feed.NewReader(), mastodon.NewClient())
			outcome := engine.RunOnce(ctx.Context, models.TriggerManual)

			for _, line := range outcome.Lines {
				fmt.Println(line)
			}
			fmt.Printf("Posted: %d  Skipped: %d  Errors: %d\n", outcome.Posted, outcome.Skipped, outcome.Errors)

			return nil
		},
	}
}
