package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func RootApp() *cli.App {
	return &cli.App{
		Name:  "rsstoot",
		Usage: "Republish RSS and Atom feeds to Mastodon accounts",
		Description: `rsstoot polls a set of syndication feeds on a fixed interval and
		republishes new items to one or more linked Mastodon accounts,
		posting each item at most once per feed and account.

		Feeds, accounts and run history live in an SQLite database and are
		managed through the JSON API served by the serve command.

		Flags can generally be set via environment variables, e.g.:

		--database => RSSTOOT_DATABASE=rsstoot.db
		--port => RSSTOOT_PORT=5000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			runCmd(),
			migrateCmd(),
			accountCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func databaseFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   "rsstoot.db",
		Usage:   "SQLite database file location",
		EnvVars: []string{"RSSTOOT_DATABASE"},
	}
}
