package cmd

import (
	"fmt"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/urfave/cli/v2"

	"rsstoot/db"
	"rsstoot/mastodon"
	"rsstoot/models"
)

func accountCmd() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage Mastodon accounts",
		Subcommands: []*cli.Command{
			accountAddCmd(),
			accountListCmd(),
		},
	}
}

// accountAddCmd registers an account from an existing access token,
// e.g. one created under Preferences > Development on the instance.
// The browser OAuth flow on the serve command is the usual path.
func accountAddCmd() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Add a Mastodon account using an access token",
		Description: `Prompts for an instance URL and an access token, verifies the token against the instance and stores the account.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			instance, err := prompt.New().Ask("Instance URL:").Input("https://mastodon.social")
			if err != nil {
				return err
			}
			instance = strings.TrimRight(strings.TrimSpace(instance), "/")
			if !strings.HasPrefix(instance, "http") {
				return fmt.Errorf("instance URL must start with http(s): %s", instance)
			}

			token, err := prompt.New().Ask("Access token:").Input("", input.WithEchoMode(input.EchoNone))
			if err != nil {
				return err
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("access token must not be empty")
			}

			client := mastodon.NewClient()
			info, err := client.VerifyCredentials(ctx.Context, instance, token)
			if err != nil {
				return fmt.Errorf("could not verify credentials against %s: %w", instance, err)
			}

			if err := db.Migrate(ctx.String("database")); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			store, err := db.New(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			name := "@" + info.Acct
			if info.Acct == "" {
				name = "@unknown"
			}

			id, err := store.UpsertAccount(ctx.Context, models.Account{
				InstanceURL: instance,
				AccessToken: token,
				AccountName: name,
				AccountURL:  info.URL,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Added account %s (id %d) on %s\n", name, id, instance)
			return nil
		},
	}
}

func accountListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List connected Mastodon accounts",
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			store, err := db.New(ctx.String("database"))
			if err != nil {
				return err
			}
			defer store.Close()

			accounts, err := store.Accounts(ctx.Context)
			if err != nil {
				return err
			}

			if len(accounts) == 0 {
				fmt.Println("No accounts connected.")
				return nil
			}

			for _, account := range accounts {
				fmt.Printf("%d\t%s\t%s\n", account.ID, account.AccountName, account.InstanceURL)
			}
			return nil
		},
	}
}
