// Package server exposes the status surface and the admin JSON API.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"rsstoot/db"
	"rsstoot/mastodon"
	"rsstoot/models"
	"rsstoot/runner"
)

type ServerConfig struct {

	// Store backs all persistent reads and writes.
	Store *db.Store

	// Scheduler owns the recurring job and manual triggers.
	Scheduler *runner.Scheduler

	// Mastodon client used for the OAuth handshake.
	Mastodon *mastodon.Client

	// PublicURL is the externally reachable base URL for OAuth redirects.
	PublicURL string

	// Basic-auth credentials for the /api group.
	AdminUser     string
	AdminPassword string
}

// Server returns a fiber.App serving the rsstoot JSON API.
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// The instance redirects the browser here after authorization, so
	// this route stays outside the admin guard.
	app.Get("/oauth/callback", oauthCallback(config))

	api := app.Group("/api", basicauth.New(basicauth.Config{
		Users: map[string]string{config.AdminUser: config.AdminPassword},
	}))

	api.Get("/status", getStatus(config))
	api.Post("/run", func(c *fiber.Ctx) error {
		config.Scheduler.TriggerNow()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": true})
	})

	api.Get("/runs", getRuns(config))
	api.Delete("/runs", func(c *fiber.Ctx) error {
		if err := config.Store.ClearRuns(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"cleared": true})
	})

	api.Get("/feeds", getFeeds(config))
	api.Post("/feeds", createFeed(config))
	api.Put("/feeds/:id", updateFeed(config))
	api.Post("/feeds/:id/toggle", toggleFeed(config))
	api.Delete("/feeds/:id", deleteFeed(config))

	api.Get("/accounts", getAccounts(config))
	api.Delete("/accounts/:id", deleteAccount(config))
	api.Post("/accounts/connect", connectAccount(config))

	return app
}

func getStatus(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := config.Store.GetStats(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		last, err := config.Store.LatestRun(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"nextRun": config.Scheduler.NextRunInfo(),
			"stats":   stats,
			"lastRun": last,
		})
	}
}

func getRuns(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		runs, err := config.Store.RecentRuns(c.Context(), 100)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if runs == nil {
			runs = []models.RunRecord{}
		}
		return c.JSON(runs)
	}
}

type feedRequest struct {
	URL      string  `json:"url"`
	Name     string  `json:"name"`
	Hashtags string  `json:"hashtags"`
	Accounts []int64 `json:"accounts"`
}

func (r *feedRequest) validate() error {
	if !strings.HasPrefix(r.URL, "http://") && !strings.HasPrefix(r.URL, "https://") {
		return fiber.NewError(fiber.StatusBadRequest, "invalid feed URL")
	}
	if r.Name == "" {
		r.Name = hostOf(r.URL)
	}
	return nil
}

type feedResponse struct {
	models.Feed
	PostCount int64   `json:"postCount"`
	Accounts  []int64 `json:"accounts"`
}

func getFeeds(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		feeds, err := config.Store.Feeds(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		out := make([]feedResponse, 0, len(feeds))
		for _, f := range feeds {
			count, err := config.Store.PostedCount(c.Context(), f.ID, 0)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			ids, err := config.Store.FeedAccountIDs(c.Context(), f.ID)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			out = append(out, feedResponse{Feed: f, PostCount: count, Accounts: ids})
		}
		return c.JSON(out)
	}
}

func createFeed(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req feedRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := req.validate(); err != nil {
			return err
		}

		id, err := config.Store.CreateFeed(c.Context(), req.URL, req.Name, req.Hashtags)
		if err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err := config.Store.SetFeedAccounts(c.Context(), id, req.Accounts); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
	}
}

func updateFeed(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid feed id")
		}
		var req feedRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := req.validate(); err != nil {
			return err
		}

		if err := config.Store.UpdateFeed(c.Context(), int64(id), req.URL, req.Name, req.Hashtags); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if err := config.Store.SetFeedAccounts(c.Context(), int64(id), req.Accounts); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"updated": true})
	}
}

func toggleFeed(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid feed id")
		}
		if err := config.Store.ToggleFeed(c.Context(), int64(id)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"toggled": true})
	}
}

func deleteFeed(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid feed id")
		}
		if err := config.Store.DeleteFeed(c.Context(), int64(id)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"deleted": true})
	}
}

func getAccounts(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accounts, err := config.Store.Accounts(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		type accountResponse struct {
			models.Account
			PostCount int64 `json:"postCount"`
		}
		out := make([]accountResponse, 0, len(accounts))
		for _, a := range accounts {
			count, err := config.Store.PostedCount(c.Context(), 0, a.ID)
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			out = append(out, accountResponse{Account: a, PostCount: count})
		}
		return c.JSON(out)
	}
}

func deleteAccount(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid account id")
		}
		if err := config.Store.DeleteAccount(c.Context(), int64(id)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"deleted": true})
	}
}

// pendingAuth is the OAuth state stashed between the connect call and
// the instance's redirect back to the callback.
type pendingAuth struct {
	Instance string                  `json:"instance"`
	Creds    mastodon.AppCredentials `json:"creds"`
}

func (config *ServerConfig) redirectURI() string {
	return strings.TrimRight(config.PublicURL, "/") + "/oauth/callback"
}

func connectAccount(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Instance string `json:"instance"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		instance := strings.TrimRight(strings.TrimSpace(req.Instance), "/")
		if !strings.HasPrefix(instance, "http://") && !strings.HasPrefix(instance, "https://") {
			return fiber.NewError(fiber.StatusBadRequest, "invalid instance URL")
		}

		creds, err := config.Mastodon.RegisterApp(c.Context(), instance, config.redirectURI())
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}

		state := randomToken()
		pending, err := json.Marshal(pendingAuth{Instance: instance, Creds: creds})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if err := config.Store.SetSetting(c.Context(), "oauth_"+state, string(pending)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{
			"authorizeUrl": mastodon.AuthorizeURL(instance, creds.ClientID, config.redirectURI(), state),
		})
	}
}

func oauthCallback(config *ServerConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := c.Query("code")
		state := c.Query("state")

		pendingJSON, err := config.Store.GetSetting(c.Context(), "oauth_"+state, "")
		if err != nil || code == "" || pendingJSON == "" {
			return fiber.NewError(fiber.StatusBadRequest, "invalid OAuth state")
		}
		var pending pendingAuth
		if err := json.Unmarshal([]byte(pendingJSON), &pending); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "corrupted OAuth state")
		}

		token, err := config.Mastodon.ExchangeCode(c.Context(), pending.Instance, pending.Creds, config.redirectURI(), code)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}

		info, err := config.Mastodon.VerifyCredentials(c.Context(), pending.Instance, token)
		if err != nil {
			log.WithFields(log.Fields{"instance": pending.Instance, "error": err}).Warn("Could not verify credentials")
		}
		name := "@" + lo.Ternary(info.Acct != "", info.Acct, "unknown")

		id, err := config.Store.UpsertAccount(c.Context(), models.Account{
			InstanceURL:  pending.Instance,
			ClientID:     pending.Creds.ClientID,
			ClientSecret: pending.Creds.ClientSecret,
			AccessToken:  token,
			AccountName:  name,
			AccountURL:   info.URL,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		if err := config.Store.DeleteSetting(c.Context(), "oauth_"+state); err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("Could not clean up OAuth state")
		}

		log.WithFields(log.Fields{"account": name, "instance": pending.Instance}).Info("Account connected")
		return c.JSON(fiber.Map{"connected": name, "id": id})
	}
}

func hostOf(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if i := strings.IndexAny(trimmed, "/?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if trimmed == "" {
		return rawURL
	}
	return trimmed
}

func randomToken() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(buf)
}
