package main

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	signin "github.com/sessionware/go-signin"
)

//go:embed views
var viewsFS embed.FS

// Config is loaded from the environment. It satisfies signin.Config through
// its getters.
type Config struct {
	Addr           string        `env:"SIGNIN_ADDR" envDefault:":8572"`
	DSN            string        `env:"SIGNIN_DSN" envDefault:"file:signin.db?cache=shared"`
	CookieName     string        `env:"SIGNIN_COOKIE_NAME" envDefault:"signin_token"`
	RememberMeDays int           `env:"SIGNIN_REMEMBER_ME_DAYS" envDefault:"30"`
	SigningKey     string        `env:"SIGNIN_SIGNING_KEY" envDefault:"dev-signing-key"`
	TokenTTL       time.Duration `env:"SIGNIN_TOKEN_TTL" envDefault:"1h"`
	Issuer         string        `env:"SIGNIN_ISSUER" envDefault:"go-signin"`
	Audience       []string      `env:"SIGNIN_AUDIENCE" envSeparator:"," envDefault:"go-signin"`
	Debug          bool          `env:"SIGNIN_DEBUG"`
}

func (c Config) GetAuthCookieName() string        { return c.CookieName }
func (c Config) GetRememberMeDays() int           { return c.RememberMeDays }
func (c Config) GetSigningKey() string            { return c.SigningKey }
func (c Config) GetTokenExpiration() time.Duration { return c.TokenTTL }
func (c Config) GetIssuer() string                { return c.Issuer }
func (c Config) GetAudience() []string            { return c.Audience }

// PersistenceConfig adapts the flat env config to the persistence client.
type PersistenceConfig struct {
	Debug       bool
	Driver      string
	DSN         string
	PingTimeout time.Duration
}

func (p PersistenceConfig) GetDebug() bool                { return p.Debug }
func (p PersistenceConfig) GetDriver() string             { return p.Driver }
func (p PersistenceConfig) GetDSN() string                { return p.DSN }
func (p PersistenceConfig) GetServer() string             { return p.DSN }
func (p PersistenceConfig) GetOtelIdentifier() string     { return "" }
func (p PersistenceConfig) GetPingTimeout() time.Duration { return p.PingTimeout }

type App struct {
	config Config
	bunDB  *bun.DB
	repo   signin.RepositoryManager
	auth   *signin.Authenticator
	auther *signin.CookieAuthenticator
	boot   *signin.AdminBootstrap
	srv    router.Server[*fiber.App]
	logger *glog.BaseLogger
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("signin"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	if err := WithSignIn(ctx, app); err != nil {
		panic(err)
	}

	app.srv.Serve(cfg.Addr)

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.config.DSN)
	if err != nil {
		log.Fatal(err)
		return err
	}

	persistence.RegisterModel((*signin.User)(nil))
	persistence.RegisterModel((*signin.UserGroup)(nil))
	persistence.RegisterModel((*signin.GroupMembership)(nil))
	persistence.RegisterModel((*signin.AuthToken)(nil))

	cfg := PersistenceConfig{
		Debug:       app.config.Debug,
		Driver:      sqliteshim.ShimName,
		DSN:         app.config.DSN,
		PingTimeout: 5 * time.Second,
	}

	dialect := sqlitedialect.New()
	client, err := persistence.New(cfg, db, dialect)
	if err != nil {
		log.Fatal(err)
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(signin.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = signin.NewRepositoryManager(client.DB())

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	templates, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return err
	}

	engine := django.NewFileSystem(http.FS(templates), ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		fapp := fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		})

		// The setup handlers read the client IP from request locals; it has
		// to be captured at the transport before routing.
		fapp.Use(func(c *fiber.Ctx) error {
			c.Locals(signin.ClientIPLocalKey, c.IP())
			return c.Next()
		})

		return router.DefaultFiberOptions(fapp)
	})

	srv.Router().WithLogger(app.GetLogger("router"))
	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	app.srv = srv

	return nil
}

func WithSignIn(ctx context.Context, app *App) error {
	if err := app.repo.Validate(); err != nil {
		return err
	}

	activity := app.GetLogger("activity")
	sink := signin.ActivitySinkFunc(func(ctx context.Context, event signin.ActivityEvent) error {
		activity.Info("auth activity",
			"event", string(event.EventType),
			"username", event.Username,
		)
		return nil
	})

	app.repo.OnCommit(signin.CommitListenerFunc(func(ctx context.Context, event signin.CommitEvent) {
		app.GetLogger("store").Info("committed", "event", event.Name)
	}))

	app.auth = signin.NewAuthenticator(app.repo).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(sink)

	mint, err := signin.NewTokenMint(app.config)
	if err != nil {
		return err
	}

	auther, err := signin.NewCookieAuthenticator(app.auth, app.config)
	if err != nil {
		return err
	}
	auther.Logger = app.GetLogger("auth:http")
	auther.WithTokenMint(mint)
	app.auther = auther

	app.boot = signin.NewAdminBootstrap(app.repo).
		WithLogger(app.GetLogger("bootstrap")).
		WithActivitySink(sink)

	app.srv.Router().Use(auther.RefreshMiddleware())

	app.srv.Router().Get("/", func(c router.Context) error {
		token, _ := signin.TokenFromContext(c.Context())
		return c.Render("home", router.ViewContext{
			"signed_in": token != nil,
		})
	})

	signin.RegisterSignInRoutes(app.srv.Router().Group("/"),
		signin.WithControllerRepo(app.repo),
		signin.WithControllerAuthenticator(auther),
		signin.WithControllerBootstrap(app.boot),
		signin.WithControllerLogger(app.GetLogger("controller")),
		signin.WithControllerDebug(app.config.Debug),
	)

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
