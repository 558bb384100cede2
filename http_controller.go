package signin

import (
	"fmt"
	"net/netip"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// ClientIPLocalKey is the request-local key under which the transport
// adapter stores the client's remote IP. The setup handlers fail closed when
// it is absent.
const ClientIPLocalKey = "client_ip"

// RegisterSignInRoutes mounts the sign-in, sign-out, and admin setup routes.
func RegisterSignInRoutes[T any](app router.Router[T], opts ...SignInControllerOption) {

	controller := NewSignInController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Setup, controller.SetupShow).
		SetName("setup.get")
	app.Post(controller.Routes.Setup, controller.SetupPost).
		SetName("setup.post")
}

type SignInControllerRoutes struct {
	Login  string
	Logout string
	Setup  string
}

type SignInControllerViews struct {
	Login string
	Setup string
}

type SignInController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *SignInControllerRoutes
	Views        *SignInControllerViews
	Auther       *CookieAuthenticator
	Bootstrap    *AdminBootstrap
	ErrorHandler router.ErrorHandler
}

type SignInControllerOption func(*SignInController) *SignInController

func WithControllerRepo(repo RepositoryManager) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthenticator(auther *CookieAuthenticator) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.Auther = auther
		return c
	}
}

func WithControllerBootstrap(bootstrap *AdminBootstrap) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.Bootstrap = bootstrap
		return c
	}
}

func WithControllerLogger(logger Logger) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.Logger = logger
		return c
	}
}

func WithControllerDebug(debug bool) SignInControllerOption {
	return func(c *SignInController) *SignInController {
		c.Debug = debug
		return c
	}
}

func NewSignInController(opts ...SignInControllerOption) *SignInController {
	c := &SignInController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &SignInControllerRoutes{
			Login:  "/login",
			Logout: "/logout",
			Setup:  "/setup",
		},
		Views: &SignInControllerViews{
			Login: "login",
			Setup: "setup",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in signin controller...")
	}

	if c.Auther == nil {
		panic("Missing CookieAuthenticator in signin controller...")
	}

	if c.Bootstrap == nil {
		panic("Missing AdminBootstrap in signin controller...")
	}

	return c
}

func (a *SignInController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the user asked to be remembered
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *SignInController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= SIGN IN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("======================")
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		errs["authentication"] = "Invalid username or password!"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	return ctx.Redirect("/", router.StatusSeeOther)
}

func (a *SignInController) LogOut(ctx router.Context) error {
	if err := a.Auther.Logout(ctx); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *SignInController) SetupShow(ctx router.Context) error {
	origin, ok := a.clientOrigin(ctx)
	if !ok || !origin.Unmap().IsLoopback() {
		return ctx.Status(fiber.StatusForbidden).SendString("Access denied.")
	}

	canCreate, err := a.Bootstrap.CanCreate(ctx.Context(), origin)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Setup, router.ViewContext{
		"errors":     nil,
		"record":     nil,
		"can_create": canCreate,
	})
}

// SetupRequest is the admin bootstrap form payload
type SetupRequest struct {
	Password       string `form:"password" json:"password"`
	PasswordRepeat string `form:"password_repeat" json:"password_repeat"`
}

func (a *SignInController) SetupPost(ctx router.Context) error {
	origin, ok := a.clientOrigin(ctx)
	if !ok || !origin.Unmap().IsLoopback() {
		return ctx.Status(fiber.StatusForbidden).SendString("Access denied.")
	}

	payload := new(SetupRequest)
	if err := ctx.Bind(payload); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Setup, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	result, err := a.Bootstrap.TryCreate(ctx.Context(), origin, payload.Password, payload.PasswordRepeat)
	if err != nil {
		if IsValidationError(err) {
			var richErr *goerrors.Error
			message := err.Error()
			if goerrors.As(err, &richErr) {
				message = richErr.Message
			}

			return ctx.Render(a.Views.Setup, router.ViewContext{
				"errors": map[string]string{"validation": message},
				"record": payload,
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	if !result.Created() {
		// Expected on repeated setup-page loads, render as info not error.
		return ctx.Render(a.Views.Setup, router.ViewContext{
			"errors":  nil,
			"message": result.Message,
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": result.Message,
	}).Render(a.Views.Setup, router.ViewContext{
		"errors":  nil,
		"message": result.Message,
	})
}

// clientOrigin reads the client IP that the transport adapter stored in the
// request locals. A missing or unparseable value fails closed.
func (a *SignInController) clientOrigin(ctx router.Context) (netip.Addr, bool) {
	value := ctx.Locals(ClientIPLocalKey)

	raw, ok := value.(string)
	if !ok || raw == "" {
		return netip.Addr{}, false
	}

	origin, err := netip.ParseAddr(raw)
	if err != nil {
		a.Logger.Warn("unparseable client ip: %q", raw)
		return netip.Addr{}, false
	}

	return origin, true
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field/message map for template rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		out["error"] = err.Error()
		return out
	}

	for field, ferr := range verrs {
		out[field] = ferr.Error()
	}

	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
