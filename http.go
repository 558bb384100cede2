package signin

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// LoginPayload is the credential payload the cookie authenticator consumes.
type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

// CookieAuthenticator bridges the Authenticator and an HTTP cookie: it sets
// the opaque token value as the auth cookie after sign in, clears it with a
// past expiry on sign out, and renews it on authenticated requests.
type CookieAuthenticator struct {
	auth             *Authenticator
	cfg              Config
	mint             *TokenMint
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewCookieAuthenticator(auth *Authenticator, cfg Config) (*CookieAuthenticator, error) {
	if auth == nil {
		return nil, errors.New("authenticator is required", errors.CategoryBadInput)
	}

	a := &CookieAuthenticator{
		auth:   auth,
		cfg:    cfg,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// WithTokenMint enables the X-Jwt response header on successful sign in.
func (a *CookieAuthenticator) WithTokenMint(mint *TokenMint) *CookieAuthenticator {
	a.mint = mint
	return a
}

// Login signs the payload's credentials in and sets the auth cookie. A
// remember-me request additionally marks the token persistent for the
// configured number of days.
func (a *CookieAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	token, err := a.auth.SignIn(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}

	if payload.GetExtendedSession() {
		token, err = a.auth.MarkRememberMe(ctx.Context(), token, a.cfg.GetRememberMeDays())
		if err != nil {
			a.Logger.Error("Login remember-me error: %s", err)
			return err
		}
	}

	a.setAuthCookie(ctx, token)

	if a.mint != nil {
		jot, _, err := a.mint.Mint(payload.GetIdentifier(), token)
		if err != nil {
			a.Logger.Warn("token mint error: %s", err)
		} else {
			ctx.SetHeader(XJWTHeader, jot)
		}
	}

	return nil
}

// Logout invalidates the token behind the auth cookie and clears the cookie.
// A missing or stale cookie still clears cleanly.
func (a *CookieAuthenticator) Logout(ctx router.Context) error {
	value := ctx.Cookies(a.cfg.GetAuthCookieName())

	if err := a.auth.SignOut(ctx.Context(), value); err != nil {
		a.Logger.Error("Logout error: %s", err)
		return err
	}

	a.clearAuthCookie(ctx)
	return nil
}

// CurrentToken resolves the request's auth cookie into its token. Returns
// nil when the request carries no valid credential.
func (a *CookieAuthenticator) CurrentToken(ctx router.Context) (*AuthToken, error) {
	value := ctx.Cookies(a.cfg.GetAuthCookieName())
	return a.auth.Resolve(ctx.Context(), value)
}

// RefreshMiddleware resolves the auth cookie on every request, rotates the
// token, and re-issues the cookie with the new value. Requests without a
// valid credential pass through untouched; a stale cookie gets cleared.
func (a *CookieAuthenticator) RefreshMiddleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			value := ctx.Cookies(a.cfg.GetAuthCookieName())
			if value == "" {
				return next(ctx)
			}

			token, err := a.auth.Resolve(ctx.Context(), value)
			if err != nil {
				return a.ErrorHandler(ctx, err)
			}

			if token == nil {
				a.clearAuthCookie(ctx)
				return next(ctx)
			}

			renewed, err := a.auth.Renew(ctx.Context(), token, false, a.cfg.GetRememberMeDays())
			if err != nil {
				return a.ErrorHandler(ctx, err)
			}

			a.setAuthCookie(ctx, renewed)
			ctx.SetContext(WithTokenContext(ctx.Context(), renewed))

			return next(ctx)
		}
	}
}

func (a *CookieAuthenticator) setAuthCookie(c router.Context, token *AuthToken) {
	cookie := &router.Cookie{
		Name:     a.cfg.GetAuthCookieName(),
		Value:    token.TokenValue,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	}

	// Persistent tokens carry their own expiry; everything else rides as a
	// session cookie.
	if token.IsPersistent && token.ExpiresAt != nil {
		cookie.Expires = *token.ExpiresAt
	}

	c.Cookie(cookie)
}

func (a *CookieAuthenticator) clearAuthCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetAuthCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *CookieAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (a *CookieAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
