// Package signin implements username/password sign-in with opaque bearer
// tokens, plus a guarded one-time bootstrap of a privileged admin account.
//
// The Authenticator owns the token lifecycle: SignIn issues a token, Resolve
// recovers it, Renew rotates it, MarkRememberMe extends it, and SignOut
// destroys it. All mutations run inside store transactions.
//
// AdminBootstrap creates the well-known admin user, group, and membership
// exactly once, and only for loopback callers against an empty store.
//
// CookieAuthenticator and SignInController adapt both services to HTTP via
// go-router.
package signin
