package signin

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Authenticator owns the auth-token lifecycle: sign-in, sign-out, lookup,
// renewal, and remember-me extension. It holds no mutable state of its own;
// every mutation runs as a single store transaction so a caller never
// observes a half-applied renewal or extension.
type Authenticator struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager) *Authenticator {
	return &Authenticator{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	s.logger = logger
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// SignIn verifies the username/password pair and, on success, issues a fresh
// token bound to the user. The failure error is uniform for unknown username
// and wrong password.
func (s *Authenticator) SignIn(ctx context.Context, username, password string) (*AuthToken, error) {
	user, err := s.repo.Users().GetByUsername(ctx, username)
	if err != nil {
		if goerrors.IsNotFound(err) || repository.IsRecordNotFound(err) {
			s.emitAuthEvent(ctx, ActivityEventSignInFailure, "", username, map[string]any{
				"reason": "unknown user",
			})
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during sign in")
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := s.repo.Users().TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}

		s.emitAuthEvent(ctx, ActivityEventSignInFailure, user.ID.String(), username, map[string]any{
			"reason": "password mismatch",
		})

		return nil, ErrInvalidCredentials
	}

	var token *AuthToken
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Users().TrackSuccessfulLoginTx(ctx, tx, user); err != nil {
			return err
		}

		token, err = s.repo.Tokens().IssueTx(ctx, tx, user, false, nil)
		if err != nil {
			return err
		}

		RecordCommitEvent(ctx, CommitEvent{
			Name: string(ActivityEventSignInSuccess),
			Metadata: map[string]any{
				"user_id":  user.ID.String(),
				"username": user.Username,
			},
		})

		return nil
	})

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "sign in transaction failed")
	}

	s.emitAuthEvent(ctx, ActivityEventSignInSuccess, user.ID.String(), username, nil)

	return token, nil
}

// SignOut invalidates the token identified by value. Signing out a token
// that is already gone is a no-op, not an error.
func (s *Authenticator) SignOut(ctx context.Context, tokenValue string) error {
	if tokenValue == "" {
		return nil
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Tokens().InvalidateByValueTx(ctx, tx, tokenValue); err != nil {
			return err
		}

		RecordCommitEvent(ctx, CommitEvent{
			Name: string(ActivityEventSignOut),
		})

		return nil
	})

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "sign out transaction failed")
	}

	s.emitAuthEvent(ctx, ActivityEventSignOut, "", "", nil)

	return nil
}

// Resolve looks the token up by value. Unknown and expired values resolve to
// (nil, nil): callers treat that as "not signed in", never as a fault.
func (s *Authenticator) Resolve(ctx context.Context, tokenValue string) (*AuthToken, error) {
	if tokenValue == "" {
		return nil, nil
	}

	token, err := s.repo.Tokens().GetByValue(ctx, tokenValue)
	if err != nil {
		if goerrors.IsNotFound(err) || repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve auth token")
	}

	return token, nil
}

// Renew rotates the token value and, when the token is persistent or
// extendPersistent is set, pushes the expiry rememberMeDays into the future.
// Rotation and re-expiry commit together or not at all; the old value never
// resolves after a successful renewal.
func (s *Authenticator) Renew(ctx context.Context, token *AuthToken, extendPersistent bool, rememberMeDays int) (*AuthToken, error) {
	if token == nil {
		return nil, ErrTokenNotFound
	}

	var renewed *AuthToken
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.repo.Tokens().GetByValueTx(ctx, tx, token.TokenValue)
		if err != nil {
			return err
		}

		if extendPersistent {
			current.IsPersistent = true
		}

		if current.IsPersistent {
			expires := time.Now().UTC().AddDate(0, 0, rememberMeDays)
			current.ExpiresAt = &expires
		}

		renewed, err = s.repo.Tokens().RotateTx(ctx, tx, current)
		if err != nil {
			return err
		}

		RecordCommitEvent(ctx, CommitEvent{
			Name: string(ActivityEventTokenRenewed),
			Metadata: map[string]any{
				"token_id": current.ID.String(),
			},
		})

		return nil
	})

	if err != nil {
		if goerrors.IsNotFound(err) || repository.IsRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "token renewal transaction failed")
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRenewed, userIDString(renewed), "", nil)

	return renewed, nil
}

// MarkRememberMe flags the token persistent and sets its expiry to
// now + rememberMeDays, atomically. Used when a sign-in request explicitly
// asks to be remembered.
func (s *Authenticator) MarkRememberMe(ctx context.Context, token *AuthToken, rememberMeDays int) (*AuthToken, error) {
	if token == nil {
		return nil, ErrTokenNotFound
	}

	var updated *AuthToken
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.repo.Tokens().GetByValueTx(ctx, tx, token.TokenValue)
		if err != nil {
			return err
		}

		current.IsPersistent = true
		expires := time.Now().UTC().AddDate(0, 0, rememberMeDays)
		current.ExpiresAt = &expires

		updated, err = s.repo.Tokens().SaveExpiryTx(ctx, tx, current)
		if err != nil {
			return err
		}

		RecordCommitEvent(ctx, CommitEvent{
			Name: string(ActivityEventTokenPersisted),
			Metadata: map[string]any{
				"token_id": current.ID.String(),
			},
		})

		return nil
	})

	if err != nil {
		if goerrors.IsNotFound(err) || repository.IsRecordNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "remember-me transaction failed")
	}

	s.emitAuthEvent(ctx, ActivityEventTokenPersisted, userIDString(updated), "", nil)

	return updated, nil
}

func (s *Authenticator) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID, username string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		UserID:    userID,
		Username:  username,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func userIDString(token *AuthToken) string {
	if token == nil || token.UserID == nil {
		return ""
	}
	return token.UserID.String()
}
