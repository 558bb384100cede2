package signin

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens is the auth-token store. GetByValue enforces expiry in the query so
// an expired token never leaves the store as valid. Invalidation is a hard
// delete: an invalidated value can never resolve again.
type Tokens interface {
	repository.Repository[*AuthToken]

	GetByValue(ctx context.Context, value string) (*AuthToken, error)
	GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*AuthToken, error)

	IssueTx(ctx context.Context, tx bun.IDB, user *User, persistent bool, expiresAt *time.Time) (*AuthToken, error)
	RotateTx(ctx context.Context, tx bun.IDB, token *AuthToken) (*AuthToken, error)
	SaveExpiryTx(ctx context.Context, tx bun.IDB, token *AuthToken) (*AuthToken, error)

	InvalidateByValue(ctx context.Context, value string) error
	InvalidateByValueTx(ctx context.Context, tx bun.IDB, value string) error
}

type tokens struct {
	repository.Repository[*AuthToken]
	db *bun.DB
}

var _ Tokens = (*tokens)(nil)

func NewTokensRepository(db *bun.DB) Tokens {
	repo := repository.NewRepository[*AuthToken](db, repository.ModelHandlers[*AuthToken]{
		NewRecord: func() *AuthToken { return &AuthToken{} },
		GetID: func(t *AuthToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AuthToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_value"
		},
	})

	return &tokens{
		Repository: repo,
		db:         db,
	}
}

func (a *tokens) GetByValue(ctx context.Context, value string) (*AuthToken, error) {
	return a.GetByValueTx(ctx, a.db, value)
}

func (a *tokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*AuthToken, error) {
	record := &AuthToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_value = ?", value).
		Where("(?TableAlias.expires_at IS NULL OR ?TableAlias.expires_at > ?)", time.Now()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token_value": value,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *tokens) IssueTx(ctx context.Context, tx bun.IDB, user *User, persistent bool, expiresAt *time.Time) (*AuthToken, error) {
	userID := user.ID
	record := &AuthToken{
		ID:           uuid.New(),
		TokenValue:   NewTokenValue(),
		UserID:       &userID,
		IsPersistent: persistent,
		ExpiresAt:    expiresAt,
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

// RotateTx issues a new opaque value for the token and persists value,
// persistence flag and expiry in one statement.
func (a *tokens) RotateTx(ctx context.Context, tx bun.IDB, token *AuthToken) (*AuthToken, error) {
	token.TokenValue = NewTokenValue()
	return a.SaveExpiryTx(ctx, tx, token)
}

func (a *tokens) SaveExpiryTx(ctx context.Context, tx bun.IDB, token *AuthToken) (*AuthToken, error) {
	now := time.Now()
	token.UpdatedAt = &now

	_, err := tx.NewUpdate().
		Model(token).
		Column("token_value", "is_persistent", "expires_at", "updated_at").
		WherePK().
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return token, nil
}

func (a *tokens) InvalidateByValue(ctx context.Context, value string) error {
	return a.InvalidateByValueTx(ctx, a.db, value)
}

func (a *tokens) InvalidateByValueTx(ctx context.Context, tx bun.IDB, value string) error {
	// Deleting a missing row is a no-op, which keeps sign-out idempotent.
	_, err := tx.NewDelete().
		Model((*AuthToken)(nil)).
		Where("?TableAlias.token_value = ?", value).
		Exec(ctx)

	return err
}
