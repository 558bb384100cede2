package signin

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is a system user account. Identity (username) is immutable once
// created; the password hash only changes through an explicit store
// operation.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// UserGroup is a named group users can belong to.
type UserGroup struct {
	bun.BaseModel `bun:"table:user_groups,alias:grp"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	Description   string     `bun:"description" json:"description,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// GroupMembership links a user to a group. The composite unique index keeps a
// user in a given group at most once.
type GroupMembership struct {
	bun.BaseModel `bun:"table:group_memberships,alias:gm"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull,unique:user_group" json:"user_id,omitempty"`
	GroupID       *uuid.UUID `bun:"group_id,notnull,unique:user_group" json:"group_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Group         *UserGroup `bun:"rel:has-one,join:group_id=id" json:"group,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AuthToken is the opaque bearer credential for a signed-in user. A
// persistent token carries a remember-me expiry; a session token may still
// carry a store-enforced expiry.
type AuthToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:tok"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenValue    string     `bun:"token_value,notnull,unique" json:"token_value,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	IsPersistent  bool       `bun:"is_persistent" json:"is_persistent,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Expired reports whether the token's expiry, if any, has passed.
func (t *AuthToken) Expired(now time.Time) bool {
	if t == nil {
		return true
	}
	if t.ExpiresAt == nil {
		return false
	}
	return !t.ExpiresAt.After(now)
}

// NewTokenValue issues a fresh opaque token value.
func NewTokenValue() string {
	return uuid.NewString()
}
