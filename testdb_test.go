package signin_test

import (
	"context"
	"database/sql"
	"testing"

	signin "github.com/sessionware/go-signin"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    login_attempts INTEGER DEFAULT 0,
    login_attempt_at TIMESTAMP,
    loggedin_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP
);`

	sqliteCreateUserGroups = `CREATE TABLE user_groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	sqliteCreateGroupMemberships = `CREATE TABLE group_memberships (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users (id),
    group_id TEXT NOT NULL REFERENCES user_groups (id),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (user_id, group_id)
);`

	sqliteCreateAuthTokens = `CREATE TABLE auth_tokens (
    id TEXT PRIMARY KEY,
    token_value TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL REFERENCES users (id),
    is_persistent BOOLEAN DEFAULT FALSE,
    expires_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive and serializes
	// concurrent transactions.
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON;",
		sqliteCreateUsers,
		sqliteCreateUserGroups,
		sqliteCreateGroupMemberships,
		sqliteCreateAuthTokens,
	} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return bunDB, cleanup
}

func setupRepo(t *testing.T) (signin.RepositoryManager, *bun.DB, func()) {
	t.Helper()

	bunDB, cleanup := setupTestDB(t)
	return signin.NewRepositoryManager(bunDB), bunDB, cleanup
}

func registerTestUser(t *testing.T, repo signin.RepositoryManager, username, password string) *signin.User {
	t.Helper()

	hash, err := signin.HashPassword(password)
	require.NoError(t, err)

	user, err := repo.Users().Register(context.Background(), &signin.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	})
	require.NoError(t, err)

	return user
}
