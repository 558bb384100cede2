package signin

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Groups() Groups
	Memberships() Memberships
	Tokens() Tokens
	OnCommit(listener CommitListener)
	DB() *bun.DB
}

// CommitEvent describes a store mutation that has been durably committed.
type CommitEvent struct {
	Name       string
	Metadata   map[string]any
	OccurredAt time.Time
}

// CommitListener receives commit events synchronously, after the transaction
// that recorded them has committed. Listeners must be registered before the
// manager starts serving requests; registration is not synchronized.
type CommitListener interface {
	AfterCommit(ctx context.Context, event CommitEvent)
}

// CommitListenerFunc adapts a function to the CommitListener interface.
type CommitListenerFunc func(ctx context.Context, event CommitEvent)

// AfterCommit implements CommitListener.
func (f CommitListenerFunc) AfterCommit(ctx context.Context, event CommitEvent) {
	if f != nil {
		f(ctx, event)
	}
}

var commitCtxKey = &contextKey{"commit-events"}

type commitRecorder struct {
	events []CommitEvent
}

// RecordCommitEvent queues an event on the surrounding transaction. It is a
// no-op outside RunInTx; events are only delivered once the transaction
// commits, never on rollback.
func RecordCommitEvent(ctx context.Context, event CommitEvent) {
	rec, ok := ctx.Value(commitCtxKey).(*commitRecorder)
	if !ok {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	rec.events = append(rec.events, event)
}

type mngr struct {
	db          *bun.DB
	users       Users
	groups      Groups
	memberships Memberships
	tokens      Tokens
	listeners   []CommitListener
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		users:       NewUsersRepository(db),
		groups:      NewGroupsRepository(db),
		memberships: NewMembershipsRepository(db),
		tokens:      NewTokensRepository(db),
	}
}

func (m *mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.groups == nil {
		return errors.New("repository groups should be initialized")
	}

	if m.memberships == nil {
		return errors.New("repository memberships should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	rec := &commitRecorder{}
	ctx = context.WithValue(ctx, commitCtxKey, rec)

	if err := m.db.RunInTx(ctx, opts, f); err != nil {
		return err
	}

	for _, event := range rec.events {
		for _, listener := range m.listeners {
			listener.AfterCommit(ctx, event)
		}
	}

	return nil
}

func (m *mngr) OnCommit(listener CommitListener) {
	if listener == nil {
		return
	}
	m.listeners = append(m.listeners, listener)
}

func (m *mngr) DB() *bun.DB {
	return m.db
}

func (m *mngr) Users() Users {
	return m.users
}

func (m *mngr) Groups() Groups {
	return m.groups
}

func (m *mngr) Memberships() Memberships {
	return m.memberships
}

func (m *mngr) Tokens() Tokens {
	return m.tokens
}
