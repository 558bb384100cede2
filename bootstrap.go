package signin

import (
	"context"
	"net/netip"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Admin bootstrap identity. The username and group name are well known and
// fixed; operators rely on them when wiring external policy.
const (
	AdminUsername  = "admin"
	AdminGroupName = "Admin (System Users)"

	adminGroupDescription = "System User Administrator Group"
	adminEmail            = "admin@localhost"
)

// BootstrapStatus distinguishes the two non-error outcomes of TryCreate.
type BootstrapStatus string

const (
	// BootstrapCreated means the admin user, group, and membership were
	// created in this call.
	BootstrapCreated BootstrapStatus = "created"
	// BootstrapSkipped means the guard refused: the store is already
	// initialized or the request did not originate from loopback. This is
	// expected on repeated setup-page loads, not a failure.
	BootstrapSkipped BootstrapStatus = "skipped"
)

// BootstrapResult is the outcome of a TryCreate call.
type BootstrapResult struct {
	Status  BootstrapStatus
	Message string
}

// Created reports whether this call performed the bootstrap.
func (r *BootstrapResult) Created() bool {
	return r != nil && r.Status == BootstrapCreated
}

// AdminBootstrap guards the one-time creation of the privileged admin
// account. Once an admin membership exists, or any user exists at all, the
// guard locks permanently for the lifetime of the store; there is no reset
// path.
type AdminBootstrap struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
}

// NewAdminBootstrap returns a new AdminBootstrap
func NewAdminBootstrap(repo RepositoryManager) *AdminBootstrap {
	return &AdminBootstrap{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (b *AdminBootstrap) WithLogger(logger Logger) *AdminBootstrap {
	b.logger = logger
	return b
}

func (b *AdminBootstrap) WithActivitySink(sink ActivitySink) *AdminBootstrap {
	b.activitySink = normalizeActivitySink(sink)
	return b
}

// CanCreate reports whether the bootstrap is still eligible: the origin must
// be a loopback address, the store must hold zero users, and nobody may
// already hold admin-group membership. The loopback and empty-store checks
// are both required; neither subsumes the other.
func (b *AdminBootstrap) CanCreate(ctx context.Context, origin netip.Addr) (bool, error) {
	return b.canCreate(ctx, b.repo.DB(), origin)
}

func (b *AdminBootstrap) canCreate(ctx context.Context, tx bun.IDB, origin netip.Addr) (bool, error) {
	if !origin.IsValid() || !origin.Unmap().IsLoopback() {
		return false, nil
	}

	total, err := b.repo.Users().CountAllTx(ctx, tx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count users")
	}

	if total > 0 {
		return false, nil
	}

	group, err := b.repo.Groups().GetByNameTx(ctx, tx, AdminGroupName)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return true, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up admin group")
	}

	members, err := b.repo.Memberships().CountForGroupTx(ctx, tx, group.ID)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count admin memberships")
	}

	return members == 0, nil
}

// TryCreate validates the password pair and, when the guard allows, creates
// the admin group, the admin user, and the membership linking them in a
// single transaction. Validation order is fixed: empty password, then
// mismatch, then eligibility. A refused guard is reported through the result,
// not through the error.
func (b *AdminBootstrap) TryCreate(ctx context.Context, origin netip.Addr, password, passwordRepeat string) (*BootstrapResult, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	if password != passwordRepeat {
		return nil, ErrPasswordMismatch
	}

	ok, err := b.CanCreate(ctx, origin)
	if err != nil {
		return nil, err
	}

	if !ok {
		return b.skipped(ctx, origin), nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash admin password")
	}

	created := false
	err = b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Re-check inside the transaction so racing callers cannot both
		// pass the guard.
		ok, err := b.canCreate(ctx, tx, origin)
		if err != nil {
			return err
		}

		if !ok {
			return nil
		}

		group, err := b.repo.Groups().GetOrCreateByNameTx(ctx, tx, AdminGroupName, adminGroupDescription)
		if err != nil {
			return err
		}

		user := &User{
			Username:     AdminUsername,
			Email:        adminEmail,
			PasswordHash: hash,
		}

		if id, err := hashid.NewUUID(adminEmail); err == nil {
			user.ID = id
		}

		user, err = b.repo.Users().RegisterTx(ctx, tx, user)
		if err != nil {
			return err
		}

		userID := user.ID
		groupID := group.ID
		member := &GroupMembership{
			ID:      uuid.New(),
			UserID:  &userID,
			GroupID: &groupID,
		}

		if _, err := b.repo.Memberships().CreateTx(ctx, tx, member); err != nil {
			return err
		}

		RecordCommitEvent(ctx, CommitEvent{
			Name: string(ActivityEventAdminCreated),
			Metadata: map[string]any{
				"user_id":  user.ID.String(),
				"username": user.Username,
				"group":    group.Name,
			},
		})

		created = true
		return nil
	})

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "admin bootstrap transaction failed")
	}

	if !created {
		return b.skipped(ctx, origin), nil
	}

	b.emitBootstrapEvent(ctx, ActivityEventAdminCreated, map[string]any{
		"username": AdminUsername,
	})

	return &BootstrapResult{
		Status:  BootstrapCreated,
		Message: "Default admin user has been successfully generated.",
	}, nil
}

func (b *AdminBootstrap) skipped(ctx context.Context, origin netip.Addr) *BootstrapResult {
	b.emitBootstrapEvent(ctx, ActivityEventAdminSkipped, map[string]any{
		"origin": origin.String(),
	})

	return &BootstrapResult{
		Status:  BootstrapSkipped,
		Message: "There is already an Admin user created",
	}
}

func (b *AdminBootstrap) emitBootstrapEvent(ctx context.Context, eventType ActivityEventType, metadata map[string]any) {
	sink := normalizeActivitySink(b.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		Username:   AdminUsername,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		b.logger.Warn("activity sink record error: %v", err)
	}
}
