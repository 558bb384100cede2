package signin

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Groups is the user-group store.
type Groups interface {
	repository.Repository[*UserGroup]

	GetByName(ctx context.Context, name string) (*UserGroup, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*UserGroup, error)
	GetOrCreateByNameTx(ctx context.Context, tx bun.IDB, name, description string) (*UserGroup, error)
}

// Memberships is the group-membership store. The underlying table carries a
// UNIQUE(user_id, group_id) constraint, so duplicate memberships fail at the
// store even if a racing caller slips past IsMember.
type Memberships interface {
	repository.Repository[*GroupMembership]

	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
	IsMemberTx(ctx context.Context, tx bun.IDB, userID, groupID uuid.UUID) (bool, error)
	CountForGroupTx(ctx context.Context, tx bun.IDB, groupID uuid.UUID) (int, error)
}

type groups struct {
	repository.Repository[*UserGroup]
	db *bun.DB
}

var _ Groups = (*groups)(nil)

func NewGroupsRepository(db *bun.DB) Groups {
	repo := repository.NewRepository[*UserGroup](db, repository.ModelHandlers[*UserGroup]{
		NewRecord: func() *UserGroup { return &UserGroup{} },
		GetID: func(g *UserGroup) uuid.UUID {
			if g == nil {
				return uuid.Nil
			}
			return g.ID
		},
		SetID: func(g *UserGroup, id uuid.UUID) {
			if g != nil {
				g.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &groups{
		Repository: repo,
		db:         db,
	}
}

func (a *groups) GetByName(ctx context.Context, name string) (*UserGroup, error) {
	return a.GetByNameTx(ctx, a.db, name)
}

func (a *groups) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*UserGroup, error) {
	record := &UserGroup{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"name": name,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *groups) GetOrCreateByNameTx(ctx context.Context, tx bun.IDB, name, description string) (*UserGroup, error) {
	group, err := a.GetByNameTx(ctx, tx, name)
	if err == nil {
		return group, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &UserGroup{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

type memberships struct {
	repository.Repository[*GroupMembership]
	db *bun.DB
}

var _ Memberships = (*memberships)(nil)

func NewMembershipsRepository(db *bun.DB) Memberships {
	repo := repository.NewRepository[*GroupMembership](db, repository.ModelHandlers[*GroupMembership]{
		NewRecord: func() *GroupMembership { return &GroupMembership{} },
		GetID: func(m *GroupMembership) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *GroupMembership, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &memberships{
		Repository: repo,
		db:         db,
	}
}

func (a *memberships) IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	return a.IsMemberTx(ctx, a.db, userID, groupID)
}

func (a *memberships) IsMemberTx(ctx context.Context, tx bun.IDB, userID, groupID uuid.UUID) (bool, error) {
	count, err := tx.NewSelect().
		Model((*GroupMembership)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.group_id = ?", groupID).
		Count(ctx)

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (a *memberships) CountForGroupTx(ctx context.Context, tx bun.IDB, groupID uuid.UUID) (int, error) {
	return tx.NewSelect().
		Model((*GroupMembership)(nil)).
		Where("?TableAlias.group_id = ?", groupID).
		Count(ctx)
}
