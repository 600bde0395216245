// Package repository declares the persistence contracts for the primary
// metadata store. Uniqueness of project names, project owners, and tenant
// database owners is enforced by the store's constraints; the boolean
// existence checks are fast-reject optimizations only.
package repository

import (
	"context"

	"github.com/hangar-sh/hangar/internal/domain"
)

// Store is the primary metadata store.
type Store interface {
	ProjectStore
	DatabaseStore

	// Begin opens a transaction owned exclusively by the calling request
	// until Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)
}

// ProjectStore covers project rows and their participant sets.
type ProjectStore interface {
	ProjectNameTaken(ctx context.Context, name string) (bool, error)
	OwnerHasProject(ctx context.Context, owner string) (bool, error)

	// GetProjectByIDAndOwner returns ErrNotFound both when the project is
	// absent and when the caller is not the owner.
	GetProjectByIDAndOwner(ctx context.Context, id int64, owner string) (*domain.Project, error)

	// GetProjectForMember resolves a project visible to its owner or any
	// participant.
	GetProjectForMember(ctx context.Context, id int64, principal string) (*domain.Project, error)

	ListProjects(ctx context.Context) ([]domain.Project, error)
	UpdateProjectImage(ctx context.Context, id int64, sourceLocator, imageTag string) error
	UpdateProjectEnv(ctx context.Context, id int64, envVars map[string]string) error
	DeleteProject(ctx context.Context, id int64) error
}

// DatabaseStore covers tenant database metadata rows.
type DatabaseStore interface {
	OwnerHasDatabase(ctx context.Context, owner string) (bool, error)
	GetDatabaseByIDAndOwner(ctx context.Context, id int64, owner string) (*domain.TenantDatabase, error)
	GetDatabaseByOwner(ctx context.Context, owner string) (*domain.TenantDatabase, error)
	GetDatabaseByProject(ctx context.Context, projectID int64) (*domain.TenantDatabase, error)
	InsertDatabase(ctx context.Context, db *domain.TenantDatabase) error
	DeleteDatabase(ctx context.Context, id int64) error

	// LinkDatabase and UnlinkDatabase are conditional updates; zero
	// affected rows yields ErrNotFound.
	LinkDatabase(ctx context.Context, dbID, projectID int64, owner string) error
	UnlinkDatabase(ctx context.Context, projectID int64, owner string) error
}

// Tx batches metadata writes that must commit or roll back together.
type Tx interface {
	// CreateProject inserts the project row and fills ID and CreatedAt.
	CreateProject(ctx context.Context, project *domain.Project) error

	// AddParticipant grants visibility; a participant equal to the owner
	// is rejected with ErrInvalidArgument.
	AddParticipant(ctx context.Context, projectID int64, owner, participant string) error

	// InsertDatabase stages a tenant database row, sharing atomicity with
	// the enclosing project creation.
	InsertDatabase(ctx context.Context, db *domain.TenantDatabase) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
