package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/hangar-sh/hangar/internal/domain"
	"github.com/hangar-sh/hangar/internal/repository"
)

// Tx wraps a pgx transaction behind the repository.Tx contract.
type Tx struct {
	tx pgx.Tx
}

var _ repository.Tx = (*Tx)(nil)

// CreateProject inserts the project row and its environment map.
func (t *Tx) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects
		(name, owner, container_name, source_kind, source_locator, image_tag, env_vars, volume_path, volume_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))
		RETURNING id, created_at`
	envVars := project.EnvVars
	if envVars == nil {
		envVars = map[string]string{}
	}
	err := t.tx.QueryRow(ctx, query,
		project.Name,
		project.Owner,
		project.ContainerName,
		project.SourceKind,
		project.SourceLocator,
		project.ImageTag,
		envVars,
		project.VolumePath,
		project.VolumeName,
	).Scan(&project.ID, &project.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// AddParticipant grants a principal visibility into the project. The owner
// can never be their own participant; this is enforced here, at write time.
func (t *Tx) AddParticipant(ctx context.Context, projectID int64, owner, participant string) error {
	if participant == "" || participant == owner {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO project_participants (project_id, participant) VALUES ($1, $2)
		ON CONFLICT (project_id, participant) DO NOTHING`
	if _, err := t.tx.Exec(ctx, query, projectID, participant); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// InsertDatabase stages a tenant database row inside the transaction.
func (t *Tx) InsertDatabase(ctx context.Context, db *domain.TenantDatabase) error {
	return insertDatabase(ctx, t.tx, db)
}

// Commit finalizes the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction. Rolling back after commit is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}
