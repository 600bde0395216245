// Package postgres implements the repository contracts on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hangar-sh/hangar/internal/domain"
	"github.com/hangar-sh/hangar/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var _ repository.Store = (*Repository)(nil)

const projectColumns = `id, name, owner, container_name, source_kind, source_locator, image_tag,
	env_vars, COALESCE(volume_path, ''), COALESCE(volume_name, ''), created_at`

// ProjectNameTaken reports whether a project with the given name exists.
func (r *Repository) ProjectNameTaken(ctx context.Context, name string) (bool, error) {
	const query = `SELECT COUNT(1) FROM projects WHERE name = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// OwnerHasProject reports whether the owner already has a project.
func (r *Repository) OwnerHasProject(ctx context.Context, owner string) (bool, error) {
	const query = `SELECT COUNT(1) FROM projects WHERE owner = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, owner).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetProjectByIDAndOwner fetches a project owned by the given principal.
func (r *Repository) GetProjectByIDAndOwner(ctx context.Context, id int64, owner string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 AND owner = $2`
	return r.scanProject(ctx, r.pool.QueryRow(ctx, query, id, owner))
}

// GetProjectForMember fetches a project visible to its owner or a participant.
func (r *Repository) GetProjectForMember(ctx context.Context, id int64, principal string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p
		WHERE p.id = $1 AND (p.owner = $2 OR EXISTS (
			SELECT 1 FROM project_participants pp
			WHERE pp.project_id = p.id AND pp.participant = $2))`
	return r.scanProject(ctx, r.pool.QueryRow(ctx, query, id, principal))
}

// ListProjects returns every project with its participant set.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Owner, &p.ContainerName, &p.SourceKind, &p.SourceLocator,
			&p.ImageTag, &p.EnvVars, &p.VolumePath, &p.VolumeName, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range projects {
		participants, err := r.listParticipants(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Participants = participants
	}
	return projects, nil
}

// UpdateProjectImage records the new source locator and deployed tag.
func (r *Repository) UpdateProjectImage(ctx context.Context, id int64, sourceLocator, imageTag string) error {
	const query = `UPDATE projects SET source_locator = $2, image_tag = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, sourceLocator, imageTag)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateProjectEnv replaces the encrypted environment variable map.
func (r *Repository) UpdateProjectEnv(ctx context.Context, id int64, envVars map[string]string) error {
	const query = `UPDATE projects SET env_vars = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, envVars)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteProject removes the project row; participants cascade.
func (r *Repository) DeleteProject(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// OwnerHasDatabase reports whether the owner already has a tenant database.
func (r *Repository) OwnerHasDatabase(ctx context.Context, owner string) (bool, error) {
	const query = `SELECT COUNT(1) FROM databases WHERE owner_login = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, owner).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

const databaseColumns = `id, owner_login, database_name, username, encrypted_password, project_id, created_at`

// GetDatabaseByIDAndOwner fetches a tenant database owned by the principal.
func (r *Repository) GetDatabaseByIDAndOwner(ctx context.Context, id int64, owner string) (*domain.TenantDatabase, error) {
	query := `SELECT ` + databaseColumns + ` FROM databases WHERE id = $1 AND owner_login = $2`
	return scanDatabase(r.pool.QueryRow(ctx, query, id, owner))
}

// GetDatabaseByOwner fetches the tenant database of an owner.
func (r *Repository) GetDatabaseByOwner(ctx context.Context, owner string) (*domain.TenantDatabase, error) {
	query := `SELECT ` + databaseColumns + ` FROM databases WHERE owner_login = $1`
	return scanDatabase(r.pool.QueryRow(ctx, query, owner))
}

// GetDatabaseByProject fetches the tenant database linked to a project.
func (r *Repository) GetDatabaseByProject(ctx context.Context, projectID int64) (*domain.TenantDatabase, error) {
	query := `SELECT ` + databaseColumns + ` FROM databases WHERE project_id = $1`
	return scanDatabase(r.pool.QueryRow(ctx, query, projectID))
}

// InsertDatabase records a provisioned tenant database.
func (r *Repository) InsertDatabase(ctx context.Context, db *domain.TenantDatabase) error {
	return insertDatabase(ctx, r.pool, db)
}

// DeleteDatabase removes a tenant database row.
func (r *Repository) DeleteDatabase(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM databases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// LinkDatabase attaches a tenant database to a project, both owner-scoped.
func (r *Repository) LinkDatabase(ctx context.Context, dbID, projectID int64, owner string) error {
	const query = `UPDATE databases SET project_id = $1 WHERE id = $2 AND owner_login = $3`
	tag, err := r.pool.Exec(ctx, query, projectID, dbID, owner)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UnlinkDatabase detaches whatever database is linked to the project.
func (r *Repository) UnlinkDatabase(ctx context.Context, projectID int64, owner string) error {
	const query = `UPDATE databases SET project_id = NULL WHERE project_id = $1 AND owner_login = $2`
	tag, err := r.pool.Exec(ctx, query, projectID, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Begin opens a metadata transaction.
func (r *Repository) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (r *Repository) listParticipants(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT participant FROM project_participants WHERE project_id = $1 ORDER BY participant`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var participants []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *Repository) scanProject(ctx context.Context, row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Owner, &p.ContainerName, &p.SourceKind, &p.SourceLocator,
		&p.ImageTag, &p.EnvVars, &p.VolumePath, &p.VolumeName, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	participants, err := r.listParticipants(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Participants = participants
	return &p, nil
}

func scanDatabase(row pgx.Row) (*domain.TenantDatabase, error) {
	var db domain.TenantDatabase
	if err := row.Scan(&db.ID, &db.Owner, &db.DatabaseName, &db.Username, &db.EncryptedPassword,
		&db.ProjectID, &db.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &db, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertDatabase(ctx context.Context, q execer, db *domain.TenantDatabase) error {
	const query = `INSERT INTO databases (owner_login, database_name, username, encrypted_password, project_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := q.QueryRow(ctx, query, db.Owner, db.DatabaseName, db.Username, db.EncryptedPassword, db.ProjectID).
		Scan(&db.ID, &db.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// mapWriteError converts constraint violations into repository errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrConflict
		case "23503":
			return repository.ErrNotFound
		case "23514", "22P02":
			return repository.ErrInvalidArgument
		}
	}
	return err
}
