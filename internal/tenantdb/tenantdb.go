// Package tenantdb provisions per-owner databases on the secondary SQL
// engine and keeps their metadata in the primary store.
package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hangar-sh/hangar/internal/apperr"
	"github.com/hangar-sh/hangar/internal/domain"
	"github.com/hangar-sh/hangar/internal/repository"
	"github.com/hangar-sh/hangar/pkg/crypto"
)

// namePrefix prefixes every tenant database and user name.
const namePrefix = "hangardb_"

// Engine executes DDL and grants on the secondary SQL engine.
type Engine interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Options carries the connection coordinates handed back to owners and the
// key used to encrypt stored credentials.
type Options struct {
	PublicHost    string
	PublicPort    int
	EncryptionKey []byte
}

// Provisioner creates and tears down tenant databases. Safe for concurrent
// use; per-owner uniqueness is enforced by the metadata store's constraints.
type Provisioner struct {
	engine Engine
	store  repository.DatabaseStore
	opts   Options
	logger *slog.Logger
}

// New builds a provisioner over the given engine and metadata store.
func New(engine Engine, store repository.DatabaseStore, opts Options, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{engine: engine, store: store, opts: opts, logger: logger}
}

// identifierFor derives the database and user name for an owner. Hyphens in
// account names are folded to underscores; anything else outside [A-Za-z0-9_]
// is rejected before it can reach interpolated DDL.
func identifierFor(owner string) (string, error) {
	folded := strings.ReplaceAll(strings.ToLower(owner), "-", "_")
	if folded == "" {
		return "", apperr.Validation("owner cannot be empty")
	}
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return "", apperr.Validation("owner %q cannot be used as a database identifier", owner)
	}
	return namePrefix + folded, nil
}

// Provision creates the database and user on the engine and records the
// metadata row. The returned details carry the plaintext password; it is
// never returned again after this call.
func (p *Provisioner) Provision(ctx context.Context, owner string) (*domain.TenantDatabaseDetails, error) {
	taken, err := p.store.OwnerHasDatabase(ctx, owner)
	if err != nil {
		return nil, apperr.Persistence("check owner database", err)
	}
	if taken {
		return nil, apperr.Conflict("owner %s already has a database", owner)
	}

	record, password, err := p.provisionEngine(ctx, owner)
	if err != nil {
		return nil, err
	}

	if err := p.store.InsertDatabase(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			p.teardownDetached(record.DatabaseName, record.Username)
			return nil, apperr.Conflict("owner %s already has a database", owner)
		}
		p.teardownDetached(record.DatabaseName, record.Username)
		return nil, apperr.Internal(fmt.Errorf("record tenant database: %w", err))
	}
	return p.details(record, password), nil
}

// ProvisionAndLink provisions the engine objects and stages the metadata row
// inside the caller's open transaction, linked to projectID. The caller owns
// commit and rollback; TeardownEngine compensates the engine side if the
// transaction never commits.
func (p *Provisioner) ProvisionAndLink(ctx context.Context, tx repository.Tx, owner string, projectID int64) (*domain.TenantDatabaseDetails, error) {
	taken, err := p.store.OwnerHasDatabase(ctx, owner)
	if err != nil {
		return nil, apperr.Persistence("check owner database", err)
	}
	if taken {
		return nil, apperr.Conflict("owner %s already has a database", owner)
	}

	record, password, err := p.provisionEngine(ctx, owner)
	if err != nil {
		return nil, err
	}
	record.ProjectID = &projectID

	if err := tx.InsertDatabase(ctx, record); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			p.teardownDetached(record.DatabaseName, record.Username)
			return nil, apperr.Conflict("owner %s already has a database", owner)
		}
		p.teardownDetached(record.DatabaseName, record.Username)
		return nil, apperr.Internal(fmt.Errorf("record tenant database: %w", err))
	}
	return p.details(record, password), nil
}

// provisionEngine creates the database, the user and the grant. A failure
// part-way triggers a symmetric best-effort teardown before returning.
func (p *Provisioner) provisionEngine(ctx context.Context, owner string) (*domain.TenantDatabase, string, error) {
	name, err := identifierFor(owner)
	if err != nil {
		return nil, "", err
	}

	password, err := crypto.GeneratePassword()
	if err != nil {
		return nil, "", apperr.Internal(fmt.Errorf("generate tenant password: %w", err))
	}
	encrypted, err := crypto.EncryptToString(p.opts.EncryptionKey, password)
	if err != nil {
		return nil, "", apperr.Internal(fmt.Errorf("encrypt tenant password: %w", err))
	}

	steps := []struct {
		query string
		args  []any
	}{
		{query: fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci", name)},
		{query: fmt.Sprintf("CREATE USER '%s'@'%%' IDENTIFIED BY ?", name), args: []any{password}},
		{query: fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'%%'", name, name)},
		{query: "FLUSH PRIVILEGES"},
	}
	for _, step := range steps {
		if err := p.engine.Exec(ctx, step.query, step.args...); err != nil {
			p.teardownEngine(ctx, name, name)
			return nil, "", apperr.TenantDB(apperr.CodeTenantProvision,
				fmt.Sprintf("could not provision database for %s", owner), err)
		}
	}

	return &domain.TenantDatabase{
		Owner:             owner,
		DatabaseName:      name,
		Username:          name,
		EncryptedPassword: encrypted,
	}, password, nil
}

// Deprovision drops the engine objects and deletes the metadata row.
func (p *Provisioner) Deprovision(ctx context.Context, id int64, owner string) error {
	record, err := p.store.GetDatabaseByIDAndOwner(ctx, id, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("database")
		}
		return apperr.Persistence("load tenant database", err)
	}

	if err := p.teardownEngine(ctx, record.DatabaseName, record.Username); err != nil {
		return apperr.TenantDB(apperr.CodeTenantDeprovision,
			fmt.Sprintf("could not deprovision database for %s", owner), err)
	}

	if err := p.store.DeleteDatabase(ctx, record.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		p.logger.Error("tenant database dropped but metadata row remains",
			"database", record.DatabaseName, "id", record.ID, "error", err)
		return apperr.Persistence("delete tenant database metadata", err)
	}
	return nil
}

// TeardownEngine drops the engine objects for an owner without touching
// metadata. Used to compensate a provisioning whose enclosing transaction
// never committed.
func (p *Provisioner) TeardownEngine(ctx context.Context, owner string) error {
	name, err := identifierFor(owner)
	if err != nil {
		return err
	}
	return p.teardownEngine(ctx, name, name)
}

// teardownEngine removes the user and database. Both statements are
// IF EXISTS so repeat calls are safe.
func (p *Provisioner) teardownEngine(ctx context.Context, database, username string) error {
	if err := p.engine.Exec(ctx, fmt.Sprintf("DROP USER IF EXISTS '%s'@'%%'", username)); err != nil {
		return fmt.Errorf("drop user %s: %w", username, err)
	}
	if err := p.engine.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", database)); err != nil {
		return fmt.Errorf("drop database %s: %w", database, err)
	}
	return nil
}

// teardownDetached compensates engine objects without blocking the caller.
func (p *Provisioner) teardownDetached(database, username string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.teardownEngine(ctx, database, username); err != nil {
			p.logger.Error("orphaned tenant database: engine teardown failed after metadata failure",
				"database", database, "error", err)
		}
	}()
}

// Link attaches an owner's database to one of their projects.
func (p *Provisioner) Link(ctx context.Context, dbID, projectID int64, owner string) error {
	if err := p.store.LinkDatabase(ctx, dbID, projectID, owner); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound("database")
		case errors.Is(err, repository.ErrConflict):
			return apperr.Conflict("database is already linked to a project")
		default:
			return apperr.Persistence("link tenant database", err)
		}
	}
	return nil
}

// Unlink detaches the database linked to a project, if any.
func (p *Provisioner) Unlink(ctx context.Context, projectID int64, owner string) error {
	if err := p.store.UnlinkDatabase(ctx, projectID, owner); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("database")
		}
		return apperr.Persistence("unlink tenant database", err)
	}
	return nil
}

// Details returns the connection view for an owner's database, including the
// decrypted password.
func (p *Provisioner) Details(ctx context.Context, id int64, owner string) (*domain.TenantDatabaseDetails, error) {
	record, err := p.store.GetDatabaseByIDAndOwner(ctx, id, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("database")
		}
		return nil, apperr.Persistence("load tenant database", err)
	}
	password, err := crypto.DecryptFromString(p.opts.EncryptionKey, record.EncryptedPassword)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("decrypt tenant password: %w", err))
	}
	return p.details(record, password), nil
}

// DetailsForOwner returns the connection view of an owner's database without
// requiring its id, for callers that only know the account.
func (p *Provisioner) DetailsForOwner(ctx context.Context, owner string) (*domain.TenantDatabaseDetails, error) {
	record, err := p.store.GetDatabaseByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("database")
		}
		return nil, apperr.Persistence("load tenant database", err)
	}
	password, err := crypto.DecryptFromString(p.opts.EncryptionKey, record.EncryptedPassword)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("decrypt tenant password: %w", err))
	}
	return p.details(record, password), nil
}

func (p *Provisioner) details(record *domain.TenantDatabase, password string) *domain.TenantDatabaseDetails {
	return &domain.TenantDatabaseDetails{
		ID:           record.ID,
		Owner:        record.Owner,
		DatabaseName: record.DatabaseName,
		Username:     record.Username,
		Password:     password,
		ProjectID:    record.ProjectID,
		Host:         p.opts.PublicHost,
		Port:         p.opts.PublicPort,
		CreatedAt:    record.CreatedAt,
	}
}
