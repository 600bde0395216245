// Package deploy is the top-level orchestrator: it sequences source
// acquisition, container creation, metadata persistence and tenant database
// provisioning, and runs the compensating rollback chain when a step fails.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hangar-sh/hangar/internal/apperr"
	"github.com/hangar-sh/hangar/internal/docker"
	"github.com/hangar-sh/hangar/internal/domain"
	"github.com/hangar-sh/hangar/internal/repository"
	"github.com/hangar-sh/hangar/internal/source"
	"github.com/hangar-sh/hangar/internal/validate"
	"github.com/hangar-sh/hangar/pkg/crypto"
)

// Runtime is the slice of the container runtime the orchestrator drives.
type Runtime interface {
	CreateProjectContainer(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string) error
	RestartContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	InspectContainer(ctx context.Context, name string) (*domain.ContainerState, error)
	ContainerLogs(ctx context.Context, name string, tail int) (string, error)
	ContainerMetrics(ctx context.Context, name string) (domain.MetricsSample, error)
	CreateVolume(ctx context.Context, name string) error
	RemoveVolume(ctx context.Context, name string) error
	RemoveImage(ctx context.Context, ref string) error
}

// Sources resolves a request's source into a local, scanned image.
type Sources interface {
	Resolve(ctx context.Context, kind domain.SourceKind, locator, projectName, volumePath string) (source.Resolved, error)
}

// TenantDBs is the slice of the tenant database provisioner the orchestrator
// needs during deploy and purge.
type TenantDBs interface {
	ProvisionAndLink(ctx context.Context, tx repository.Tx, owner string, projectID int64) (*domain.TenantDatabaseDetails, error)
	Deprovision(ctx context.Context, id int64, owner string) error
	TeardownEngine(ctx context.Context, owner string) error
}

// Options fixes the orchestrator's naming and timeout policy.
type Options struct {
	// AppPrefix namespaces container and volume names.
	AppPrefix string
	// EncryptionKey protects stored environment-variable values.
	EncryptionKey []byte
	// AcquireTimeout bounds source acquisition (pull, clone, build, scan).
	AcquireTimeout time.Duration
	// RuntimeTimeout bounds individual container runtime calls.
	RuntimeTimeout time.Duration
	// CleanupTimeout bounds detached compensation work.
	CleanupTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 10 * time.Minute
	}
	if o.RuntimeTimeout <= 0 {
		o.RuntimeTimeout = 60 * time.Second
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = 60 * time.Second
	}
	return o
}

// Service orchestrates deployments.
type Service struct {
	store    repository.Store
	runtime  Runtime
	sources  Sources
	tenantDB TenantDBs
	opts     Options
	logger   *slog.Logger
	metrics  *metrics
}

// New returns a deployment orchestrator.
func New(store repository.Store, runtime Runtime, sources Sources, tenantDB TenantDBs, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		runtime:  runtime,
		sources:  sources,
		tenantDB: tenantDB,
		opts:     opts.withDefaults(),
		logger:   logger,
		metrics:  newMetrics(),
	}
}

// DeployRequest is a validated-on-entry deployment order.
type DeployRequest struct {
	Name          string
	Owner         string
	SourceKind    domain.SourceKind
	SourceLocator string
	// EnvVars holds plaintext values; they are encrypted before any row is
	// written.
	EnvVars map[string]string
	// VolumePath is honored for direct sources only.
	VolumePath        string
	Participants      []string
	ProvisionDatabase bool
}

// DeployResult is the committed outcome of a deploy.
type DeployResult struct {
	Project *domain.Project
	// Database carries the plaintext password exactly once, when a tenant
	// database was requested.
	Database *domain.TenantDatabaseDetails
}

// Deploy runs the full provisioning pipeline. Every failure after source
// acquisition undoes the steps already taken; compensation failures are
// logged and never override the returned error.
func (s *Service) Deploy(ctx context.Context, req DeployRequest) (result *DeployResult, err error) {
	defer func() { s.metrics.record("deploy", err) }()

	if err = s.validateDeploy(req); err != nil {
		return nil, err
	}
	if err = s.fastRejects(ctx, req); err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.opts.AcquireTimeout)
	resolved, err := s.sources.Resolve(acquireCtx, req.SourceKind, req.SourceLocator, req.Name, req.VolumePath)
	cancel()
	if err != nil {
		return nil, err
	}

	encryptedEnv, err := s.encryptEnv(req.EnvVars)
	if err != nil {
		s.removeImageDetached(resolved.ImageTag)
		return nil, err
	}

	project := &domain.Project{
		Name:          req.Name,
		Owner:         req.Owner,
		ContainerName: domain.ContainerName(s.opts.AppPrefix, req.Name),
		SourceKind:    req.SourceKind,
		SourceLocator: req.SourceLocator,
		ImageTag:      resolved.ImageTag,
		EnvVars:       encryptedEnv,
		VolumePath:    resolved.VolumePath,
		Participants:  req.Participants,
	}
	if resolved.VolumePath != "" {
		project.VolumeName = domain.VolumeName(s.opts.AppPrefix, req.Name)
	}

	if project.VolumeName != "" {
		if err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
			return s.runtime.CreateVolume(ctx, project.VolumeName)
		}); err != nil {
			s.removeImageDetached(project.ImageTag)
			return nil, apperr.Runtime("create project volume", err)
		}
	}

	if err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		_, createErr := s.runtime.CreateProjectContainer(ctx, docker.ContainerSpec{
			Name:        project.ContainerName,
			ProjectName: project.Name,
			Image:       project.ImageTag,
			Env:         envSlice(req.EnvVars),
			VolumeName:  project.VolumeName,
			VolumePath:  project.VolumePath,
		})
		return createErr
	}); err != nil {
		s.removeImageDetached(project.ImageTag)
		s.removeVolumeDetached(project.VolumeName)
		return nil, apperr.Runtime("create project container", err)
	}

	var details *domain.TenantDatabaseDetails
	details, err = s.persistDeploy(ctx, project, req)
	if err != nil {
		s.cleanupRuntimeDetached(project)
		return nil, err
	}
	return &DeployResult{Project: project, Database: details}, nil
}

// persistDeploy writes the project row, the optional tenant database and the
// participant set in one transaction. On any failure the transaction is
// rolled back and engine-side tenant objects, if provisioned, are torn down.
func (s *Service) persistDeploy(ctx context.Context, project *domain.Project, req DeployRequest) (*domain.TenantDatabaseDetails, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, apperr.Persistence("begin transaction", err)
	}

	dbProvisioned := false
	abort := func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error("transaction rollback failed", "project", project.Name, "error", rbErr)
		}
		if dbProvisioned {
			s.teardownTenantDetached(project.Owner)
		}
	}

	if err := tx.CreateProject(ctx, project); err != nil {
		abort()
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Conflict("project name or owner already in use")
		}
		return nil, apperr.Persistence("create project row", err)
	}

	var details *domain.TenantDatabaseDetails
	if req.ProvisionDatabase {
		details, err = s.tenantDB.ProvisionAndLink(ctx, tx, project.Owner, project.ID)
		if err != nil {
			abort()
			return nil, err
		}
		dbProvisioned = true
	}

	for _, participant := range req.Participants {
		if err := tx.AddParticipant(ctx, project.ID, project.Owner, participant); err != nil {
			abort()
			if errors.Is(err, repository.ErrInvalidArgument) {
				return nil, apperr.Validation("participant %s cannot be the project owner", participant)
			}
			return nil, apperr.Persistence("add project participant", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		abort()
		return nil, apperr.Persistence("commit project transaction", err)
	}
	return details, nil
}

func (s *Service) validateDeploy(req DeployRequest) error {
	if err := validate.ProjectName(req.Name); err != nil {
		return err
	}
	if req.Owner == "" {
		return apperr.Validation("owner cannot be empty")
	}
	if req.SourceKind != domain.SourceDirect && req.SourceKind != domain.SourceGithub {
		return apperr.Validation("exactly one of image reference or repository URL must be provided")
	}
	if req.VolumePath != "" {
		if req.SourceKind != domain.SourceDirect {
			return apperr.Validation("volume path cannot be chosen for repository-sourced projects")
		}
		if err := validate.VolumePath(req.VolumePath); err != nil {
			return err
		}
	}
	return validateEnvNames(req.EnvVars)
}

func (s *Service) fastRejects(ctx context.Context, req DeployRequest) error {
	taken, err := s.store.ProjectNameTaken(ctx, req.Name)
	if err != nil {
		return apperr.Persistence("check project name", err)
	}
	if taken {
		return apperr.Conflict("project name %s is already taken", req.Name)
	}
	has, err := s.store.OwnerHasProject(ctx, req.Owner)
	if err != nil {
		return apperr.Persistence("check owner project", err)
	}
	if has {
		return apperr.Conflict("owner %s already has a project", req.Owner)
	}
	if req.ProvisionDatabase {
		hasDB, err := s.store.OwnerHasDatabase(ctx, req.Owner)
		if err != nil {
			return apperr.Persistence("check owner database", err)
		}
		if hasDB {
			return apperr.Conflict("owner %s already has a database", req.Owner)
		}
	}
	return nil
}

// Purge tears a project down: linked tenant database first, then container,
// volume, image, and finally the metadata row.
func (s *Service) Purge(ctx context.Context, id int64, owner string) (err error) {
	defer func() { s.metrics.record("purge", err) }()

	project, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}

	linked, err := s.store.GetDatabaseByProject(ctx, project.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Persistence("look up linked database", err)
	}
	if linked != nil {
		if err = s.tenantDB.Deprovision(ctx, linked.ID, owner); err != nil {
			return err
		}
	}

	if err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		return s.runtime.RemoveContainer(ctx, project.ContainerName)
	}); err != nil {
		return apperr.Runtime("remove project container", err)
	}
	if project.VolumeName != "" {
		if err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
			return s.runtime.RemoveVolume(ctx, project.VolumeName)
		}); err != nil {
			return apperr.Runtime("remove project volume", err)
		}
	}
	if err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		return s.runtime.RemoveImage(ctx, project.ImageTag)
	}); err != nil {
		return apperr.Runtime("remove project image", err)
	}

	if err = s.store.DeleteProject(ctx, project.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		s.logger.Error("orphaned metadata: project row survived after runtime teardown",
			"project", project.Name, "id", project.ID, "error", err)
		return apperr.Internal(fmt.Errorf("delete project row: %w", err))
	}
	return nil
}

// UpdateImage replaces a project's running image. The old container is
// removed before the new one is created; a creation failure at that point
// leaves the project down and is reported, not retried.
func (s *Service) UpdateImage(ctx context.Context, id int64, owner, newLocator string) (err error) {
	defer func() { s.metrics.record("update_image", err) }()

	project, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.opts.AcquireTimeout)
	resolved, err := s.sources.Resolve(acquireCtx, project.SourceKind, newLocator, project.Name, project.VolumePath)
	cancel()
	if err != nil {
		return err
	}

	oldImage := project.ImageTag
	if err = s.replaceContainer(ctx, project, resolved.ImageTag, project.EnvVars); err != nil {
		return err
	}

	if err = s.store.UpdateProjectImage(ctx, project.ID, newLocator, resolved.ImageTag); err != nil {
		s.logger.Error("project image updated in runtime but not in metadata",
			"project", project.Name, "image", resolved.ImageTag, "error", err)
		return apperr.Persistence("persist image update", err)
	}

	if oldImage != resolved.ImageTag {
		s.removeImageDetached(oldImage)
	}
	return nil
}

// UpdateEnv replaces a project's environment variables and recreates the
// container with them.
func (s *Service) UpdateEnv(ctx context.Context, id int64, owner string, vars map[string]string) (err error) {
	defer func() { s.metrics.record("update_env", err) }()

	if err = validateEnvNames(vars); err != nil {
		return err
	}
	project, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}
	encrypted, err := s.encryptEnv(vars)
	if err != nil {
		return err
	}

	if err = s.replaceContainer(ctx, project, project.ImageTag, encrypted); err != nil {
		return err
	}

	if err = s.store.UpdateProjectEnv(ctx, project.ID, encrypted); err != nil {
		s.logger.Error("project environment updated in runtime but not in metadata",
			"project", project.Name, "error", err)
		return apperr.Persistence("persist environment update", err)
	}
	return nil
}

// replaceContainer removes the current container and creates a fresh one
// from image and the encrypted environment.
func (s *Service) replaceContainer(ctx context.Context, project *domain.Project, image string, encryptedEnv map[string]string) error {
	env, err := s.decryptEnv(encryptedEnv)
	if err != nil {
		return err
	}

	if err := s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		return s.runtime.RemoveContainer(ctx, project.ContainerName)
	}); err != nil {
		return apperr.Runtime("remove project container", err)
	}

	if err := s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		_, createErr := s.runtime.CreateProjectContainer(ctx, docker.ContainerSpec{
			Name:        project.ContainerName,
			ProjectName: project.Name,
			Image:       image,
			Env:         env,
			VolumeName:  project.VolumeName,
			VolumePath:  project.VolumePath,
		})
		return createErr
	}); err != nil {
		s.logger.Error("project is down: old container removed but replacement failed",
			"project", project.Name, "image", image, "error", err)
		return apperr.Runtime("create replacement container", err)
	}
	return nil
}

// Status returns the project and its container state. A nil state means the
// container no longer exists.
func (s *Service) Status(ctx context.Context, id int64, principal string) (*domain.Project, *domain.ContainerState, error) {
	project, err := s.loadVisible(ctx, id, principal)
	if err != nil {
		return nil, nil, err
	}
	var state *domain.ContainerState
	err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		var inspectErr error
		state, inspectErr = s.runtime.InspectContainer(ctx, project.ContainerName)
		return inspectErr
	})
	if err != nil {
		return nil, nil, apperr.Runtime("inspect project container", err)
	}
	return project, state, nil
}

// Metrics samples the project container's resource usage.
func (s *Service) Metrics(ctx context.Context, id int64, principal string) (domain.MetricsSample, error) {
	project, err := s.loadVisible(ctx, id, principal)
	if err != nil {
		return domain.MetricsSample{}, err
	}
	var sample domain.MetricsSample
	err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		var sampleErr error
		sample, sampleErr = s.runtime.ContainerMetrics(ctx, project.ContainerName)
		return sampleErr
	})
	if err != nil {
		if errors.Is(err, docker.ErrNotFound) {
			return domain.MetricsSample{}, apperr.LostContainer(project.ContainerName)
		}
		return domain.MetricsSample{}, apperr.Runtime("sample container metrics", err)
	}
	return sample, nil
}

// Logs returns up to tail lines of the project container's output.
func (s *Service) Logs(ctx context.Context, id int64, principal string, tail int) (string, error) {
	project, err := s.loadVisible(ctx, id, principal)
	if err != nil {
		return "", err
	}
	var logs string
	err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		var logsErr error
		logs, logsErr = s.runtime.ContainerLogs(ctx, project.ContainerName, tail)
		return logsErr
	})
	if err != nil {
		if errors.Is(err, docker.ErrNotFound) {
			return "", apperr.LostContainer(project.ContainerName)
		}
		return "", apperr.Runtime("read container logs", err)
	}
	return logs, nil
}

// Start brings a stopped project container back up.
func (s *Service) Start(ctx context.Context, id int64, owner string) error {
	return s.lifecycle(ctx, id, owner, "start", s.runtime.StartContainer)
}

// Stop stops a project container without removing it.
func (s *Service) Stop(ctx context.Context, id int64, owner string) error {
	return s.lifecycle(ctx, id, owner, "stop", s.runtime.StopContainer)
}

// Restart restarts a project container.
func (s *Service) Restart(ctx context.Context, id int64, owner string) error {
	return s.lifecycle(ctx, id, owner, "restart", s.runtime.RestartContainer)
}

func (s *Service) lifecycle(ctx context.Context, id int64, owner, verb string, op func(ctx context.Context, name string) error) error {
	project, err := s.loadOwned(ctx, id, owner)
	if err != nil {
		return err
	}
	err = s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
		return op(ctx, project.ContainerName)
	})
	if err != nil {
		if errors.Is(err, docker.ErrNotFound) {
			return apperr.LostContainer(project.ContainerName)
		}
		return apperr.Runtime(fmt.Sprintf("%s project container", verb), err)
	}
	return nil
}

// ListProjects returns every managed project.
func (s *Service) ListProjects(ctx context.Context) ([]domain.Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, apperr.Persistence("list projects", err)
	}
	return projects, nil
}

// DownProjects reports projects whose containers are stopped, longest down
// first. Projects whose containers no longer exist are included with no
// stop timestamp.
func (s *Service) DownProjects(ctx context.Context) ([]domain.DownProject, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, apperr.Persistence("list projects", err)
	}

	now := time.Now().UTC()
	var down []domain.DownProject
	for i := range projects {
		project := projects[i]
		var state *domain.ContainerState
		err := s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
			var inspectErr error
			state, inspectErr = s.runtime.InspectContainer(ctx, project.ContainerName)
			return inspectErr
		})
		if err != nil {
			return nil, apperr.Runtime("inspect project container", err)
		}
		switch {
		case state == nil:
			down = append(down, domain.DownProject{Project: project})
		case !state.Running:
			entry := domain.DownProject{Project: project, StoppedAt: state.FinishedAt}
			if !state.FinishedAt.IsZero() {
				entry.DowntimeSeconds = int64(now.Sub(state.FinishedAt).Seconds())
			}
			down = append(down, entry)
		}
	}
	sort.Slice(down, func(i, j int) bool {
		return down[i].DowntimeSeconds > down[j].DowntimeSeconds
	})
	return down, nil
}

// GlobalMetrics aggregates usage across all managed containers. Containers
// that disappeared or cannot be sampled are skipped, not fatal.
func (s *Service) GlobalMetrics(ctx context.Context) (domain.GlobalMetrics, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return domain.GlobalMetrics{}, apperr.Persistence("list projects", err)
	}

	agg := domain.GlobalMetrics{TotalProjects: int64(len(projects))}
	for i := range projects {
		project := projects[i]
		var state *domain.ContainerState
		inspectErr := s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
			var err error
			state, err = s.runtime.InspectContainer(ctx, project.ContainerName)
			return err
		})
		if inspectErr != nil || state == nil || !state.Running {
			continue
		}
		agg.RunningContainers++

		var sample domain.MetricsSample
		sampleErr := s.withRuntimeTimeout(ctx, func(ctx context.Context) error {
			var err error
			sample, err = s.runtime.ContainerMetrics(ctx, project.ContainerName)
			return err
		})
		if sampleErr != nil {
			s.logger.Warn("could not sample container for aggregate metrics",
				"container", project.ContainerName, "error", sampleErr)
			continue
		}
		agg.CPUPercent += sample.CPUPercent
		agg.MemoryUsage += sample.MemoryUsage
	}
	return agg, nil
}

func (s *Service) loadOwned(ctx context.Context, id int64, owner string) (*domain.Project, error) {
	project, err := s.store.GetProjectByIDAndOwner(ctx, id, owner)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("project")
		}
		return nil, apperr.Persistence("load project", err)
	}
	return project, nil
}

func (s *Service) loadVisible(ctx context.Context, id int64, principal string) (*domain.Project, error) {
	project, err := s.store.GetProjectForMember(ctx, id, principal)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("project")
		}
		return nil, apperr.Persistence("load project", err)
	}
	return project, nil
}

// encryptEnv independently encrypts every value, keyed by variable name.
func (s *Service) encryptEnv(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return map[string]string{}, nil
	}
	encrypted := make(map[string]string, len(vars))
	for name, value := range vars {
		sealed, err := crypto.EncryptToString(s.opts.EncryptionKey, value)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("encrypt environment variable: %w", err))
		}
		encrypted[name] = sealed
	}
	return encrypted, nil
}

func (s *Service) decryptEnv(encrypted map[string]string) ([]string, error) {
	env := make([]string, 0, len(encrypted))
	for name, sealed := range encrypted {
		value, err := crypto.DecryptFromString(s.opts.EncryptionKey, sealed)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("decrypt environment variable: %w", err))
		}
		env = append(env, name+"="+value)
	}
	sort.Strings(env)
	return env, nil
}

func validateEnvNames(vars map[string]string) error {
	for name := range vars {
		if err := validate.EnvVarName(name); err != nil {
			return err
		}
	}
	return nil
}

func envSlice(vars map[string]string) []string {
	env := make([]string, 0, len(vars))
	for name, value := range vars {
		env = append(env, name+"="+value)
	}
	sort.Strings(env)
	return env
}

func (s *Service) withRuntimeTimeout(ctx context.Context, op func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.RuntimeTimeout)
	defer cancel()
	return op(opCtx)
}

// cleanupRuntimeDetached undoes the container, volume and image of a deploy
// whose metadata never committed. Never awaited; failures are logged only.
func (s *Service) cleanupRuntimeDetached(project *domain.Project) {
	containerName := project.ContainerName
	volumeName := project.VolumeName
	imageTag := project.ImageTag
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
		defer cancel()
		if err := s.runtime.RemoveContainer(ctx, containerName); err != nil {
			s.logger.Error("orphaned container: cleanup failed", "container", containerName, "error", err)
		}
		if volumeName != "" {
			if err := s.runtime.RemoveVolume(ctx, volumeName); err != nil {
				s.logger.Error("orphaned volume: cleanup failed", "volume", volumeName, "error", err)
			}
		}
		if err := s.runtime.RemoveImage(ctx, imageTag); err != nil {
			s.logger.Error("orphaned image: cleanup failed", "image", imageTag, "error", err)
		}
	}()
}

func (s *Service) removeImageDetached(imageTag string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
		defer cancel()
		if err := s.runtime.RemoveImage(ctx, imageTag); err != nil {
			s.logger.Error("orphaned image: cleanup failed", "image", imageTag, "error", err)
		}
	}()
}

func (s *Service) removeVolumeDetached(volumeName string) {
	if volumeName == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
		defer cancel()
		if err := s.runtime.RemoveVolume(ctx, volumeName); err != nil {
			s.logger.Error("orphaned volume: cleanup failed", "volume", volumeName, "error", err)
		}
	}()
}

func (s *Service) teardownTenantDetached(owner string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CleanupTimeout)
		defer cancel()
		if err := s.tenantDB.TeardownEngine(ctx, owner); err != nil {
			s.logger.Error("orphaned tenant database: engine teardown failed after rollback",
				"owner", owner, "error", err)
		}
	}()
}
