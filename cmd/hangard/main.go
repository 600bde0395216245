package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hangar-sh/hangar/internal/app/migrate"
	"github.com/hangar-sh/hangar/internal/docker"
	"github.com/hangar-sh/hangar/internal/github"
	"github.com/hangar-sh/hangar/internal/repository/postgres"
	"github.com/hangar-sh/hangar/internal/scanner"
	"github.com/hangar-sh/hangar/internal/service/deploy"
	"github.com/hangar-sh/hangar/internal/source"
	"github.com/hangar-sh/hangar/internal/tenantdb"
	"github.com/hangar-sh/hangar/internal/workspace"
	"github.com/hangar-sh/hangar/pkg/config"
	"github.com/hangar-sh/hangar/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	log := logger.New("hangard", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	cfg, err := config.LoadHangarConfig()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to metadata store", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migration runner", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	engine, err := tenantdb.OpenEngine(ctx, cfg.TenantDSN)
	if err != nil {
		log.Error("failed to connect to tenant engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	dockerClient, err := docker.New(cfg.DockerHost, docker.Options{
		AppPrefix:           cfg.AppPrefix,
		DomainSuffix:        cfg.DomainSuffix,
		Network:             cfg.DockerNetwork,
		TraefikEntrypoint:   cfg.TraefikEntry,
		TraefikCertResolver: cfg.TraefikResolver,
		MemoryMB:            cfg.ContainerMemoryMB,
		CPUQuota:            cfg.ContainerCPUQuota,
	}, log)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer dockerClient.Close()

	if err := dockerClient.Ping(ctx); err != nil {
		log.Error("docker ping failed", "error", err)
		os.Exit(1)
	}

	workspaceManager, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Error("workspace init failed", "error", err, "root", cfg.WorkspaceRoot)
		os.Exit(1)
	}

	var appClient source.AppClient
	if cfg.GithubAppID != "" && len(cfg.GithubPrivateKey) > 0 {
		client, err := github.New(cfg.GithubAppID, cfg.GithubPrivateKey)
		if err != nil {
			log.Error("failed to configure github app client", "error", err)
			os.Exit(1)
		}
		appClient = client
	} else {
		log.Warn("github app credentials not configured; private repositories will not deploy")
	}

	store := postgres.New(pool)
	scan := scanner.New(cfg.ScanFailOnSeverity, log)
	resolver := source.New(dockerClient, scan, appClient, workspaceManager, source.Options{
		BaseImage:      cfg.BuildBaseImage,
		LocalNamespace: cfg.LocalNamespace,
	}, log)
	provisioner := tenantdb.New(engine, store, tenantdb.Options{
		PublicHost:    cfg.TenantPublicHost,
		PublicPort:    cfg.TenantPublicPort,
		EncryptionKey: cfg.EncryptionKey,
	}, log)

	orchestrator := deploy.New(store, dockerClient, resolver, provisioner, deploy.Options{
		AppPrefix:      cfg.AppPrefix,
		EncryptionKey:  cfg.EncryptionKey,
		AcquireTimeout: cfg.TimeoutLong,
		RuntimeTimeout: cfg.TimeoutNormal,
		CleanupTimeout: cfg.TimeoutNormal,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/projects", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, func() (any, error) { return orchestrator.ListProjects(r.Context()) })
	})
	mux.HandleFunc("/admin/projects/down", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, func() (any, error) { return orchestrator.DownProjects(r.Context()) })
	})
	mux.HandleFunc("/admin/usage", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, func() (any, error) { return orchestrator.GlobalMetrics(r.Context()) })
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dockerClient.Ping(r.Context()); err != nil {
			http.Error(w, "docker unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "metadata store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("observability server starting", "addr", cfg.MetricsAddr)
		errorCh <- srv.ListenAndServe()
	}()

	waitForShutdown(ctx, srv, errorCh, log)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, fn func() (any, error)) {
	payload, err := fn()
	if err != nil {
		log.Error("admin view failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("encode admin view", "error", err)
	}
}

func waitForShutdown(ctx context.Context, srv *http.Server, errorCh <-chan error, log *slog.Logger) {
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("hangard stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
