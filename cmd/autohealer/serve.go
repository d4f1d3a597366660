package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/wp-autohealer/engine/internal/breaker"
	"github.com/wp-autohealer/engine/internal/config"
	"github.com/wp-autohealer/engine/internal/flapping"
	"github.com/wp-autohealer/engine/internal/idempotency"
	"github.com/wp-autohealer/engine/internal/incident"
	"github.com/wp-autohealer/engine/internal/logging"
	"github.com/wp-autohealer/engine/internal/loopguard"
	"github.com/wp-autohealer/engine/internal/metrics"
	"github.com/wp-autohealer/engine/internal/playbook"
	"github.com/wp-autohealer/engine/internal/ports"
	"github.com/wp-autohealer/engine/internal/sshx"
	"github.com/wp-autohealer/engine/internal/vault"
)

func newServeCommand() *cobra.Command {
	var maxConcurrent int
	var overlayPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job engine loop until interrupted",
		Long:  "Loads configuration, wires every core collaborator, and dispatches incidents from the Incident Source to the engine until SIGINT/SIGTERM, shutting down gracefully.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			logger := logging.New(cfg.Log)
			sanitized := config.NewDefaultConfigSanitizer().Sanitize(cfg)
			logger.Info("autohealer: starting", "service", serviceName, "version", serviceVersion, "config", sanitized)

			overlay, err := playbook.LoadOverlayFile(overlayPath)
			if err != nil {
				return fmt.Errorf("loading playbook overlay: %w", err)
			}

			engine, source, err := buildEngine(cfg, logger, overlay)
			if err != nil {
				return fmt.Errorf("wiring engine: %w", err)
			}

			dispatcher := incident.NewDispatcher(source, engine, incident.DispatcherConfig{MaxConcurrent: maxConcurrent}, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("autohealer: dispatcher running", "max_concurrent", maxConcurrent)
			err = dispatcher.Serve(ctx)
			if err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info("autohealer: dispatcher stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 5, "maximum number of incidents driven concurrently")
	cmd.Flags().StringVar(&overlayPath, "playbook-overlay", "", "path to a YAML file disabling playbooks or overriding tier priority for this site (optional)")

	return cmd
}

// buildEngine wires a *incident.Engine from cfg in one composition root,
// assembling every collaborator a long-lived process needs before entering
// its run loop. The six capability ports are the in-memory reference
// implementations this repo ships; a real deployment substitutes its own
// without touching the engine's wiring shape.
func buildEngine(cfg *config.Config, logger *slog.Logger, overlay *playbook.Overlay) (*incident.Engine, *ports.StubIncidentSource, error) {
	reg := metrics.NewRegistry(cfg.Metrics.Namespace, prometheus.NewRegistry())

	key, err := cfg.Encryption.DecodeKey()
	if err != nil {
		return nil, nil, err
	}
	secretVault, err := vault.New(key)
	if err != nil {
		return nil, nil, err
	}

	pool := sshx.NewPool(cfg.SSH.PoolMaxSize, cfg.SSH.PoolMaxIdleTime(), logger, reg.SSH())
	executor := sshx.NewExecutor(pool, secretVault, logger, reg.SSH())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	flapController, err := flapping.NewController(redisClient, flapping.Config{
		Window:       cfg.Flapping.CooldownWindow(),
		MaxIncidents: cfg.Flapping.MaxIncidentsPerWindow,
	}, reg.Flapping())
	if err != nil {
		return nil, nil, fmt.Errorf("flapping controller: %w", err)
	}

	breakerConfig := breaker.DefaultConfig()
	breakerConfig.Threshold = cfg.Breaker.Threshold
	breakerConfig.RecoveryTimeout = cfg.Breaker.Timeout()
	breakerRegistry := breaker.NewRegistry(breakerConfig, reg.Breaker())

	guard := loopguard.NewGuard(loopguard.Config{
		MaxIterations: cfg.Loop.MaxIterations,
		MaxDuration:   cfg.Loop.MaxDuration(),
		MaxRetries:    cfg.Loop.MaxRetries,
	})

	idemStore, err := idempotency.NewStore(0,
		idempotency.WithRedis(redisClient, 0),
		idempotency.WithMetrics(reg.Idempotency()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("idempotency store: %w", err)
	}

	evidenceSink := ports.NewStubEvidenceSink()
	backupService := ports.NewStubBackupService()
	base := playbook.Base{Executor: executor, Backup: backupService, Evidence: evidenceSink, Metrics: reg.Playbooks(), Logger: logger}
	verify := ports.NewStubVerificationService()
	registry := playbook.NewDefaultRegistry(base, verify, logger)
	overlay.Apply(registry)
	tierExecutor := playbook.NewTierExecutor(registry, reg.Playbooks(), logger)

	engine := &incident.Engine{
		Directory:   ports.NewStubServerDirectory(),
		Evidence:    evidenceSink,
		Backup:      backupService,
		Verify:      verify,
		Escalation:  ports.NewStubEscalationSink(),
		SSH:         executor,
		Breaker:     breakerRegistry,
		Flapping:    flapController,
		LoopGuard:   guard,
		Idempotency: idemStore,
		Playbooks:   tierExecutor,
		Events:      incident.NewMemoryEventLog(),
		Metrics:     reg.Incidents(),
		Logger:      logger,
		Config: incident.Config{
			MaxFixAttempts: cfg.Incident.MaxFixAttempts,
			MaxTier:        "T6",
			VerifyTimeout:  cfg.SSH.ConnectionTimeout(),
		},
	}

	source := ports.NewStubIncidentSource()
	return engine, source, nil
}
