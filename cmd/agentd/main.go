package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"agentd/internal/backend"
	"agentd/internal/breaker"
	"agentd/internal/config"
	"agentd/internal/executor"
	"agentd/internal/httpapi"
	"agentd/internal/orchestrator"
	"agentd/internal/profile"
	"agentd/internal/queue"
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envDefault("AGENTD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	configPath := flag.String("config", envDefault("AGENTD_CONFIG", ""), "Path to config file (.yaml/.json/.toml)")
	backendURL := flag.String("backend-url", envDefault("AGENTD_BACKEND_URL", "http://127.0.0.1:11434"), "Base URL of the model backend")
	workers := flag.Int("workers", 0, "Worker pool size (0=default)")
	memoryLimitMB := flag.Int("memory-limit-mb", 0, "Capacity limit in MB (0=detect from host memory)")
	flag.Parse()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	// Flags override the file.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *memoryLimitMB > 0 {
		cfg.MemoryLimitMB = *memoryLimitMB
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	httpapi.SetLogger(logger)

	original, fallback, err := buildProfiles(cfg)
	if err != nil {
		log.Fatalf("invalid profile configuration: %v", err)
	}

	pm := profile.NewManager(profile.ManagerConfig{
		Original:                 original,
		Fallback:                 fallback,
		FallbackThreshold:        cfg.FallbackThreshold,
		RecoverySuccessThreshold: cfg.RecoverySuccessThreshold,
	})
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold:     cfg.Breaker.FailureThreshold,
		FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
		WindowSize:           time.Duration(cfg.Breaker.WindowSeconds) * time.Second,
		SuccessThreshold:     cfg.Breaker.SuccessThreshold,
		OpenTimeout:          time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
		HalfOpenMaxRequests:  cfg.Breaker.HalfOpenMaxRequests,
	}, pm)

	be := backend.New(backend.Config{BaseURL: cfg.BackendURL})
	orch, err := orchestrator.New(orchestrator.Config{
		Backend:            be,
		Profiles:           pm,
		Reporter:           pm,
		ReserveFraction:    cfg.ReserveFraction,
		LimitMB:            cfg.MemoryLimitMB,
		KeepAlive:          time.Duration(cfg.KeepAliveMinutes) * time.Minute,
		CapacityRetries:    cfg.CapacityRetries,
		CapacityRetryDelay: time.Duration(cfg.CapacityRetryDelaySeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}

	exec := executor.New(orch, be, pm)
	timeouts := queue.DefaultTimeouts()
	qm := queue.NewManager(queue.ManagerConfig{
		Queue: queue.QueueConfig{MaxDepth: cfg.MaxQueueDepth},
		Pool: queue.PoolConfig{
			Workers:  cfg.Workers,
			Timeouts: timeouts,
			Breakers: breakers,
			Executor: exec,
		},
		Monitor: queue.MonitorConfig{
			Interval:   time.Duration(cfg.VisibilityIntervalSeconds) * time.Second,
			Timeouts:   queue.DefaultVisibility(timeouts),
			MaxRetries: cfg.MaxRetries,
			Breakers:   breakers,
		},
		OrchestratorStatus: orch.Status,
		ProfileStatus:      pm.Status,
		BreakerMetrics:     breakers.Metrics,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	qm.Start(ctx)

	prober := orchestrator.NewProber(orch, pm, time.Duration(cfg.ProbeIntervalSeconds)*time.Second)
	go prober.Run(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(qm)}
	go func() {
		log.Printf("agentd listening on %s (backend: %s, profile: %s)", cfg.Addr, cfg.BackendURL, original.Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
	qm.Stop()
}

// buildProfiles converts configured profiles, falling back to a built-in
// pair so the daemon runs without a config file.
func buildProfiles(cfg config.Config) (profile.Profile, profile.Profile, error) {
	if len(cfg.Profile.Resources) == 0 {
		return defaultOriginalProfile(), defaultFallbackProfile(), nil
	}
	original, err := cfg.Profile.ToProfile()
	if err != nil {
		return profile.Profile{}, profile.Profile{}, err
	}
	if len(cfg.FallbackProfile.Resources) == 0 {
		return original, defaultFallbackProfile(), nil
	}
	fallback, err := cfg.FallbackProfile.ToProfile()
	if err != nil {
		return profile.Profile{}, profile.Profile{}, err
	}
	return original, fallback, nil
}
