package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dronefleet/orchestrator/internal/config"
	"github.com/dronefleet/orchestrator/internal/domainlimiter"
	"github.com/dronefleet/orchestrator/internal/droneregistry"
	"github.com/dronefleet/orchestrator/internal/intervention"
	"github.com/dronefleet/orchestrator/internal/lifecycle"
	"github.com/dronefleet/orchestrator/internal/lock"
	"github.com/dronefleet/orchestrator/internal/logx"
	"github.com/dronefleet/orchestrator/internal/metrics"
	"github.com/dronefleet/orchestrator/internal/model"
	"github.com/dronefleet/orchestrator/internal/persona"
	"github.com/dronefleet/orchestrator/internal/scheduler"
	"github.com/dronefleet/orchestrator/internal/sink"
	"github.com/dronefleet/orchestrator/internal/suffix"
	"github.com/dronefleet/orchestrator/internal/transport"
)

// completedCommandTTL bounds how long the lifecycle tracker remembers a
// terminal command's result for a late waitForAcknowledgement caller.
const completedCommandTTL = 2 * time.Minute

func newServeCmd() *cobra.Command {
	var (
		configPath   string
		addr         string
		metricsAddr  string
		personaDir   string
		deadLetterDir string
		dataDir      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, serveOptions{
				configPath:    configPath,
				addr:          addr,
				metricsAddr:   metricsAddr,
				personaDir:    personaDir,
				deadLetterDir: deadLetterDir,
				dataDir:       dataDir,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the orchestrator's config.yaml")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address the drone/operator websocket transport listens on")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
	cmd.Flags().StringVar(&personaDir, "persona-dir", "./personas", "directory of <personaId>.yaml persona files")
	cmd.Flags().StringVar(&deadLetterDir, "dead-letter-dir", "./dead_letters", "directory dead-lettered commands are archived to")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory holding the single-instance lock file")

	return cmd
}

type serveOptions struct {
	configPath    string
	addr          string
	metricsAddr   string
	personaDir    string
	deadLetterDir string
	dataDir       string
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fileLock := lock.NewFileLock(opts.dataDir + "/orchestrator.lock")
	if err := os.MkdirAll(opts.dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := fileLock.TryLock(); err != nil {
		return fmt.Errorf("acquire single-instance lock: %w", err)
	}
	defer fileLock.Unlock()

	log := logx.New(nil, "orchestrator", logx.ParseLevel(cfg.Logging.Level))

	reg := prometheus.NewRegistry()
	met := metrics.NewPrometheus(reg)

	host, err := newHost(cfg, hostDeps{
		Log:           log,
		Metrics:       met,
		PersonaDir:    opts.personaDir,
		DeadLetterDir: opts.deadLetterDir,
		APIKey:        cfg.Server.ApiKey,
	})
	if err != nil {
		return fmt.Errorf("wire host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host.scheduler.Start(ctx)
	defer host.scheduler.Stop()
	go host.limiter.RunSweeper(0)
	defer host.limiter.Stop()

	watcher, err := config.NewWatcher(opts.configPath, log, func(reloaded config.Config) {
		log.Info("applying reloaded config")
		host.applyConfig(reloaded)
	})
	if err != nil {
		log.Warn("config_watch_unavailable path=%s error=%v", opts.configPath, err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	drainErrs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()
		mux.Handle("/drones", host.hub)
		srv := &http.Server{Addr: opts.addr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info("transport_listening addr=%s", opts.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			drainErrs <- fmt.Errorf("transport server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics_listening addr=%s", opts.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			drainErrs <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received signal=%s, shutting down", sig)
	case err := <-drainErrs:
		log.Error("server_error error=%v", err)
	}

	cancel()
	wg.Wait()
	log.Info("orchestrator stopped")
	return nil
}

// host bundles every wired component so config reloads can be applied to
// the pieces that support it (the domain limiter takes new thresholds in
// place; the intervention manager, scheduler and transport keep running
// with the settings they were built with).
type host struct {
	scheduler    *scheduler.Scheduler
	intervention *intervention.Manager
	hub          *transport.Hub

	mu      sync.Mutex
	limiter *domainlimiter.Limiter
}

type hostDeps struct {
	Log           *logx.Logger
	Metrics       metrics.Metrics
	PersonaDir    string
	DeadLetterDir string
	APIKey        string
}

func newHost(cfg config.Config, deps hostDeps) (*host, error) {
	hub := transport.NewHub(deps.APIKey, deps.Log.With("transport"))
	registry := droneregistry.New()
	limiter := domainlimiter.New(cfg.DomainLimiterConfig(), deps.Log.With("domainlimiter"), deps.Metrics)
	tracker := lifecycle.New(deps.Log.With("lifecycle"), deps.Metrics, completedCommandTTL)
	suffixIdx := suffix.New(deps.Log.With("suffix"))
	personas := persona.NewMemoryStore(persona.FileSource(deps.PersonaDir))

	lockMap := lock.NewMutexMap()
	deadLetter := sink.NewFileDeadLetterSink(deps.DeadLetterDir, lockMap, deps.Log.With("deadletter"))
	notifier := sink.NewDesktopInterventionNotifier()

	interventionMgr := intervention.New(cfg.InterventionManagerConfig(), intervention.Deps{
		Transport: hub,
		Metrics:   deps.Metrics,
		Log:       deps.Log.With("intervention"),
	})

	h := &host{hub: hub, intervention: interventionMgr, limiter: limiter}

	sched := scheduler.New(cfg.SchedulerConfig(), scheduler.Deps{
		Log:       deps.Log.With("scheduler"),
		Metrics:   deps.Metrics,
		Transport: hub,
		Registry:  registry,
		Limiter:   limiter,
		Tracker:   tracker,
		Personas:  personas,
		Suffix:    suffixIdx,

		Artifacts:  sink.NewMemoryArtifactSink(),
		Sessions:   sink.NewMemorySessionRegistry(),
		DeadLetter: deadLetter,
		Notifier:   notifier,

		OnInterventionRequired: func(payload model.InterventionPayload) {
			parent := model.CommandPayload{CommandID: payload.CommandID, Type: payload.Type}
			if _, err := interventionMgr.Initiate(context.Background(), payload.Reason, parent); err != nil {
				deps.Log.Warn("intervention_initiate_failed command_id=%s error=%v", payload.CommandID, err)
			}
		},
	})
	h.scheduler = sched

	return h, nil
}

// applyConfig swaps in the tunables a config reload can change without a
// restart. The scheduler, intervention manager and transport layer keep
// their existing instances and settings (spec.md doesn't name hot-swapping
// the dispatch pipeline itself); only the domain limiter's admission
// thresholds change, taking effect for later admission checks.
func (h *host) applyConfig(cfg config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limiter.ApplyConfig(cfg.DomainLimiterConfig())
}
