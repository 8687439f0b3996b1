// Command engineadapterd exposes a single Proxmox VE node's VM lifecycle
// over the coordinator's JSON-RPC surface. One process manages one
// hypervisor node; the coordinator's enginehandler dials it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wsfleet/coordinator/internal/buildinfo"
	"github.com/wsfleet/coordinator/internal/config"
	"github.com/wsfleet/coordinator/internal/coordinator"
	"github.com/wsfleet/coordinator/internal/engineadapter"
	"github.com/wsfleet/coordinator/internal/engineadapter/proxmoxrest"
	"github.com/wsfleet/coordinator/internal/enginehandler"
	"github.com/wsfleet/coordinator/internal/metrics"
	"github.com/wsfleet/coordinator/internal/reservation"
	"github.com/wsfleet/coordinator/internal/rpcclient"
	"github.com/wsfleet/coordinator/internal/store/sqlite"
)

func main() {
	var showVersion bool
	var configPath string

	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.ProxmoxHost == "" {
		log.Fatalf("config error: proxmox_host is required")
	}
	if _, statErr := os.Stat(cfg.ConfigPath); statErr == nil {
		if warning, permErr := config.CheckConfigPermissions(cfg.ConfigPath); permErr != nil {
			log.Fatalf("config permissions: %v", permErr)
		} else if warning != "" {
			log.Printf("warning: %s", warning)
		}
	}

	logger := log.New(os.Stderr, "engineadapterd: ", log.LstdFlags)
	logger.Printf("starting (%s) node=%s", buildinfo.String(), cfg.ProxmoxPrimaryNode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("engineadapterd error: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	backend := proxmoxrest.New(cfg.ProxmoxHost, cfg.ProxmoxAPIToken, cfg.ProxmoxVerifySSL, cfg.CommandTimeout)
	server := engineadapter.NewServer(backend, cfg.ProxmoxPrimaryNode)
	server.CommandTimeout = cfg.CommandTimeout

	if err := server.RefreshCaches(ctx); err != nil {
		return fmt.Errorf("refresh caches: %w", err)
	}

	// RunCoordinatorHere lets a single-node deployment run the control loop
	// in the same process as its engine adapter, matching the reference
	// engine's RUN_COORDINATOR escape hatch for small installs that don't
	// want a separate coordinatord.
	if cfg.RunCoordinatorHere {
		c, err := embeddedCoordinator(cfg, logger)
		if err != nil {
			return fmt.Errorf("embedded coordinator: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start embedded coordinator: %w", err)
		}
		defer c.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1", engineadapter.NewHandler(server, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              cfg.ProxmoxListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ProxmoxListen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// embeddedCoordinator wires a full coordinator against its own store, for
// RunCoordinatorHere deployments. It does not share the adapter's
// in-process Server, since the coordinator always reaches engines over
// rpcclient the same way it would for a remote engineadapterd.
func embeddedCoordinator(cfg config.Config, logger *log.Logger) (*coordinator.Coordinator, error) {
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	m := metrics.NewMetrics()
	newCaller := func(endpoint string) rpcclient.Caller { return rpcclient.New(endpoint) }
	engines := enginehandler.New(st, newCaller, enginehandler.Deps{
		Logger:  enginehandler.StdLogger{Logger: logger},
		Metrics: m,
	})
	reservations := reservation.New(st, engines, reservation.Deps{
		Logger:  reservation.StdLogger{Logger: logger},
		Metrics: m,
	})
	return coordinator.New(st, engines, reservations, coordinator.Deps{
		Logger:       coordinator.StdLogger{Logger: logger},
		Metrics:      m,
		TickInterval: cfg.TickInterval,
	}), nil
}
