// Command coordinatord is the control-loop daemon: it owns the fleet
// database, ticks reservations through their lifecycle, and drives engine
// adapters to provision and tear down workstations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wsfleet/coordinator/internal/buildinfo"
	"github.com/wsfleet/coordinator/internal/config"
	"github.com/wsfleet/coordinator/internal/coordinator"
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

	logger := log.New(os.Stderr, "coordinatord: ", log.LstdFlags)
	logger.Printf("starting (%s)", buildinfo.String())

	if _, statErr := os.Stat(cfg.ConfigPath); statErr == nil {
		if warning, permErr := config.CheckConfigPermissions(cfg.ConfigPath); permErr != nil {
			log.Fatalf("config permissions: %v", permErr)
		} else if warning != "" {
			logger.Printf("warning: %s", warning)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("coordinatord error: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer st.Close()

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

	c := coordinator.New(st, engines, reservations, coordinator.Deps{
		Logger:          coordinator.StdLogger{Logger: logger},
		Metrics:         m,
		TickInterval:    cfg.TickInterval,
		OrphanSweepEach: orphanSweepTicks(cfg),
		ControlListen:   cfg.ControlListen,
		MetricsListen:   cfg.MetricsListen,
	})

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	<-ctx.Done()
	logger.Printf("shutting down")
	c.Stop()
	return nil
}

// orphanSweepTicks converts the configured orphan sweep interval into a
// tick count, since the control loop only measures time in ticks. A sweep
// interval shorter than a single tick still runs every tick.
func orphanSweepTicks(cfg config.Config) int {
	if cfg.TickInterval <= 0 {
		return 1
	}
	n := int(cfg.OrphanSweepEach / cfg.TickInterval)
	if n < 1 {
		return 1
	}
	return n
}
