package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/httpapi"
	"horse.fit/median/internal/metrics"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 10*time.Minute, "HTTP write timeout (covers synchronous discovery runs)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := validatePort(*port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	env, err := openEnvironment(10*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer env.Close()
	logger := env.logger

	wired, err := buildPipelines(env, metrics.New())
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to build pipelines")
		fmt.Fprintf(os.Stderr, "Failed to build pipelines: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	if env.cfg.EnableCron {
		if wired.cycle == nil {
			logger.Warn().Msg("ENABLE_CRON set but discovery is disabled; schedule not started")
		} else {
			if _, err := wired.cycle.Setup(env.cfg.CronSchedule); err != nil {
				logger.Error().Err(err).Msg("failed to start scheduler")
				fmt.Fprintf(os.Stderr, "Failed to start scheduler: %v\n", err)
				return 1
			}
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
				defer stopCancel()
				if err := wired.cycle.Stop(stopCtx); err != nil {
					logger.Warn().Err(err).Msg("scheduler stop")
				}
			}()
		}
	}

	deps := httpapi.Deps{
		Store:    env.pool,
		Ranker:   wired.ranker,
		Analyzer: wired.analyzer,
		Metrics:  wired.metrics,
	}
	// Leave the interfaces nil rather than holding typed nil pointers.
	if wired.discovery != nil {
		deps.Discovery = wired.discovery
		deps.Cycle = wired.cycle
	}

	srv := httpapi.NewServer(deps, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		CronSecret:      env.cfg.CronSecret,
		AllowedOrigins:  env.cfg.CORSAllowedOriginsList(),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
