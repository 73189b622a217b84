/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spaghettifunk/cadence/engine"
	"github.com/spaghettifunk/cadence/engine/config"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML configuration")
	debug := flag.Bool("debug", false, "enable the Vulkan validation layer")
	flag.Parse()

	if err := run(*configPath, *debug); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := core.MetricsInitialize(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	// signal context to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}
		go func() {
			core.LogInfo("serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				core.LogError("metrics server: %s", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		Name:       "Cadence Testbed",
		ConfigPath: configPath,
		Debug:      debug,
	})

	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, e.ApplyConfig); err != nil {
				core.LogWarn("config reload disabled: %s", err)
			}
		}()
	}

	runErr := e.Run(ctx)
	return errors.Join(runErr, e.Shutdown())
}
