package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stackd/internal/config"
	"stackd/internal/httpapi"
	"stackd/internal/monitor"
	"stackd/internal/plan"
	"stackd/internal/probe"
	"stackd/internal/recovery"
	"stackd/internal/registry"
	"stackd/internal/supervise"
)

func newUpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start the stack and supervise it until shutdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(opts)
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the computed start order without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			reg, err := registry.Load(cfg)
			if err != nil {
				return err
			}
			order, err := plan.Plan(reg.Services())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, svc := range order {
				if len(svc.DependsOn) > 0 {
					fmt.Fprintf(out, "%d. %s (after %s)\n", i+1, svc.Name, strings.Join(svc.DependsOn, ", "))
				} else {
					fmt.Fprintf(out, "%d. %s\n", i+1, svc.Name)
				}
			}
			return nil
		},
	}
}

// runUp is the daemon path: validate, plan, start everything, then serve
// the management API and supervision loops until a shutdown trigger.
func runUp(opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Listen = opts.addr
	}
	log := newLogger(opts, cfg.LogLevel)

	reg, err := registry.Load(cfg)
	if err != nil {
		return err
	}
	order, err := plan.Plan(reg.Services())
	if err != nil {
		return err
	}

	prober := probe.NewHTTPProber()
	sups := make(map[string]*supervise.Supervisor, reg.Len())
	for _, svc := range reg.Services() {
		hook := supervise.NewExecHook(svc, prober, log)
		sups[svc.Name] = supervise.New(svc, hook, log)
	}
	orch := plan.NewOrchestrator(sups, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("services", reg.Len()).Str("config", opts.configPath).Msg("starting stack")
	if err := orch.StartAll(ctx, order); err != nil {
		return err
	}
	log.Info().Msg("stack is up")

	mon := monitor.New(reg, sups, prober, recovery.NewPolicy(), monitor.LogPublisher{Log: log}, log)
	monCtx, cancelMon := context.WithCancel(context.Background())
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		mon.Run(monCtx)
	}()

	// Shutdown can arrive from a signal or from POST /v1/shutdown.
	apiShutdown := make(chan struct{})
	var once sync.Once
	requestShutdown := func() { once.Do(func() { close(apiShutdown) }) }

	mux := httpapi.NewMux(mon, httpapi.Options{
		Shutdown:           requestShutdown,
		Log:                log,
		CORSEnabled:        cfg.CORS.Enabled,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		CORSAllowedMethods: cfg.CORS.AllowedMethods,
		CORSAllowedHeaders: cfg.CORS.AllowedHeaders,
	})
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}
	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("management API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("signal received, shutting down")
	case <-apiShutdown:
		log.Info().Msg("shutdown requested over management API")
	case err := <-srvErr:
		log.Error().Err(err).Msg("management API failed")
		runErr = err
	}

	// Supervision loops first, so shutdown is not misread as crashes.
	cancelMon()
	<-monDone

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopBudget(reg))
	defer cancelStop()
	stopErr := orch.StopAll(stopCtx, order)

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.Warn().Err(err).Msg("management API shutdown")
	}

	log.Info().Msg("stack is down")
	return errors.Join(runErr, stopErr)
}

// stopBudget bounds total shutdown time: every service's stop grace plus
// headroom for the forced kills.
func stopBudget(reg *registry.Registry) time.Duration {
	total := 10 * time.Second
	for _, svc := range reg.Services() {
		total += svc.StopGrace
	}
	return total
}
