package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/runwatch"
	"github.com/loykin/runwatch/internal/config"
	"github.com/loykin/runwatch/internal/endpoint"
)

type command struct{}

// loadConfig resolves the effective configuration from a config file
// and/or flag overrides.
func loadConfig(path, baseDir, source string) (*runwatch.Config, error) {
	var (
		cfg *runwatch.Config
		err error
	)
	if path != "" {
		cfg, err = runwatch.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		cfg = runwatch.DefaultConfig()
	}
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}
	if source != "" {
		cfg.Source = source
	}
	return cfg, nil
}

// Serve runs the watchdog until SIGINT or SIGTERM.
func (c command) Serve(f ServeFlags, args []string) error {
	configPath := f.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := loadConfig(configPath, f.BaseDir, f.Source)
	if err != nil {
		return err
	}

	if err := runwatch.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	wd, err := runwatch.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listen := f.MetricsListen
	if listen == "" && cfg.Metrics != nil && cfg.Metrics.Enabled {
		listen = cfg.Metrics.Listen
	}
	if listen != "" {
		srv := runwatch.MetricsServer(listen)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				wd.Logger().Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	return wd.Run(ctx)
}

// Publish discovers a browser debug endpoint and writes its descriptor.
func (c command) Publish(f PublishFlags) error {
	if f.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if f.Port == 0 && f.UserDataDir == "" {
		return fmt.Errorf("either --port or --user-data-dir is required")
	}
	cfg, err := loadConfig("", f.BaseDir, "")
	if err != nil {
		return err
	}

	p := runwatch.NewPublisher(cfg.EndpointsDir())
	p.Attempts = f.Attempts
	p.Interval = f.Interval

	info, err := p.Publish(context.Background(), f.RunID, f.Port, f.UserDataDir)
	if err != nil {
		return err
	}
	printJSON(info)
	return nil
}

// Tail prints the newest events from the event log.
func (c command) Tail(f TailFlags) error {
	cfg, err := loadConfig(f.ConfigPath, f.BaseDir, "")
	if err != nil {
		return err
	}
	events, err := runwatch.TailEvents(cfg.EventLogPath(), f.Count)
	if err != nil {
		return err
	}
	for _, ev := range events {
		printJSON(ev)
	}
	return nil
}

// Sweep removes stale endpoint descriptors.
func (c command) Sweep(f SweepFlags) error {
	cfg, err := loadConfig("", f.BaseDir, "")
	if err != nil {
		return err
	}
	if f.MaxAge <= 0 {
		f.MaxAge = config.DefaultSweepMaxAge
	}
	descriptors := runwatch.SweepEndpoints(cfg.EndpointsDir(), f.MaxAge)
	reports := runwatch.SweepReports(cfg.ReportsDir(), f.MaxAge)
	fmt.Printf("removed %d descriptors, %d reports\n", descriptors, reports)
	return nil
}

// Endpoint prints the debug endpoint descriptor for a run.
func (c command) Endpoint(f EndpointFlags) error {
	if f.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	cfg, err := loadConfig("", f.BaseDir, "")
	if err != nil {
		return err
	}
	store := endpoint.NewStore(cfg.EndpointsDir())
	info, err := store.Read(f.RunID)
	if err != nil {
		return fmt.Errorf("no endpoint descriptor for run %s", f.RunID)
	}
	printJSON(info)
	return nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(data))
}
