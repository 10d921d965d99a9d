package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"releasecal/internal/config"
	"releasecal/internal/ics"
	appLog "releasecal/internal/log"
	"releasecal/internal/registry"
	"releasecal/internal/releases"
	"releasecal/internal/telemetry"
	"releasecal/internal/web"
)

// flagConfig holds CLI flag values before full config loading.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the application and returns the process exit code. Exiting only
// from main lets deferred shutdown run on every path.
func run(args []string) int {
	flags := parseFlags(args)

	envCfg, err := config.ParseEnv()
	if err != nil {
		appLog.Error("failed to read environment", err)
		return 1
	}

	configPath := flags.configPath
	if configPath == "" {
		configPath = envCfg.ConfigPath
	}
	if configPath == "" {
		configPath = config.DefaultPath
	}

	conf, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return 1
	}
	conf.ApplyEnv(envCfg)
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// Environment overrides may have replaced the timezone.
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", configPath)
		return 1
	}

	reg, err := registry.FromConfig(conf.Projects)
	if err != nil {
		appLog.Error("invalid project registry", err, "config_path", configPath)
		return 1
	}
	if len(conf.Projects) == 0 {
		appLog.Info("no projects configured, using compiled-in registry", "project_count", reg.Len())
	}
	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		return 1
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"http_timeout", conf.HTTPTimeout().String(),
		"concurrency", conf.Concurrency,
		"project_count", reg.Len(),
		"once", flags.once,
	)

	meterProvider, err := telemetry.SetupPrometheusExporter()
	if err != nil {
		appLog.Error("failed to initialize OpenTelemetry", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx, meterProvider); err != nil {
			appLog.Error("failed to shutdown OpenTelemetry", err)
		}
	}()

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		appLog.Error("failed to initialize instruments", err)
		return 1
	}

	fetcher := releases.NewFetcher(reg, ics.NewHTTPOpener(conf.HTTPTimeout()),
		releases.WithLocation(loc),
		releases.WithConcurrency(conf.Concurrency),
		releases.WithInstruments(instruments),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if flags.once {
		if err := runOnce(ctx, fetcher); err != nil {
			appLog.Error("release fetch failed", err)
			return 1
		}
		return 0
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() { refresh(ctx, fetcher) }); err != nil {
		appLog.Error("failed to schedule refresh", err, "refresh", conf.RefreshCron)
		return 1
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	go refresh(ctx, fetcher)

	code := 0
	if conf.Listen == "" {
		<-ctx.Done()
	} else if err := web.StartServer(ctx, conf, fetcher); err != nil {
		appLog.Error("HTTP server error", err)
		code = 1
	}

	appLog.Info("releasecal exiting")
	return code
}

// runOnce fetches every project once and writes the releases to stdout as JSON.
func runOnce(ctx context.Context, fetcher *releases.Fetcher) error {
	projects, err := fetcher.Get(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(projects)
}

// refresh runs one scheduled fetch cycle and logs a per-project summary.
func refresh(ctx context.Context, fetcher *releases.Fetcher) {
	started := time.Now()
	projects, err := fetcher.Get(ctx)
	if err != nil {
		appLog.Error("scheduled refresh failed", err, "elapsed", time.Since(started).String())
		return
	}
	for _, pr := range projects {
		latest := ""
		if n := len(pr.Releases); n > 0 {
			latest = pr.Releases[n-1].Name + " (" + pr.Releases[n-1].Date + ")"
		}
		appLog.Info("project releases", "project", pr.ProjectName, "release_count", len(pr.Releases), "last", latest)
	}
	appLog.Info("scheduled refresh completed", "project_count", len(projects), "elapsed", time.Since(started).String())
}

func parseFlags(args []string) flagConfig {
	var cfg flagConfig

	fs := flag.NewFlagSet("releasecal", flag.ExitOnError)
	fs.StringVar(&cfg.configPath, "config", "", "Path to config file (default $RELEASECAL_CONFIG or "+config.DefaultPath+")")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.BoolVar(&cfg.once, "once", false, "Fetch all project calendars once, print releases as JSON and exit")

	_ = fs.Parse(args)

	return cfg
}
