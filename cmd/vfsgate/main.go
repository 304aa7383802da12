package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"vfsgate/internal/config"
	"vfsgate/internal/httpserver"
	"vfsgate/internal/logging"
	"vfsgate/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "passwd" {
		passwdCmd(os.Args[2:])
		return
	}

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "vfsgate: %v\n", err)
		os.Exit(2)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "vfsgate: init logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logging.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.L().Fatal("server failed", zap.Error(err))
	}
}

func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("vfsgate", flag.ContinueOnError)
	var (
		addr        = fs.String("addr", "", "listen address (default "+config.DefaultAddr+")")
		root        = fs.String("root", "", "vfs root (default: $HOME)")
		stateDir    = fs.String("state", "", "state dir for spooled uploads (default: <root>/.vfsgate)")
		cfgPath     = fs.String("config", "", "path to config json (optional)")
		metricsAddr = fs.String("metrics-addr", "", "prometheus listen address (optional)")
		logLevel    = fs.String("log-level", "", "debug, info, warn or error")
		logFormat   = fs.String("log-format", "", "json or console")
	)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	var cfg config.Config
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	// flags win over file and environment
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Addr, *addr)
	set(&cfg.Root, *root)
	set(&cfg.StateDir, *stateDir)
	set(&cfg.MetricsAddr, *metricsAddr)
	set(&cfg.LogLevel, *logLevel)
	set(&cfg.LogFormat, *logFormat)

	home, _ := os.UserHomeDir()
	if err := cfg.ApplyDefaults(home); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return cfg, fmt.Errorf("mkdir state: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := httpserver.New(httpserver.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	servers := []*http.Server{{
		Addr:              cfg.Addr,
		Handler:           httpserver.WithHeaders(srv.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	log := logging.L()
	log.Info("vfsgate listening",
		zap.String("addr", cfg.Addr),
		zap.String("root", cfg.Root),
		zap.Bool("webdav", cfg.WebDAV),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(sctx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func passwdCmd(args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	var (
		password = fs.String("p", "", "password (required)")
		cost     = fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	)
	_ = fs.Parse(args)
	if *password == "" {
		fmt.Fprintln(os.Stderr, "usage: vfsgate passwd -p <password>")
		os.Exit(2)
	}
	if *cost < bcrypt.MinCost || *cost > bcrypt.MaxCost {
		fmt.Fprintf(os.Stderr, "invalid cost %d (min=%d max=%d)\n", *cost, bcrypt.MinCost, bcrypt.MaxCost)
		os.Exit(2)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bcrypt: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(h))
}
