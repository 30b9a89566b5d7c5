package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "llamad/docs"
	"llamad/internal/common/fsutil"
	"llamad/internal/config"
	"llamad/internal/gateway"
	"llamad/internal/registry"
	"llamad/internal/supervisor"
	"llamad/internal/variant"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "llamad:", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	addr         string
	aliasesDir   string
	modelsDir    string
	execDir      string
	execVariant  string
	defaultModel string
	maxReady     int
	watchAliases bool
	logLevel     string
	logConsole   bool
	corsOrigins  string
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "llamad",
		Short:         "Model process supervisor and OpenAI-compatible inference gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}
	root.Flags().StringVarP(&f.configPath, "config", "c", envDefault("LLAMAD_CONFIG", ""), "Config file (yaml, json, or toml)")
	root.Flags().StringVar(&f.addr, "addr", envDefault("LLAMAD_ADDR", ""), "HTTP listen address, e.g. :8090")
	root.Flags().StringVar(&f.aliasesDir, "aliases-dir", "", "Directory of per-alias YAML files")
	root.Flags().StringVar(&f.modelsDir, "models-dir", "", "Root directory of downloaded model files")
	root.Flags().StringVar(&f.execDir, "exec-dir", "", "Directory of llama-server build variants")
	root.Flags().StringVar(&f.execVariant, "exec-variant", "", "Force an engine variant (cuda, rocm, vulkan, metal, cpu)")
	root.Flags().StringVar(&f.defaultModel, "default-model", "", "Alias used when a request omits the model field")
	root.Flags().IntVar(&f.maxReady, "max-ready", 0, "Maximum simultaneously running engines")
	root.Flags().BoolVar(&f.watchAliases, "watch-aliases", false, "Reload the alias registry on file changes")
	root.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn, or error")
	root.Flags().BoolVar(&f.logConsole, "log-console", false, "Pretty console logs instead of JSON")
	root.Flags().StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (enables CORS)")
	return root
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated flag value, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mergeFlags lets command-line flags override file values.
func mergeFlags(cfg config.Config, f flags) config.Config {
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.aliasesDir != "" {
		cfg.AliasesDir = f.aliasesDir
	}
	if f.modelsDir != "" {
		cfg.ModelsDir = f.modelsDir
	}
	if f.execDir != "" {
		cfg.ExecDir = f.execDir
	}
	if f.execVariant != "" {
		cfg.ExecVariant = f.execVariant
	}
	if f.defaultModel != "" {
		cfg.DefaultModel = f.defaultModel
	}
	if f.maxReady > 0 {
		cfg.MaxReady = f.maxReady
	}
	if f.watchAliases {
		cfg.WatchAliases = true
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logConsole {
		cfg.Log.Console = true
	}
	if f.corsOrigins != "" {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = splitCSV(f.corsOrigins)
	}
	return cfg
}

func run(f flags) error {
	var cfg config.Config
	if f.configPath != "" {
		var err error
		cfg, err = config.Load(f.configPath)
		if err != nil {
			return err
		}
	}
	cfg = mergeFlags(cfg, f).ApplyDefaults()

	log := buildLogger(cfg.Log)

	var err error
	for _, dir := range []*string{&cfg.AliasesDir, &cfg.ModelsDir, &cfg.ExecDir} {
		if *dir, err = fsutil.ExpandHome(*dir); err != nil {
			return err
		}
	}
	if cfg.AliasesDir == "" || cfg.ModelsDir == "" || cfg.ExecDir == "" {
		return errors.New("aliases-dir, models-dir, and exec-dir are required")
	}
	if !fsutil.PathExists(cfg.AliasesDir) {
		return fmt.Errorf("aliases dir does not exist: %s", cfg.AliasesDir)
	}

	reg, err := registry.LoadDir(cfg.AliasesDir, log)
	if err != nil {
		return err
	}
	log.Info().Int("aliases", reg.Len()).Str("dir", cfg.AliasesDir).Msg("alias registry loaded")

	sel := variant.NewSelector(cfg.ExecDir, cfg.ExecVariant, log)
	desc, err := sel.Refresh()
	if err != nil {
		return err
	}

	engine := supervisor.NewLlamaEngine(sel, cfg.ModelsDir, cfg.PortMin, cfg.PortMax, log)
	sup := supervisor.New(engine, supervisor.Config{
		MaxReady:      cfg.MaxReady,
		IdleTimeout:   cfg.IdleTimeout(),
		StartTimeout:  cfg.StartTimeout(),
		StopTimeout:   cfg.StopTimeout(),
		MaxCrashes:    cfg.MaxCrashes,
		CrashWindow:   cfg.CrashWindow(),
		BackoffBase:   cfg.BackoffBase(),
		BackoffMax:    cfg.BackoffMax(),
		ProbeInterval: cfg.ProbeInterval(),
	}, log)
	events := supervisor.NewMemoryPublisher(256)
	sup.SetPublisher(events)

	gw := gateway.New(reg, gateway.SupervisorPool{S: sup}, gateway.Config{
		DefaultModel:   cfg.DefaultModel,
		RequestTimeout: cfg.RequestTimeout(),
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Variant:        desc.Name,
		CORS: gateway.CORSConfig{
			Enabled:        cfg.CORS.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
	}, events, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchAliases {
		go func() {
			if err := reg.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("alias watcher stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("variant", desc.Name).Msg("llamad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	gw.MarkReady()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := sup.Close(shCtx); err != nil {
		log.Warn().Err(err).Msg("supervisor shutdown")
	}
	return nil
}
