package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/abhishek0-0/healthsec-CTF/internal/config"
	"github.com/abhishek0-0/healthsec-CTF/internal/httpmw"
	"github.com/abhishek0-0/healthsec-CTF/internal/serverapp"
)

const defaultConfigPath = "ghia_config.yml"

func main() {
	configPath := flag.String("config", os.Getenv("GHIA_CONFIG"), "path to the YAML config file")
	flag.Parse()

	logger := log.New(os.Stderr, "", 0)

	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	app, err := serverapp.New(serverapp.Options{Config: cfg, Logger: logger})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go app.PruneIdlePages(ctx, 0)

	errCh := make(chan error, 1)
	go func() {
		httpmw.Log(logger, "info", "server_start", map[string]any{
			"addr":    cfg.Server.Addr,
			"env":     cfg.Env,
			"storage": cfg.Storage.Driver,
			"config":  path,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		httpmw.Log(logger, "error", "server_shutdown_failed", map[string]any{"error": err.Error()})
		return
	}
	httpmw.Log(logger, "info", "server_stopped", nil)
}
