package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/erazemk/storesapi/internal/app"
	"github.com/erazemk/storesapi/internal/config"
	"github.com/erazemk/storesapi/internal/logging"
	"github.com/erazemk/storesapi/internal/notify"
	"github.com/erazemk/storesapi/internal/observability"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("storesapi", flag.ContinueOnError)

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var dbURL string
	fs.StringVar(&dbURL, "db", "", "")
	fs.StringVar(&dbURL, "d", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var envFile string
	fs.StringVar(&envFile, "env", "", "")
	fs.StringVar(&envFile, "e", "", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: storesapi [flags]

Flags:
  -a, -addr <host:port>   listen address (default: $ADDR or :8080)
  -d, -db <dsn>           database path or URL (default: $DATABASE_URL)
  -l, -log <path>         log file path (default: $LOG_PATH, stdout/stderr only)
  -e, -env <path>         env file to load (default: .env if present)
  -h, -help               show this help and exit

`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	// INFO/WARN → stdout, ERROR → stderr, optionally also to a file.
	closeLog, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, version); err != nil {
		slog.Error("failed to initialize sentry", "error", err)
	}
	defer observability.FlushSentry()

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		observability.CaptureError(err, nil)
		observability.FlushSentry()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		slog.Info("closing connections")
		if err := rt.Close(); err != nil {
			slog.Error("closing runtime", "error", err)
		}
	}()

	// The in-memory queue only exists inside this process, so it always needs
	// an in-process worker.
	_, memoryQueue := rt.Queue.(*notify.MemoryQueue)
	runWorker := cfg.RunEmailWorker || memoryQueue

	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if runWorker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.Worker.Run(workerCtx)
		}()
	} else {
		slog.Info("email worker disabled, run `storesctl worker` to deliver emails")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		stopWorker()
		wg.Wait()
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	stopWorker()
	wg.Wait()

	slog.Info("server stopped")
	return nil
}
