// Command keygated runs the keygate daemon: it hosts DRM sessions, serves the
// control socket and HTTP API, and records exchanges in the ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"keygate/internal/config"
	"keygate/internal/daemon"
	"keygate/internal/ipc"
	"keygate/internal/ledger"
	"keygate/internal/licensing"
	"keygate/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	socketPath := flag.String("socket", "", "override control socket path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if socket := *socketPath; socket != "" {
		cfg.Paths.SocketPath = socket
	}

	logger, err := logging.NewFromPaths(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open ledger store", logging.Error(err))
		os.Exit(1)
	}

	client, err := licensing.NewFromConfig(cfg)
	if err != nil {
		logger.Error("init license client", logging.Error(err))
		os.Exit(1)
	}

	d, err := daemon.New(cfg, store, client, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	pidPath := filepath.Join(cfg.Paths.DataDir, "keygated.pid")
	if err := writePIDFile(pidPath); err != nil {
		logger.Error("write pid file", logging.Error(err))
		os.Exit(1)
	}
	defer removePIDFile(pidPath, logger)

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		os.Exit(1)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Warn("daemon start", logging.Error(err))
	}

	<-ctx.Done()
	logger.Info("keygated shutting down")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file %q: %w", path, err)
	}
	return nil
}

func removePIDFile(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove pid file", logging.Error(err))
	}
}
