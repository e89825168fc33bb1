// caldavd is the standalone server binary: load config, then either serve,
// verify storage, or export storage to a plain tree, per spec.md §6.
// Grounded on the teacher's cmd/ldap-dav/main.go (config.Load, build the
// server, graceful SIGINT/SIGTERM shutdown), extended with the
// verify-storage/export-storage side modes spec.md adds beyond the
// teacher's single "serve" mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/caldavd/caldavd/internal/config"
	"github.com/caldavd/caldavd/internal/httpserver"
	"github.com/caldavd/caldavd/internal/logging"
	"github.com/caldavd/caldavd/internal/storage"
)

// Exit codes per spec.md §6.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitVerificationErr = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return exitConfigError
	}

	level := cfg.Logging.Level
	if hasFlag(args, "debug") {
		level = "debug"
	}
	logger := logging.New(level)

	if hasFlag(args, "verify-storage") {
		return runVerify(cfg, logger)
	}
	if dir, ok := flagValue(args, "export-storage"); ok {
		return runExport(cfg, logger, dir)
	}
	return runServe(cfg, logger)
}

// runVerify walks the whole tree with fsync disabled, per spec.md §6
// ("verify-storage ... disables fsync to accelerate").
func runVerify(cfg *config.Config, logger zerolog.Logger) int {
	store, err := httpserver.BuildStore(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storage:", err)
		return exitConfigError
	}
	defer closeStore(store)

	issues, err := store.Verify(context.Background(), true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		return exitVerificationErr
	}
	if len(issues) == 0 {
		logger.Info().Msg("storage verification passed")
		return exitOK
	}
	for _, issue := range issues {
		fmt.Fprintln(os.Stderr, issue)
	}
	logger.Error().Int("issues", len(issues)).Msg("storage verification failed")
	return exitVerificationErr
}

// runExport walks every collection and writes each item's payload under
// dir, mirroring the collection path, for offline inspection/backup.
func runExport(cfg *config.Config, logger zerolog.Logger, dir string) int {
	store, err := httpserver.BuildStore(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "storage:", err)
		return exitConfigError
	}
	defer closeStore(store)

	ctx := context.Background()
	if err := exportCollection(ctx, store, "", dir); err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		return exitVerificationErr
	}
	logger.Info().Str("dir", dir).Msg("storage exported")
	return exitOK
}

func exportCollection(ctx context.Context, store storage.Store, path, destRoot string) error {
	coll, err := store.GetCollection(ctx, path)
	if err != nil {
		return err
	}
	dest := destRoot
	if path != "" {
		dest = filepath.Join(destRoot, filepath.FromSlash(path))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	if coll.Tag != storage.TagNone {
		items, err := store.ListItems(ctx, path)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := os.WriteFile(filepath.Join(dest, it.Name), it.Payload, 0o644); err != nil {
				return err
			}
		}
		return nil
	}

	children, err := store.ListChildren(ctx, path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := exportCollection(ctx, store, child, destRoot); err != nil {
			return err
		}
	}
	return nil
}

func closeStore(store storage.Store) {
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func runServe(cfg *config.Config, logger zerolog.Logger) int {
	srv, cleanup, err := httpserver.NewServer(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("server init failed")
		return exitConfigError
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped with error")
			return exitConfigError
		}
	case <-ch:
		logger.Info().Msg("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}
	logger.Info().Msg("bye")
	return exitOK
}

func hasFlag(args []string, name string) bool {
	_, ok := flagValue(args, name)
	return ok
}

// flagValue scans for --name or --name VALUE / --name=VALUE. Unlike
// config.splitArgs, a following argument that starts with "--" is never
// taken as VALUE.
func flagValue(args []string, name string) (string, bool) {
	prefix := "--" + name
	for i, a := range args {
		if a == prefix {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				return args[i+1], true
			}
			return "", true
		}
		if strings.HasPrefix(a, prefix+"=") {
			return strings.TrimPrefix(a, prefix+"="), true
		}
	}
	return "", false
}
