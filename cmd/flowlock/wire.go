package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sudo-0-AM/ArcheTYPE/internal/config"
	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/infra"
	"github.com/sudo-0-AM/ArcheTYPE/internal/policy"
	"github.com/sudo-0-AM/ArcheTYPE/internal/usecase"
)

const (
	daemonLogName  = "flow_lock.log"
	controlLogName = "control.log"

	// shutdownGrace bounds how long the daemon waits for prepare hooks on exit.
	shutdownGrace = 5 * time.Second
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// createLogger writes JSON logs to <data_dir>/<name>, plus stderr for the daemon.
func createLogger(cfg config.Config, name string, stderr bool) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel())
	zc.OutputPaths = []string{filepath.Join(cfg.DataDir, name)}
	zc.ErrorOutputPaths = []string{"stderr"}
	if stderr {
		zc.OutputPaths = append(zc.OutputPaths, "stderr")
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	_ = os.MkdirAll(cfg.DataDir, 0700)
	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// openStore builds the configured state backend.
func openStore(cfg config.Config) (domain.StateStore, error) {
	switch cfg.Store.Backend {
	case config.BackendEncrypted:
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.Store.Path))
		if err != nil {
			return nil, fmt.Errorf("state key: %w", err)
		}
		store, err := infra.NewEncryptedStateStore(cfg.Store.Path, key)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return infra.NewFileStateStore(cfg.Store.Path), nil
	}
}

func newProfileLoader(cfg config.Config) *policy.FileProfileLoader {
	return policy.NewFileProfileLoader(cfg.Profiles.Dir)
}

func newDispatcher(cfg config.Config, logger *zap.Logger) *usecase.PrepareDispatcher {
	return usecase.NewPrepareDispatcher(
		infra.NewExecPreparer(cfg.Prepare.Command),
		cfg.Prepare.Timeout,
		cfg.Prepare.Retries,
		logger,
	)
}

func newNotifier(cfg config.Config, runner infra.CommandRunner) domain.Notifier {
	if !cfg.Notify.Enabled {
		return infra.NopNotifier{}
	}
	return infra.NewNotifySendNotifierWithRunner(cfg.Notify.Command, runner)
}

// newResponder returns nil when no collaborator is configured.
func newResponder(cfg config.Config, runner infra.CommandRunner) domain.Responder {
	if cfg.Collaborator.Command == "" {
		return nil
	}
	return infra.NewExecResponderWithRunner(cfg.Collaborator.Command, cfg.Collaborator.Timeout, runner)
}

func enforcerConfig(cfg config.Config) usecase.EnforcerConfig {
	return usecase.EnforcerConfig{
		CheckInterval:           cfg.Loop.CheckInterval,
		IdleBackoff:             cfg.Loop.IdleBackoff,
		ViolationBackoff:        cfg.Loop.ViolationBackoff,
		StatusInterval:          cfg.Loop.StatusInterval,
		CollaboratorTimeout:     cfg.Collaborator.Timeout,
		PersistenceFailureLimit: cfg.Loop.PersistenceFailureLimit,
	}
}

// controlEnv holds what a short-lived control command needs.
type controlEnv struct {
	cfg        config.Config
	logger     *zap.Logger
	store      domain.StateStore
	profiles   *policy.FileProfileLoader
	dispatcher *usecase.PrepareDispatcher
	controller *usecase.Controller
}

func openControl() (*controlEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := createLogger(cfg, controlLogName, false)

	store, err := openStore(cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	dispatcher := newDispatcher(cfg, logger)
	return &controlEnv{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		profiles:   newProfileLoader(cfg),
		dispatcher: dispatcher,
		controller: usecase.NewController(store, dispatcher, logger),
	}, nil
}

// prepareBudget is the longest a prepare dispatch can take with retries.
func (e *controlEnv) prepareBudget() time.Duration {
	attempts := time.Duration(e.cfg.Prepare.Retries + 1)
	return attempts*(e.cfg.Prepare.Timeout+time.Second) + time.Second
}

func (e *controlEnv) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close state store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// installBinary copies the running binary to dst and returns the path the
// unit should point at. It falls back to src when the copy fails.
func installBinary(out io.Writer, src, dst string) string {
	if src == dst {
		return dst
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		fmt.Fprintf(out, "Warning: Could not create binary directory: %v\n", err)
		return src
	}
	if err := copyBinary(src, dst); err != nil {
		fmt.Fprintf(out, "Warning: Could not copy binary to %s: %v\n", dst, err)
		return src
	}
	fmt.Fprintf(out, "Installed binary to %s\n", dst)
	return dst
}

// copyBinary copies the binary with write-to-temp, sync, chmod, rename.
func copyBinary(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".flowlock-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmpFile, sourceFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err = os.Chmod(tmpPath, 0755); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}
