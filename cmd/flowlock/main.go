// Package main is the CLI entry point for flowlock.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sudo-0-AM/ArcheTYPE/internal/daemon"
	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/infra"
	"github.com/sudo-0-AM/ArcheTYPE/internal/policy"
	"github.com/sudo-0-AM/ArcheTYPE/internal/tui"
	"github.com/sudo-0-AM/ArcheTYPE/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flowlock",
	Short: "Flow Lock - focus enforcement for the desktop",
	Long: `flowlock keeps a work session on track. While the lock is on, a
background daemon kills blacklisted programs, nudges you when you go idle
and keeps a daily focus score with XP and levels.`,
	Version:      Version,
	SilenceUsage: true,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Control the flow lock",
	Long:  `Turns enforcement on or off, switches profiles and shows the score.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = cmd.Usage()
		return errors.New("missing action: on|off|status|profile <name>|score")
	},
}

var lockOnCmd = &cobra.Command{
	Use:     "on",
	Aliases: []string{"enable"},
	Short:   "Turn enforcement on",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetLock(cmd, true)
	},
}

var lockOffCmd = &cobra.Command{
	Use:     "off",
	Aliases: []string{"disable"},
	Short:   "Turn enforcement off",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetLock(cmd, false)
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state record as JSON",
	Args:  cobra.NoArgs,
	RunE:  runLockStatus,
}

var lockProfileCmd = &cobra.Command{
	Use:   "profile <name>",
	Short: "Switch the active profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockProfile,
}

var lockScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show today's score, XP and level",
	Args:  cobra.NoArgs,
	RunE:  runLockScore,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long:  `Spawns 'flowlock daemon' detached from the terminal unless one is already running.`,
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the daemon as a systemd unit",
	Long: `Copies the binary to its install location and writes a systemd unit
that starts the daemon at login (user mode) or boot (run with sudo).`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Disable and remove the systemd unit",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List available profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live score dashboard",
	Args:  cobra.NoArgs,
	RunE:  runTop,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// daemonCmd runs the enforcement loop in the foreground.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the enforcement loop in the foreground",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

var (
	jsonOutput     bool
	refreshSeconds int
)

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	topCmd.Flags().IntVar(&refreshSeconds, "refresh", 2, "Refresh interval in seconds")

	lockCmd.AddCommand(lockOnCmd, lockOffCmd, lockStatusCmd, lockProfileCmd, lockScoreCmd)

	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSetLock(cmd *cobra.Command, enabled bool) error {
	env, err := openControl()
	if err != nil {
		return err
	}
	defer env.close()

	st, err := env.controller.SetLock(enabled)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Flow lock %s (profile: %s)\n", lockWord(st.LockEnabled), st.CurrentProfile)
	return nil
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	env, err := openControl()
	if err != nil {
		return err
	}
	defer env.close()

	st, err := env.controller.Status()
	if err != nil {
		// Defaults are still printed so scripts always get a record.
		env.logger.Warn("state unreadable", zap.Error(err))
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runLockProfile(cmd *cobra.Command, args []string) error {
	env, err := openControl()
	if err != nil {
		return err
	}
	defer env.close()

	name := args[0]
	if _, err := env.profiles.Load(name); errors.Is(err, domain.ErrConfigMissing) {
		msg := fmt.Sprintf("Warning: profile %q is not defined; enforcement will be a no-op", name)
		if hint := policy.Suggest(name, env.profiles.List()); hint != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), msg)
	}

	st, err := env.controller.SetProfile(cmd.Context(), name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile set to %s\n", st.CurrentProfile)

	if !env.dispatcher.WaitTimeout(env.prepareBudget()) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: profile preparation still running, not waiting")
	}
	return nil
}

func runLockScore(cmd *cobra.Command, args []string) error {
	env, err := openControl()
	if err != nil {
		return err
	}
	defer env.close()

	text, err := env.controller.Dashboard(time.Now())
	if err != nil {
		env.logger.Warn("state unreadable", zap.Error(err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	lock := infra.NewInstanceLock(cfg.DataDir)
	started, err := daemon.EnsureRunning(lock, executable)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	if !started {
		fmt.Fprintln(cmd.OutOrStdout(), "flowlock daemon is already running")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "flowlock daemon started (data: %s)\n", cfg.DataDir)
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	execMode := infra.DetectExecMode()
	execMode.DataDir = cfg.DataDir
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Execution mode: %s\n", execMode.Mode)
	if execMode.IsRoot {
		fmt.Fprintln(out, "Running as root - will install a system unit")
	} else {
		fmt.Fprintln(out, "Running as user - will install a user unit")
	}

	currentExecPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	binaryPath := installBinary(out, currentExecPath, execMode.BinaryPath)

	manager := infra.NewSystemdManager(execMode)
	if err := manager.Install(binaryPath); err != nil {
		return fmt.Errorf("failed to install %s: %w", manager.GetUnitPath(), err)
	}

	fmt.Fprintln(out, "\n=== flowlock Installed ===")
	fmt.Fprintf(out, "Binary: %s\n", binaryPath)
	fmt.Fprintf(out, "Unit: %s\n", manager.GetUnitPath())
	fmt.Fprintf(out, "Data: %s\n", cfg.DataDir)
	fmt.Fprintln(out, "==========================")
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	execMode := infra.DetectExecMode()
	execMode.DataDir = cfg.DataDir
	manager := infra.NewSystemdManager(execMode)
	if !manager.IsInstalled() {
		fmt.Fprintln(cmd.OutOrStdout(), "flowlock unit is not installed")
		return nil
	}
	if err := manager.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall %s: %w", manager.GetUnitPath(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", manager.GetUnitPath())
	return nil
}

func runProfiles(cmd *cobra.Command, args []string) error {
	env, err := openControl()
	if err != nil {
		return err
	}
	defer env.close()

	st, _ := env.controller.Status()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profiles (%s):\n", env.profiles.Dir())
	for _, name := range env.profiles.List() {
		marker := " "
		if name == st.CurrentProfile {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %s\n", marker, name)
	}
	return nil
}

func runTop(cmd *cobra.Command, args []string) error {
	env, err := openControl()
	if err != nil {
		return err
	}
	defer env.close()

	return tui.Run(env.controller, time.Duration(refreshSeconds)*time.Second)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg, daemonLogName, true)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open state store", zap.Error(err))
		return err
	}
	defer store.Close()

	runner := &infra.RealCommandRunner{}
	idle, err := infra.NewIdleProbeFromNames(cfg.Idle.Probes, runner, logger)
	if err != nil {
		return err
	}

	dispatcher := newDispatcher(cfg, logger)
	enforcer := usecase.NewEnforcer(
		enforcerConfig(cfg),
		store,
		newProfileLoader(cfg),
		idle,
		infra.NewProcessManager(),
		newNotifier(cfg, runner),
		newResponder(cfg, runner),
		dispatcher,
		logger,
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	var changes <-chan struct{}
	stateWatcher, err := infra.NewStateWatcher(store.Path(), logger)
	if err != nil {
		logger.Warn("state watcher unavailable, control changes apply on the next cycle", zap.Error(err))
	} else {
		changes = stateWatcher.Changes()
		go func() { _ = stateWatcher.Run(ctx) }()
	}

	execMode := infra.DetectExecMode()
	execMode.DataDir = cfg.DataDir
	executable, _ := os.Executable()

	watcher := daemon.NewWatcher(
		daemon.DefaultWatcherConfig(),
		enforcer,
		store,
		changes,
		infra.NewInstanceLock(cfg.DataDir),
		infra.NewSystemdManager(execMode),
		executable,
		logger,
	)
	err = watcher.Run(ctx)

	if !dispatcher.WaitTimeout(shutdownGrace) {
		logger.Warn("profile preparation still running at shutdown")
	}
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		fmt.Fprintln(cmd.ErrOrStderr(), "flowlock daemon is already running")
	}
	return err
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "flowlock %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func lockWord(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}
