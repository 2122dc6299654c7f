package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode is how the daemon is installed: per-user or system-wide.
type ExecMode string

const (
	// ExecModeUser runs under the user's systemd instance (no sudo required).
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as a system unit (sudo required).
	ExecModeSystem ExecMode = "system"
)

// UnitName is the systemd unit installed by `flowlock install`.
const UnitName = "flowlock.service"

// ExecModeConfig holds the paths that depend on the execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	BinaryPath string // Where `install` copies the binary
	UnitDir    string
	UnitPath   string
	DataDir    string // State, keys, logs and the daemon lock
	IsRoot     bool
}

// DetectExecMode picks the mode from the effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return systemModeConfig()
	}
	home, _ := os.UserHomeDir()
	return userModeConfig(home, false)
}

// GetUserModeConfig returns user mode paths even when running under sudo,
// resolved against the invoking user's home.
func GetUserModeConfig() *ExecModeConfig {
	return userModeConfig(GetRealUserHome(), os.Geteuid() == 0)
}

func systemModeConfig() *ExecModeConfig {
	unitDir := "/etc/systemd/system"
	return &ExecModeConfig{
		Mode:       ExecModeSystem,
		BinaryPath: "/usr/local/bin/flowlock",
		UnitDir:    unitDir,
		UnitPath:   filepath.Join(unitDir, UnitName),
		DataDir:    "/var/lib/flowlock",
		IsRoot:     true,
	}
}

func userModeConfig(home string, isRoot bool) *ExecModeConfig {
	unitDir := filepath.Join(home, ".config", "systemd", "user")
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		BinaryPath: filepath.Join(home, ".local", "bin", "flowlock"),
		UnitDir:    unitDir,
		UnitPath:   filepath.Join(unitDir, UnitName),
		DataDir:    filepath.Join(home, "ArcheTYPE", "flow_lock"),
		IsRoot:     isRoot,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (systemd system unit, root)"
	case ExecModeUser:
		return "user (systemd user unit, non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the invoking user's home, even under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// ExpandHome expands a leading ~ to the real user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return GetRealUserHome()
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(GetRealUserHome(), path[2:])
	}
	return path
}
