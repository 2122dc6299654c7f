package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// Unit template for the user instance (graphical session services).
const userUnitTemplate = `[Unit]
Description=ArcheTYPE Flow Lock enforcement daemon
After=graphical-session.target
PartOf=graphical-session.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon
Restart=on-failure
RestartSec=10
Environment=FLOWLOCK_DATA_DIR={{.DataDir}}

[Install]
WantedBy=default.target
`

// Unit template for the system instance.
const systemUnitTemplate = `[Unit]
Description=ArcheTYPE Flow Lock enforcement daemon
After=multi-user.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon
Restart=always
RestartSec=10
Environment=FLOWLOCK_DATA_DIR={{.DataDir}}

[Install]
WantedBy=multi-user.target
`

const systemctlTimeout = 15 * time.Second

type unitConfig struct {
	ExecutablePath string
	DataDir        string
}

// SystemdManager implements domain.AutostartManager for both modes.
type SystemdManager struct {
	mode     ExecMode
	unitDir  string
	unitPath string
	dataDir  string
	runner   CommandRunner
}

// NewSystemdManager creates a unit manager for the given execution mode.
func NewSystemdManager(config *ExecModeConfig) *SystemdManager {
	return NewSystemdManagerWithRunner(config, &RealCommandRunner{})
}

// NewSystemdManagerWithRunner creates a manager with an injectable runner (for testing).
func NewSystemdManagerWithRunner(config *ExecModeConfig, runner CommandRunner) *SystemdManager {
	return &SystemdManager{
		mode:     config.Mode,
		unitDir:  config.UnitDir,
		unitPath: config.UnitPath,
		dataDir:  config.DataDir,
		runner:   runner,
	}
}

// generateUnitContent renders the unit file for the given exec path.
func (m *SystemdManager) generateUnitContent(execPath string) ([]byte, error) {
	tmplStr := userUnitTemplate
	if m.mode == ExecModeSystem {
		tmplStr = systemUnitTemplate
	}

	tmpl, err := template.New("unit").Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, unitConfig{ExecutablePath: execPath, DataDir: m.dataDir}); err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit, reloads systemd and enables the service.
func (m *SystemdManager) Install(execPath string) error {
	if err := os.MkdirAll(m.unitDir, 0755); err != nil {
		return err
	}

	content, err := m.generateUnitContent(execPath)
	if err != nil {
		return fmt.Errorf("failed to generate unit content: %w", err)
	}
	if err := os.WriteFile(m.unitPath, content, 0644); err != nil {
		return err
	}

	if err := m.systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if err := m.systemctl("enable", "--now", UnitName); err != nil {
		return fmt.Errorf("enable %s: %w", UnitName, err)
	}
	return nil
}

// Uninstall disables the service and removes the unit.
func (m *SystemdManager) Uninstall() error {
	// Ignore errors if the unit was never enabled
	_ = m.systemctl("disable", "--now", UnitName)

	if err := os.Remove(m.unitPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return m.systemctl("daemon-reload")
}

// IsInstalled checks if the unit file exists.
func (m *SystemdManager) IsInstalled() bool {
	_, err := os.Stat(m.unitPath)
	return err == nil
}

// NeedsUpdate checks if the unit exists but differs from what Install would write.
func (m *SystemdManager) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false // Needs install, not update
	}

	current, err := os.ReadFile(m.unitPath)
	if err != nil {
		return true
	}
	expected, err := m.generateUnitContent(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// GetUnitPath returns the unit file path.
func (m *SystemdManager) GetUnitPath() string {
	return m.unitPath
}

// GetMode returns the execution mode.
func (m *SystemdManager) GetMode() ExecMode {
	return m.mode
}

func (m *SystemdManager) systemctl(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), systemctlTimeout)
	defer cancel()

	if m.mode == ExecModeUser {
		args = append([]string{"--user"}, args...)
	}
	return m.runner.Run(ctx, "systemctl", args...)
}

// Ensure SystemdManager implements domain.AutostartManager.
var _ domain.AutostartManager = (*SystemdManager)(nil)
