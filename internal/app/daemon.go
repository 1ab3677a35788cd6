package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	daemonServeUnitName = "median-serve.service"
	systemdUnitDir      = "/etc/systemd/system"
	defaultBinaryPath   = "/usr/local/bin/median"
)

type serveUnit struct {
	User       string
	WorkDir    string
	BinaryPath string
	EnvFile    string
	Port       int
}

func runDaemon(args []string) int {
	if len(args) == 0 {
		printDaemonUsage()
		return 2
	}

	action := strings.ToLower(strings.TrimSpace(args[0]))
	switch action {
	case "help", "-h", "--help":
		printDaemonUsage()
		return 0
	case "install":
		return runDaemonInstall(args[1:])
	case "uninstall":
		return runDaemonUninstall(args[1:])
	case "start", "stop", "restart":
		return runDaemonServiceAction(action, args[1:], true)
	case "status":
		return runDaemonServiceAction(action, args[1:], false)
	default:
		fmt.Fprintf(os.Stderr, "unknown daemon action: %s\n\n", args[0])
		printDaemonUsage()
		return 2
	}
}

func runDaemonInstall(args []string) int {
	fs := flag.NewFlagSet("daemon install", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	defaultUser := strings.TrimSpace(os.Getenv("USER"))
	if defaultUser == "" {
		defaultUser = "root"
	}

	userName := fs.String("user", defaultUser, "Run the service as this Linux user")
	port := fs.Int("port", 8090, "Port for median serve")
	workDir := fs.String("workdir", "", "Working directory holding the .env file (default: current directory)")
	binaryPath := fs.String("binary", defaultBinaryPath, "Path to the median binary")
	envFile := fs.String("env-file", "", "Optional EnvironmentFile for the unit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon install does not accept positional args")
		return 2
	}
	if err := validatePort(*port, "--port"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if strings.TrimSpace(*userName) == "" {
		fmt.Fprintln(os.Stderr, "--user must not be empty")
		return 2
	}
	if err := requireRoot("install"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	dir, err := resolveWorkDir(*workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve --workdir: %v\n", err)
		return 2
	}

	unit := serveUnit{
		User:       strings.TrimSpace(*userName),
		WorkDir:    dir,
		BinaryPath: strings.TrimSpace(*binaryPath),
		EnvFile:    strings.TrimSpace(*envFile),
		Port:       *port,
	}
	if err := writeUnitFile(daemonServeUnitName, unit.render()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", daemonServeUnitName, err)
		return 1
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}
	if err := runSystemctl("enable", daemonServeUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enable service: %v\n", err)
		return 1
	}

	fmt.Printf("Installed %s\n", daemonServeUnitName)
	fmt.Println("Service is enabled on boot. Run `median daemon start` to start it now.")
	return 0
}

func runDaemonUninstall(args []string) int {
	fs := flag.NewFlagSet("daemon uninstall", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon uninstall does not accept positional args")
		return 2
	}
	if err := requireRoot("uninstall"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := runSystemctl("stop", daemonServeUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop service: %v\n", err)
	}
	if err := runSystemctl("disable", daemonServeUnitName); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to disable service: %v\n", err)
	}

	unitPath := filepath.Join(systemdUnitDir, daemonServeUnitName)
	if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", unitPath, err)
		return 1
	}
	if err := runSystemctl("daemon-reload"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload systemd units: %v\n", err)
		return 1
	}

	fmt.Printf("Removed %s\n", daemonServeUnitName)
	return 0
}

func runDaemonServiceAction(action string, args []string, requireRootPrivileges bool) int {
	fs := flag.NewFlagSet("daemon "+action, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "daemon %s does not accept positional args\n", action)
		return 2
	}
	if requireRootPrivileges {
		if err := requireRoot(action); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	systemctlArgs := []string{action}
	if action == "status" {
		systemctlArgs = append(systemctlArgs, "--no-pager")
	}
	systemctlArgs = append(systemctlArgs, daemonServeUnitName)

	if err := runSystemctl(systemctlArgs...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to %s service: %v\n", action, err)
		return 1
	}
	return 0
}

func validatePort(port int, flagName string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", flagName)
	}
	return nil
}

func requireRoot(action string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("daemon %s requires root privileges; run with sudo: sudo median daemon %s", action, action)
}

func resolveWorkDir(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		trimmed = cwd
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("normalize path %q: %w", trimmed, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", absPath)
	}
	return absPath, nil
}

func (u serveUnit) render() string {
	binary := u.BinaryPath
	if binary == "" {
		binary = defaultBinaryPath
	}
	lines := []string{
		"[Unit]",
		"Description=Median topic discovery and homepage API",
		"After=network.target postgresql.service",
		"",
		"[Service]",
		"Type=simple",
		"User=" + u.User,
		"WorkingDirectory=" + u.WorkDir,
	}
	if u.EnvFile != "" {
		lines = append(lines, "EnvironmentFile="+u.EnvFile)
	}
	lines = append(lines,
		"ExecStart="+binary+" serve --host 0.0.0.0 --port "+strconv.Itoa(u.Port),
		"Restart=on-failure",
		"RestartSec=5",
		"",
		"[Install]",
		"WantedBy=multi-user.target",
		"",
	)
	return strings.Join(lines, "\n")
}

func writeUnitFile(name, content string) error {
	unitPath := filepath.Join(systemdUnitDir, name)
	return os.WriteFile(unitPath, []byte(content), 0o644)
}

func runSystemctl(args ...string) error {
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func printDaemonUsage() {
	fmt.Fprintln(os.Stderr, "median daemon")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  median daemon <action> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Actions:")
	fmt.Fprintln(os.Stderr, "  install     Write the unit file, daemon-reload, and enable on boot")
	fmt.Fprintln(os.Stderr, "  uninstall   Stop, disable, and remove the unit file")
	fmt.Fprintln(os.Stderr, "  start       Start median-serve")
	fmt.Fprintln(os.Stderr, "  stop        Stop median-serve")
	fmt.Fprintln(os.Stderr, "  restart     Restart median-serve")
	fmt.Fprintln(os.Stderr, "  status      Show median-serve status")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Install flags:")
	fmt.Fprintln(os.Stderr, "  --user <name>       Service user (default: $USER)")
	fmt.Fprintln(os.Stderr, "  --port <n>          API port (default: 8090)")
	fmt.Fprintln(os.Stderr, "  --workdir <path>    Working directory (default: current directory)")
	fmt.Fprintln(os.Stderr, "  --binary <path>     median binary (default: /usr/local/bin/median)")
	fmt.Fprintln(os.Stderr, "  --env-file <path>   Optional systemd EnvironmentFile")
}
