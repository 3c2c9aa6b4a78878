// Package tuner applies kernel network tuning for large uploads.
package tuner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/uploadworks/upload-bootstrap/internal/sysenv"
	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
	"github.com/uploadworks/upload-bootstrap/internal/utils/shell"
)

// SysctlConfFile is where the persistent Linux configuration lands.
var SysctlConfFile = "/etc/sysctl.d/99-network-optimization.conf"

// Geteuid is swappable for privilege-check tests.
var Geteuid = os.Geteuid

// Tuner builds and applies the per-OS optimization command plan.
type Tuner struct {
	os sysenv.OS
}

// New returns a tuner for the given OS family.
func New(osFamily sysenv.OS) *Tuner {
	return &Tuner{os: osFamily}
}

var linuxCommands = []string{
	// TCP buffer sizes
	"sysctl -w net.core.rmem_max=134217728",
	"sysctl -w net.core.wmem_max=134217728",
	`sysctl -w net.ipv4.tcp_rmem="4096 87380 134217728"`,
	`sysctl -w net.ipv4.tcp_wmem="4096 65536 134217728"`,

	// Connection tracking
	"sysctl -w net.core.netdev_max_backlog=5000",
	"sysctl -w net.core.somaxconn=1024",

	// TCP behavior
	"sysctl -w net.ipv4.tcp_window_scaling=1",
	"sysctl -w net.ipv4.tcp_timestamps=1",
	"sysctl -w net.ipv4.tcp_sack=1",
	"sysctl -w net.ipv4.tcp_no_metrics_save=1",

	// Faster recovery
	"sysctl -w net.ipv4.tcp_syn_retries=3",
	"sysctl -w net.ipv4.tcp_synack_retries=3",
	"sysctl -w net.ipv4.tcp_retries2=8",
}

var darwinCommands = []string{
	"sysctl -w kern.ipc.maxsockbuf=16777216",
	"sysctl -w net.inet.tcp.sendspace=1048576",
	"sysctl -w net.inet.tcp.recvspace=1048576",
}

var windowsCommands = []string{
	"netsh int tcp set global autotuninglevel=normal",
	"netsh int tcp set global rss=enabled",
	"netsh int tcp set global initialrto=1000",
	"netsh int tcp set global maxsynretransmissions=4",
}

const persistentConfig = `# Network optimization for video upload/download
# Generated by upload-bootstrap

# TCP buffer sizes
net.core.rmem_max = 134217728
net.core.wmem_max = 134217728
net.ipv4.tcp_rmem = 4096 87380 134217728
net.ipv4.tcp_wmem = 4096 65536 134217728

# Connection optimizations
net.core.netdev_max_backlog = 5000
net.core.somaxconn = 1024

# TCP optimizations
net.ipv4.tcp_window_scaling = 1
net.ipv4.tcp_timestamps = 1
net.ipv4.tcp_sack = 1
net.ipv4.tcp_no_metrics_save = 1

# Faster recovery
net.ipv4.tcp_syn_retries = 3
net.ipv4.tcp_synack_retries = 3
net.ipv4.tcp_retries2 = 8

# BBR congestion control (if available)
net.ipv4.tcp_congestion_control = bbr
net.core.default_qdisc = fq
`

// CommandPlan returns the ordered tuning commands for this OS. On Linux
// the BBR switch is appended only when the kernel offers it.
func (t *Tuner) CommandPlan() []string {
	switch t.os {
	case sysenv.OSLinux:
		commands := append([]string{}, linuxCommands...)
		if t.BBRAvailable() {
			commands = append(commands,
				"sysctl -w net.ipv4.tcp_congestion_control=bbr",
				"sysctl -w net.core.default_qdisc=fq",
			)
		}
		return commands
	case sysenv.OSMacOS:
		return append([]string{}, darwinCommands...)
	case sysenv.OSWindows:
		return append([]string{}, windowsCommands...)
	default:
		return nil
	}
}

// CongestionControl returns the current TCP congestion algorithm, or ""
// when it cannot be read.
func (t *Tuner) CongestionControl() string {
	if t.os != sysenv.OSLinux {
		return ""
	}
	return t.readSysctl("net.ipv4.tcp_congestion_control")
}

// BBRAvailable reports whether the kernel lists bbr as an available
// congestion control algorithm.
func (t *Tuner) BBRAvailable() bool {
	if t.os != sysenv.OSLinux {
		return false
	}
	available := t.readSysctl("net.ipv4.tcp_available_congestion_control")
	return strings.Contains(available, "bbr")
}

func (t *Tuner) readSysctl(key string) string {
	out, err := shell.ExecCmd("sysctl "+key, false, nil)
	if err != nil {
		return ""
	}
	parts := strings.SplitN(out, "=", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// HasRootPrivileges reports whether the process can apply kernel tuning.
func (t *Tuner) HasRootPrivileges() bool {
	if t.os == sysenv.OSWindows {
		// No euid notion; rely on netsh failing when unprivileged.
		return true
	}
	return Geteuid() == 0
}

// Apply runs the command plan, returning applied and total counts. With
// dryRun it only prints the plan to out. A non-root invocation errors
// before touching anything.
func (t *Tuner) Apply(dryRun bool, out io.Writer) (int, int, error) {
	log := logger.Logger()
	commands := t.CommandPlan()

	if len(commands) == 0 {
		return 0, 0, fmt.Errorf("no tuning plan for OS %s", t.os)
	}

	if dryRun {
		fmt.Fprintln(out, "Commands that would be executed:")
		for _, cmd := range commands {
			fmt.Fprintf(out, "  %s\n", cmd)
		}
		return 0, len(commands), nil
	}

	if !t.HasRootPrivileges() {
		return 0, len(commands), fmt.Errorf("root privileges required for system tuning (re-run with sudo)")
	}

	applied := 0
	for _, cmd := range commands {
		log.Infof("Executing: %s", cmd)
		if _, err := shell.ExecCmd(cmd, true, nil); err != nil {
			log.Warnf("Tuning command failed: %v", err)
			continue
		}
		applied++
	}

	log.Infof("Applied %d/%d network optimizations", applied, len(commands))
	return applied, len(commands), nil
}

// WritePersistentConfig writes the sysctl.d file so tuning survives
// reboots. Linux only.
func (t *Tuner) WritePersistentConfig() error {
	if t.os != sysenv.OSLinux {
		return fmt.Errorf("persistent configuration not implemented for OS %s", t.os)
	}

	if err := os.WriteFile(SysctlConfFile, []byte(persistentConfig), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", SysctlConfFile, err)
	}

	logger.Logger().Infof("Created persistent config: %s", SysctlConfFile)
	return nil
}

// Settings is a snapshot of the currently effective network tuning.
type Settings struct {
	OS                string `json:"os"`
	CongestionControl string `json:"congestionControl,omitempty"`
	BBRAvailable      bool   `json:"bbrAvailable"`
	RootAccess        bool   `json:"rootAccess"`
	RmemMax           string `json:"rmemMax,omitempty"`
	WmemMax           string `json:"wmemMax,omitempty"`
}

// Benchmark reads the current settings without changing anything.
func (t *Tuner) Benchmark() Settings {
	s := Settings{
		OS:                string(t.os),
		CongestionControl: t.CongestionControl(),
		BBRAvailable:      t.BBRAvailable(),
		RootAccess:        t.HasRootPrivileges(),
	}
	if t.os == sysenv.OSLinux {
		s.RmemMax = t.readSysctl("net.core.rmem_max")
		s.WmemMax = t.readSysctl("net.core.wmem_max")
	}
	return s
}
