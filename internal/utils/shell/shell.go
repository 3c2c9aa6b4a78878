package shell

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/uploadworks/upload-bootstrap/internal/utils/logger"
)

// Executor runs shell commands. The package-level functions go through
// Default so tests can swap in a mock.
type Executor interface {
	ExecCmd(cmdStr string, sudo bool, envVal []string) (string, error)
	ExecCmdWithStream(cmdStr string, sudo bool, envVal []string) (string, error)
	IsCommandExist(cmd string) (bool, error)
}

// Default is the executor used by the package-level helpers.
var Default Executor = &hostExecutor{}

// ExecCmd executes a command and returns its combined output.
func ExecCmd(cmdStr string, sudo bool, envVal []string) (string, error) {
	return Default.ExecCmd(cmdStr, sudo, envVal)
}

// ExecCmdWithStream executes a command and streams its output to the logger.
func ExecCmdWithStream(cmdStr string, sudo bool, envVal []string) (string, error) {
	return Default.ExecCmdWithStream(cmdStr, sudo, envVal)
}

// IsCommandExist checks if a command resolves on the host.
func IsCommandExist(cmd string) (bool, error) {
	return Default.IsCommandExist(cmd)
}

type hostExecutor struct{}

// GetOSEnvirons returns the system environment variables as a map.
func GetOSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// GetOSProxyEnvirons retrieves HTTP and HTTPS proxy environment variables.
func GetOSProxyEnvirons() map[string]string {
	osEnv := GetOSEnvirons()
	proxyEnv := make(map[string]string)

	for key, value := range osEnv {
		if strings.Contains(strings.ToLower(key), "http_proxy") ||
			strings.Contains(strings.ToLower(key), "https_proxy") {
			proxyEnv[key] = value
		}
	}

	return proxyEnv
}

// getShell returns the preferred shell, falling back to /bin/sh if bash is not available
func getShell() string {
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh" // fallback
}

// GetFullCmdStr prepares a command string with necessary prefixes
func GetFullCmdStr(cmdStr string, sudo bool, envVal []string) string {
	log := logger.Logger()
	envValStr := ""
	for _, env := range envVal {
		envValStr += env + " "
	}

	if sudo {
		proxyEnv := GetOSProxyEnvirons()
		for key, value := range proxyEnv {
			envValStr += key + "=" + value + " "
		}

		log.Debugf("Exec: [sudo " + cmdStr + "]")
		return "sudo " + envValStr + cmdStr
	}

	log.Debugf("Exec: [" + cmdStr + "]")
	return envValStr + cmdStr
}

func (e *hostExecutor) ExecCmd(cmdStr string, sudo bool, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr := GetFullCmdStr(cmdStr, sudo, envVal)

	shell := getShell()
	cmd := exec.Command(shell, "-c", fullCmdStr)
	output, err := cmd.CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Infof(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if outputStr != "" {
		log.Debugf(outputStr)
	}
	return outputStr, nil
}

func (e *hostExecutor) ExecCmdWithStream(cmdStr string, sudo bool, envVal []string) (string, error) {
	var outputStr string
	log := logger.Logger()

	fullCmdStr := GetFullCmdStr(cmdStr, sudo, envVal)

	shell := getShell()
	cmd := exec.Command(shell, "-c", fullCmdStr)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", fullCmdStr, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", fullCmdStr, err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", fullCmdStr, err)
	}

	// Stream output in goroutines
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				outputStr += str
				log.Infof(str)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				log.Infof(str)
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return outputStr, fmt.Errorf("failed to wait for command %s: %w", fullCmdStr, err)
	}

	return outputStr, nil
}

func (e *hostExecutor) IsCommandExist(cmd string) (bool, error) {
	if _, err := exec.LookPath(cmd); err != nil {
		return false, nil
	}
	return true, nil
}
