package shell

import (
	"fmt"
	"strings"
)

// MockCommand describes one expected command for the mock executor.
// Pattern is matched against the raw command string, exact match first,
// then substring.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor satisfies Executor for tests.
type MockExecutor struct {
	Commands []MockCommand
	// Calls records every command string the mock saw, in order.
	Calls []string
}

// NewMockExecutor builds a mock executor from the expected command list.
func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{Commands: commands}
}

func (m *MockExecutor) lookup(cmdStr string) (string, error) {
	m.Calls = append(m.Calls, cmdStr)
	for _, mc := range m.Commands {
		if mc.Pattern == cmdStr {
			return mc.Output, mc.Error
		}
	}
	for _, mc := range m.Commands {
		if strings.Contains(cmdStr, mc.Pattern) {
			return mc.Output, mc.Error
		}
	}
	return "", fmt.Errorf("unexpected command for mock: %s", cmdStr)
}

func (m *MockExecutor) ExecCmd(cmdStr string, sudo bool, envVal []string) (string, error) {
	return m.lookup(cmdStr)
}

func (m *MockExecutor) ExecCmdWithStream(cmdStr string, sudo bool, envVal []string) (string, error) {
	return m.lookup(cmdStr)
}

func (m *MockExecutor) IsCommandExist(cmd string) (bool, error) {
	out, err := m.lookup("command -v " + cmd)
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(out) != "", nil
}
