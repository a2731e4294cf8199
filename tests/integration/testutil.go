// Package integration exercises keepstate end to end: the registry over the
// SQLite store, and the built keepstate binary.
package integration

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var (
	// keepstateBin is the path to the built keepstate binary.
	keepstateBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot walks up from the working directory to the directory
// holding go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// buildBinary compiles cmd/keepstate into dir.
func buildBinary(dir string) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}
	bin := filepath.Join(dir, "keepstate")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/keepstate")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", &BuildError{Err: err, Output: string(out)}
	}
	return bin, nil
}

// TestEnv is an isolated config and data directory pair.
type TestEnv struct {
	t         *testing.T
	ConfigDir string
	DataDir   string
	AppID     string
}

// NewTestEnv creates a fresh environment. KEEPSTATE_* variables from the
// caller's shell are cleared.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if buildErr != nil {
		t.Fatalf("failed to build keepstate: %v", buildErr)
	}
	if keepstateBin == "" {
		t.Fatal("keepstate binary not built")
	}
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "KEEPSTATE_") {
			t.Setenv(name, "")
		}
	}

	base := t.TempDir()
	return &TestEnv{
		t:         t,
		ConfigDir: filepath.Join(base, "config"),
		DataDir:   filepath.Join(base, "data"),
	}
}

// CmdResult holds the result of a keepstate invocation.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes keepstate with the environment's directories.
func (e *TestEnv) Run(args ...string) CmdResult {
	e.t.Helper()

	all := []string{"--config-dir", e.ConfigDir, "--data-dir", e.DataDir}
	if e.AppID != "" {
		all = append(all, "--app-id", e.AppID)
	}
	cmd := exec.Command(keepstateBin, append(all, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			e.t.Fatalf("failed to run keepstate: %v", err)
		}
		code = exitErr.ExitCode()
	}
	return CmdResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}
}

// MustRun executes keepstate and fails the test on a non-zero exit.
func (e *TestEnv) MustRun(args ...string) CmdResult {
	e.t.Helper()
	res := e.Run(args...)
	if res.ExitCode != 0 {
		e.t.Fatalf("keepstate %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, res.ExitCode, res.Stdout, res.Stderr)
	}
	return res
}
