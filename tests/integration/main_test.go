package integration

import (
	"os"
	"testing"
)

// TestMain builds the keepstate binary once before running tests.
func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "keepstate-test-*")
	if err != nil {
		buildErr = err
	} else {
		keepstateBin, buildErr = buildBinary(tmpDir)
	}

	code := m.Run()
	if tmpDir != "" {
		os.RemoveAll(tmpDir)
	}
	os.Exit(code)
}
