// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for keepstate using Mage.
//
//	mage build            Compile the keepstate binary to bin/
//	mage install          Install keepstate to GOPATH/bin
//	mage smoke            Run the built binary against a scratch directory
//	mage test:all         Run all tests
//	mage test:unit        Run unit tests only
//	mage test:integration Run tests under tests/
//	mage test:cover       Write a coverage profile to bin/cover.out
//	mage lint             Run golangci-lint
//	mage clean            Remove build artifacts
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "keepstate"
	binaryDir  = "bin"
	cmdDir     = "./cmd/keepstate"
)

// Build compiles the keepstate binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}

// Smoke runs init, set, get and clear with the built binary in a scratch
// directory.
func Smoke() error {
	mg.Deps(Build)
	scratch, err := os.MkdirTemp("", "keepstate-smoke-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	bin, err := filepath.Abs(filepath.Join(binaryDir, binaryName))
	if err != nil {
		return err
	}
	env := map[string]string{
		"KEEPSTATE_CONFIG_DIR": filepath.Join(scratch, "config"),
		"KEEPSTATE_DATA_DIR":   filepath.Join(scratch, "data"),
		"KEEPSTATE_APP_ID":     "smoke",
	}
	steps := [][]string{
		{"version"},
		{"init"},
		{"set", "greeting", `"hello"`, "--expire", "1m"},
		{"get", "greeting"},
		{"list"},
		{"clear", "--force"},
	}
	for _, args := range steps {
		if err := sh.RunWithV(env, bin, args...); err != nil {
			return fmt.Errorf("keepstate %v: %w", args, err)
		}
	}
	return nil
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}
