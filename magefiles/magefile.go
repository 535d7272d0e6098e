//go:build mage

// Package main holds the build targets of pisi, run with mage.
//
//	mage build     Compile the pisi binary to bin/, with version information
//	mage test      Run all tests with the race detector
//	mage cover     Run all tests and write a coverage profile
//	mage lint      Run golangci-lint
//	mage clean     Remove build artifacts
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo       = "go"
	binaryName  = "pisi"
	binaryDir   = "bin"
	cmdDir      = "./cmd/pisi"
	versionPkg  = "github.com/serpent-os/pisi/cmd/pisi/cmd"
	coverOutput = "coverage.out"
)

// Default target
var Default = Build

// gitOutput runs git, returning an empty string on failure, e.g. outside of a checkout
func gitOutput(args ...string) string {
	out, err := sh.Output("git", args...)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func ldflags() string {
	state := "clean"
	if gitOutput("status", "--porcelain") != "" {
		state = "dirty"
	}
	values := map[string]string{
		"Version":   gitOutput("describe", "--tags", "--always"),
		"GitCommit": gitOutput("rev-parse", "HEAD"),
		"GitState":  state,
		"BuildDate": time.Now().UTC().Format(time.RFC3339),
	}
	flags := []string{"-s", "-w"}
	for _, name := range []string{"Version", "GitCommit", "GitState", "BuildDate"} {
		flags = append(flags, fmt.Sprintf("-X %s.%s=%s", versionPkg, name, values[name]))
	}
	return strings.Join(flags, " ")
}

// Build compiles the pisi binary to bin/
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests with the race detector
func Test() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Cover runs all tests and writes a coverage profile
func Cover() error {
	if err := sh.RunV(binGo, "test", "-coverprofile", coverOutput, "-covermode", "atomic", "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func", coverOutput)
}

// Lint runs golangci-lint
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Install builds and copies the binary to GOPATH/bin
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}

// Clean removes build artifacts
func Clean() error {
	for _, pth := range []string{binaryDir, coverOutput} {
		if err := os.RemoveAll(pth); err != nil {
			return err
		}
	}
	return nil
}
