//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed on the given backend (recorder, vulkan).
func (Run) Testbed(backend string) error {
	if backend == "vulkan" {
		mg.Deps(Build.Shaders)
	}
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs("run", ".", "-backend", backend, "-config", "config.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs the unit tests with the race detector, which needs cgo.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Runs the unit tests of a single package, e.g. ./engine/renderer/...
func (Test) Package(pkg string) error {
	_, err := executeCmd("go", withArgs("test", "-race", "-v", pkg), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
