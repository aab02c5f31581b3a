//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the GLSL shaders of the testbed to SPIR-V.
func (Build) Shaders() error {
	if _, err := executeCmd("glslc", withArgs("shader.vert", "-o", "vert.spv"), withDir("shaders"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("glslc", withArgs("shader.frag", "-o", "frag.spv"), withDir("shaders"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go mod download and then builds the testbed binary.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/testbed", "."), withStream())
	return err
}
