//go:build mage
// +build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const image = "prcybr/adsb-ingest:latest"

// Runs go mod download and then installs the binary.
func Build() error {
	if err := sh.Run("go", "mod", "download"); err != nil {
		return err
	}
	return sh.RunV("go", "install", "./cmd/adsb-ingest")
}

// Runs the tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Build a docker image for amd64
func BuildDockerAMD() error {
	mg.Deps(Test)
	return sh.RunV("docker", "build", "-t", image, "-f", "cmd/adsb-ingest/Dockerfile", ".")
}

// Build a docker image for arm32
func ARM32Image() error {
	return sh.RunV("docker", "build", "--build-arg", "TARGET_PLATFORM=linux/arm/v7", "--build-arg", "COMPILE_GOARCH=arm", "--build-arg", "COMPILE_GOARM=7", "-t", image, "-f", "cmd/adsb-ingest/Dockerfile", ".")
}

func ARM32Push() error {
	mg.Deps(ARM32Image)
	return sh.RunV("docker", "push", image)
}
