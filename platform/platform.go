// Package platform maps the host operating system and architecture to the
// identifiers used by prebuilt binaryen release archives.
package platform

import (
	"runtime"

	"github.com/wippyai/cargo-wasm/errors"
)

// Platform is a supported download target
type Platform string

const (
	Linux   Platform = "linux"
	MacOS   Platform = "macos"
	Windows Platform = "windows"
)

// SupportedArch is the only architecture with prebuilt optimizer archives
const SupportedArch = "amd64"

// String returns the name used in release archive file names
func (p Platform) String() string {
	return string(p)
}

// ExeSuffix returns the executable file suffix for the platform
func (p Platform) ExeSuffix() string {
	if p == Windows {
		return ".exe"
	}
	return ""
}

// Resolver resolves a Platform from an explicit OS/architecture pair.
// The zero value resolves the running host.
type Resolver struct {
	OS   string
	Arch string
}

// Host returns a Resolver for the running process
func Host() Resolver {
	return Resolver{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Resolve returns the download target for the configured OS and architecture,
// or an unsupported_platform error carrying both.
func (r Resolver) Resolve() (Platform, error) {
	goos, goarch := r.OS, r.Arch
	if goos == "" {
		goos = runtime.GOOS
	}
	if goarch == "" {
		goarch = runtime.GOARCH
	}

	if goarch != SupportedArch {
		return "", errors.UnsupportedPlatform(goos, goarch)
	}

	switch goos {
	case "linux":
		return Linux, nil
	case "darwin":
		return MacOS, nil
	case "windows":
		return Windows, nil
	}
	return "", errors.UnsupportedPlatform(goos, goarch)
}
