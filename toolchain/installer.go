// Package toolchain installs version-pinned copies of the wasm-bindgen CLI.
//
// Each version lives in its own root, <dir>/<crate>/<version>, so versions never
// share files and distinct versions can be installed concurrently. The installer
// does no locking of its own: callers must not install the same version twice
// at once.
package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/errors"
)

const (
	DefaultCrate  = "wasm-bindgen-cli"
	DefaultBinary = "wasm-bindgen"
)

// Installer ensures a given wasm-bindgen CLI version exists on disk
type Installer struct {
	Runner command.Runner
	Log    *zap.Logger
	// Cargo is the cargo executable; empty means "cargo".
	Cargo string
	// Dir is the parent of all installation roots, usually the target directory.
	Dir    string
	Crate  string
	Binary string
	// ExeSuffix is appended to the binary name, ".exe" on Windows.
	ExeSuffix string
}

// NewInstaller returns an installer rooted at dir with the default crate names
func NewInstaller(runner command.Runner, dir string) *Installer {
	inst := &Installer{
		Runner: runner,
		Dir:    dir,
		Crate:  DefaultCrate,
		Binary: DefaultBinary,
	}
	if runtime.GOOS == "windows" {
		inst.ExeSuffix = ".exe"
	}
	return inst
}

// Root returns the installation root for version
func (i *Installer) Root(version string) string {
	return filepath.Join(i.Dir, i.Crate, version)
}

// Path returns the executable path for version
func (i *Installer) Path(version string) string {
	return filepath.Join(i.Root(version), "bin", i.Binary+i.ExeSuffix)
}

// Installed reports whether the executable for version is present.
// Presence of the file is the only check; the binary itself is not inspected.
func (i *Installer) Installed(version string) bool {
	_, err := os.Stat(i.Path(version))
	return err == nil
}

// EnsureInstalled returns the executable path for version, running
// `cargo install` first when it is missing. Failures are not retried.
func (i *Installer) EnsureInstalled(ctx context.Context, version string) (string, error) {
	if _, err := semver.NewVersion(version); err != nil {
		return "", errors.New(errors.PhaseInstall, errors.KindInvalidInput).
			Detail("invalid %s version %q", i.Crate, version).
			Cause(err).
			Build()
	}

	path := i.Path(version)
	if i.Installed(version) {
		i.logger().Debug("wasm-bindgen already installed", zap.String("version", version), zap.String("path", path))
		return path, nil
	}

	cargo := i.Cargo
	if cargo == "" {
		cargo = "cargo"
	}

	i.logger().Info("installing "+i.Crate, zap.String("version", version), zap.String("root", i.Root(version)))
	_, err := i.Runner.Run(ctx, command.Command{
		Name: cargo,
		Args: []string{"install", "--root", i.Root(version), "--version", version, "--", i.Crate},
	})
	if err != nil {
		return "", errors.InstallFailed(i.Crate, version, err)
	}

	if !i.Installed(version) {
		return "", errors.New(errors.PhaseInstall, errors.KindInstallFailed).
			Path(path).
			Detail("cargo install succeeded but %s is missing", i.Binary).
			Build()
	}
	return path, nil
}

func (i *Installer) logger() *zap.Logger {
	if i.Log == nil {
		return zap.NewNop()
	}
	return i.Log
}

// Distinct returns each version once, ordered by semantic version.
// Versions that do not parse sort after valid ones, lexically.
func Distinct(versions []string) []string {
	seen := make(map[string]struct{}, len(versions))
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	sort.SliceStable(out, func(a, b int) bool {
		va, errA := semver.NewVersion(out[a])
		vb, errB := semver.NewVersion(out[b])
		switch {
		case errA == nil && errB == nil:
			return va.LessThan(vb)
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return out[a] < out[b]
	})
	return out
}
