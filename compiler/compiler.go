// Package compiler cross-compiles workspace packages to wasm32-unknown-unknown.
package compiler

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/config"
	"github.com/wippyai/cargo-wasm/errors"
	"github.com/wippyai/cargo-wasm/metadata"
)

// Target is the rustc target triple every package is built for
const Target = "wasm32-unknown-unknown"

// Compiler runs `cargo build` for one package at a time
type Compiler struct {
	Runner command.Runner
	Log    *zap.Logger
	// Root is the working directory for cargo, the workspace root.
	Root string
	// TargetDir is cargo's target directory.
	TargetDir string
}

// ArtifactPath returns where cargo writes the .wasm for pkg
func ArtifactPath(targetDir, mode string, pkg metadata.Package) string {
	return filepath.Join(targetDir, Target, mode, pkg.ArtifactName()+".wasm")
}

// Args returns the cargo arguments that build pkg
func Args(pkg metadata.Package, opts config.Options) []string {
	args := []string{"build", "--package", pkg.Name, "--target", Target}
	if opts.Release {
		args = append(args, "--release")
	}
	return args
}

// Compile builds pkg and returns the path of the produced .wasm. The build is
// scoped to the one package so a failure does not stop its siblings.
func (c *Compiler) Compile(ctx context.Context, pkg metadata.Package, opts config.Options) (string, error) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("building "+Target, zap.String("package", pkg.Name), zap.String("mode", opts.Mode()))

	res, err := c.Runner.Run(ctx, command.Command{
		Name: opts.Cargo,
		Args: Args(pkg, opts),
		Dir:  c.Root,
	})
	if err != nil {
		return "", errors.CompileFailed(pkg.Name, err)
	}
	if res != nil {
		log.Debug("cargo build finished", zap.String("package", pkg.Name), zap.Duration("took", res.Duration))
	}

	return ArtifactPath(c.TargetDir, opts.Mode(), pkg), nil
}
