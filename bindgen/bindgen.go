// Package bindgen runs the wasm-bindgen CLI to produce JavaScript glue.
//
// Boolean options are translated through a single table of switches, so
// adding a wasm-bindgen flag means adding one row.
package bindgen

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/config"
	"github.com/wippyai/cargo-wasm/errors"
	"github.com/wippyai/cargo-wasm/metadata"
)

// switches maps an option to the flag passed when it returns true. TypeScript
// output is on by default in wasm-bindgen, so its absence must be spelled out.
var switches = []struct {
	flag    string
	enabled func(config.Options) bool
}{
	{"--no-typescript", func(o config.Options) bool { return !o.TypeScript }},
	{"--weak-refs", func(o config.Options) bool { return o.WeakRefs }},
	{"--reference-types", func(o config.Options) bool { return o.ReferenceTypes }},
	{"--no-demangle", func(o config.Options) bool { return o.NoDemangle }},
}

// Args returns the wasm-bindgen arguments for one input artifact
func Args(input string, opts config.Options) []string {
	args := []string{input, "--target", opts.Target.BindgenTarget()}
	for _, s := range switches {
		if s.enabled(opts) {
			args = append(args, s.flag)
		}
	}
	return append(args, "--out-dir", opts.OutDir)
}

// Outputs lists the files wasm-bindgen writes for pkg into outDir
type Outputs struct {
	JS   string
	Wasm string
	// DTS is empty when TypeScript generation is off.
	DTS string
}

// OutputsFor returns the generated file paths for pkg
func OutputsFor(pkg metadata.Package, opts config.Options) Outputs {
	name := pkg.ArtifactName()
	out := Outputs{
		JS:   filepath.Join(opts.OutDir, name+".js"),
		Wasm: filepath.Join(opts.OutDir, name+"_bg.wasm"),
	}
	if opts.TypeScript {
		out.DTS = filepath.Join(opts.OutDir, name+".d.ts")
	}
	return out
}

// Generator invokes a version-specific wasm-bindgen CLI
type Generator struct {
	Runner command.Runner
	Log    *zap.Logger
}

// Generate runs the CLI at tool over input and returns the generated outputs.
// Output names are derived from the package name, so packages sharing an out
// dir never collide.
func (g *Generator) Generate(ctx context.Context, pkg metadata.Package, tool, input string, opts config.Options) (Outputs, error) {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("building js glue code",
		zap.String("package", pkg.ArtifactName()),
		zap.String("wasm-bindgen", pkg.BindgenVersion),
		zap.String("out_dir", opts.OutDir))

	if _, err := g.Runner.Run(ctx, command.Command{Name: tool, Args: Args(input, opts)}); err != nil {
		return Outputs{}, errors.GlueGenerationFailed(pkg.Name, err)
	}
	return OutputsFor(pkg, opts), nil
}
