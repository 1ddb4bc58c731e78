package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/wippyai/cargo-wasm/binaryen"
	"github.com/wippyai/cargo-wasm/errors"
	"github.com/wippyai/cargo-wasm/toolchain"
)

const (
	// DefaultOutDir receives generated glue for every package.
	DefaultOutDir = "dist/js"
	// FileName is the optional per-project configuration file.
	FileName = "cargo-wasm.yaml"

	DefaultDownloadTimeout = 10 * time.Minute
)

// Target selects the flavour of generated JavaScript
type Target string

const (
	TargetWeb     Target = "web"
	TargetBundler Target = "bundler"
	TargetRollup  Target = "rollup"
)

// ParseTarget validates a target name, case-insensitively
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TargetWeb, nil
	case TargetWeb, TargetBundler, TargetRollup:
		return t, nil
	}
	return "", fmt.Errorf("'%s' is not an allowed target. Supported options are: web (default), bundler, rollup", s)
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Target) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BindgenTarget returns the value passed to wasm-bindgen --target
func (t Target) BindgenTarget() string {
	if t == TargetBundler {
		return string(TargetBundler)
	}
	return string(TargetWeb)
}

// EmitsBootstrap reports whether a loader script is generated for the target
func (t Target) EmitsBootstrap() bool {
	return t == TargetBundler || t == TargetRollup
}

// OptimizeOptions enables wasm-opt
type OptimizeOptions struct {
	Level binaryen.Level `yaml:"level"`
}

// BindgenTool pins the wasm-bindgen CLI crate and binary names
type BindgenTool struct {
	Crate  string `yaml:"crate"`
	Binary string `yaml:"binary"`
}

// BinaryenTool pins the binaryen release wasm-opt is taken from
type BinaryenTool struct {
	Version string `yaml:"version"`
	Arch    string `yaml:"arch"`
	BaseURL string `yaml:"base_url"`
}

// Options is the immutable configuration of one build invocation
type Options struct {
	Optimize *OptimizeOptions `yaml:"optimize"`

	Target Target `yaml:"target"`
	OutDir string `yaml:"out_dir"`
	// Cargo is the cargo executable, taken from $CARGO when run as a subcommand.
	Cargo string `yaml:"cargo"`

	Bindgen  BindgenTool  `yaml:"bindgen"`
	Binaryen BinaryenTool `yaml:"binaryen"`

	// ProcessTimeout bounds every external process; zero waits indefinitely.
	ProcessTimeout  time.Duration `yaml:"process_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	Release        bool `yaml:"release"`
	TypeScript     bool `yaml:"typescript"`
	WeakRefs       bool `yaml:"weak_refs"`
	ReferenceTypes bool `yaml:"reference_types"`
	NoDemangle     bool `yaml:"no_demangle"`
	Clean          bool `yaml:"clean"`
	Quiet          bool `yaml:"quiet"`
	// StrictVersions turns diverging wasm-bindgen versions into an error.
	StrictVersions bool `yaml:"strict_versions"`
}

// Defaults returns the options used when nothing is configured
func Defaults() Options {
	return Options{
		Target:          TargetWeb,
		OutDir:          DefaultOutDir,
		Cargo:           "cargo",
		DownloadTimeout: DefaultDownloadTimeout,
		Bindgen: BindgenTool{
			Crate:  toolchain.DefaultCrate,
			Binary: toolchain.DefaultBinary,
		},
		Binaryen: BinaryenTool{
			Version: binaryen.DefaultVersion,
			Arch:    binaryen.DefaultArch,
			BaseURL: binaryen.DefaultBaseURL,
		},
	}
}

// Mode returns the cargo profile directory name
func (o Options) Mode() string {
	if o.Release {
		return "release"
	}
	return "debug"
}

// Validate rejects options no stage can work with
func (o Options) Validate() error {
	if strings.TrimSpace(o.OutDir) == "" {
		return errors.InvalidInput(errors.PhaseConfig, "out_dir must not be empty")
	}
	if _, err := ParseTarget(string(o.Target)); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Cause(err).Build()
	}
	if o.ProcessTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "process_timeout must not be negative")
	}
	if o.DownloadTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "download_timeout must not be negative")
	}
	if o.Cargo == "" {
		return errors.InvalidInput(errors.PhaseConfig, "cargo executable must be set")
	}
	if o.Bindgen.Crate == "" || o.Bindgen.Binary == "" {
		return errors.InvalidInput(errors.PhaseConfig, "bindgen crate and binary must be set")
	}
	if o.Optimize != nil && (o.Binaryen.Version == "" || o.Binaryen.Arch == "" || o.Binaryen.BaseURL == "") {
		return errors.InvalidInput(errors.PhaseConfig, "binaryen version, arch and base_url must be set to optimize")
	}
	return nil
}
