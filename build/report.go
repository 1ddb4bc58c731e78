package build

import (
	"errors"

	"github.com/wippyai/cargo-wasm/binaryen"
	"github.com/wippyai/cargo-wasm/bindgen"
	"github.com/wippyai/cargo-wasm/metadata"
)

// PackageResult is the outcome for one discovered package
type PackageResult struct {
	Err     error
	Outputs bindgen.Outputs
	Package metadata.Package
	// Tool is the wasm-bindgen executable used for the package.
	Tool string
	// Artifact is the .wasm produced by cargo.
	Artifact string
}

// OK reports whether the package made it through glue generation
func (r PackageResult) OK() bool {
	return r.Err == nil
}

// Report summarizes one pipeline run
type Report struct {
	RunID     string
	Workspace *metadata.Workspace
	Packages  []PackageResult
	Sizes     []binaryen.SizeReport
	// Bootstrap is the written loader script path, if any.
	Bootstrap string
	Skipped   []Stage
	Failures  []error
}

// Err joins every recorded failure, nil when the run succeeded
func (r *Report) Err() error {
	return errors.Join(r.Failures...)
}

func (r *Report) fail(err error) {
	r.Failures = append(r.Failures, err)
}
