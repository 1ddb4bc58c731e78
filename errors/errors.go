package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage produced the error
type Phase string

const (
	PhaseConfig    Phase = "config"    // option loading and validation
	PhasePlatform  Phase = "platform"  // host platform resolution
	PhaseDiscover  Phase = "discover"  // project metadata query
	PhaseInstall   Phase = "install"   // helper CLI installation
	PhaseCompile   Phase = "compile"   // native build to wasm
	PhaseBindgen   Phase = "bindgen"   // JS glue generation
	PhaseFetch     Phase = "fetch"     // optimizer download and unpack
	PhaseOptimize  Phase = "optimize"  // optimizer run
	PhaseVerify    Phase = "verify"    // artifact inspection
	PhaseBootstrap Phase = "bootstrap" // loader script emission
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupportedPlatform  Kind = "unsupported_platform"
	KindMetadataUnavailable  Kind = "metadata_unavailable"
	KindInstallFailed        Kind = "install_failed"
	KindCompileFailed        Kind = "compile_failed"
	KindGlueGenerationFailed Kind = "glue_generation_failed"
	KindDownloadFailed       Kind = "download_failed"
	KindExtractFailed        Kind = "extract_failed"
	KindOptimizeFailed       Kind = "optimize_failed"
	KindVerifyFailed         Kind = "verify_failed"
	KindVersionConflict      Kind = "version_conflict"
	KindInvalidInput         Kind = "invalid_input"
	KindIO                   Kind = "io"
)

// Error is the structured error type used throughout the build pipeline
type Error struct {
	Cause   error
	Phase   Phase
	Kind    Kind
	Package string
	Path    string
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Package != "" {
		b.WriteString(" for ")
		b.WriteString(e.Package)
	}

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Sentinel targets for errors.Is. They match any phase.
var (
	ErrUnsupportedPlatform  = &Error{Kind: KindUnsupportedPlatform}
	ErrMetadataUnavailable  = &Error{Kind: KindMetadataUnavailable}
	ErrInstallFailed        = &Error{Kind: KindInstallFailed}
	ErrCompileFailed        = &Error{Kind: KindCompileFailed}
	ErrGlueGenerationFailed = &Error{Kind: KindGlueGenerationFailed}
	ErrDownloadFailed       = &Error{Kind: KindDownloadFailed}
	ErrExtractFailed        = &Error{Kind: KindExtractFailed}
	ErrOptimizeFailed       = &Error{Kind: KindOptimizeFailed}
	ErrVerifyFailed         = &Error{Kind: KindVerifyFailed}
	ErrVersionConflict      = &Error{Kind: KindVersionConflict}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Package sets the package the error concerns
func (b *Builder) Package(name string) *Builder {
	b.err.Package = name
	return b
}

// Path sets the filesystem path or URL the error concerns
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors, one per failure in the pipeline taxonomy

// UnsupportedPlatform reports a host without prebuilt optimizer binaries
func UnsupportedPlatform(goos, goarch string) *Error {
	return &Error{
		Phase:  PhasePlatform,
		Kind:   KindUnsupportedPlatform,
		Detail: fmt.Sprintf("no prebuilt binaries for %s/%s", goos, goarch),
	}
}

// MetadataUnavailable reports a metadata query that could not run or be read
func MetadataUnavailable(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseDiscover,
		Kind:   KindMetadataUnavailable,
		Detail: detail,
		Cause:  cause,
	}
}

// InstallFailed reports a failed helper CLI installation
func InstallFailed(tool, version string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstall,
		Kind:   KindInstallFailed,
		Detail: fmt.Sprintf("install %s %s", tool, version),
		Cause:  cause,
	}
}

// CompileFailed reports a package that did not build for the wasm target
func CompileFailed(pkg string, cause error) *Error {
	return &Error{
		Phase:   PhaseCompile,
		Kind:    KindCompileFailed,
		Package: pkg,
		Cause:   cause,
	}
}

// GlueGenerationFailed reports a helper CLI run that did not produce bindings
func GlueGenerationFailed(pkg string, cause error) *Error {
	return &Error{
		Phase:   PhaseBindgen,
		Kind:    KindGlueGenerationFailed,
		Package: pkg,
		Cause:   cause,
	}
}

// DownloadFailed reports an archive request that failed after its retry
func DownloadFailed(url string, cause error) *Error {
	return &Error{
		Phase: PhaseFetch,
		Kind:  KindDownloadFailed,
		Path:  url,
		Cause: cause,
	}
}

// ExtractFailed reports an archive that could not be unpacked
func ExtractFailed(dir string, cause error) *Error {
	return &Error{
		Phase: PhaseFetch,
		Kind:  KindExtractFailed,
		Path:  dir,
		Cause: cause,
	}
}

// OptimizeFailed reports an optimizer process failure for one artifact
func OptimizeFailed(path string, cause error) *Error {
	return &Error{
		Phase: PhaseOptimize,
		Kind:  KindOptimizeFailed,
		Path:  path,
		Cause: cause,
	}
}

// VerifyFailed reports an artifact that no longer decodes as a module
func VerifyFailed(path string, cause error) *Error {
	return &Error{
		Phase: PhaseVerify,
		Kind:  KindVerifyFailed,
		Path:  path,
		Cause: cause,
	}
}

// VersionConflict reports packages pinning different helper CLI versions
func VersionConflict(versions []string) *Error {
	return &Error{
		Phase:  PhaseDiscover,
		Kind:   KindVersionConflict,
		Detail: fmt.Sprintf("packages require different wasm-bindgen versions: %s", strings.Join(versions, ", ")),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// IO wraps a filesystem failure
func IO(phase Phase, path string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindIO,
		Path:  path,
		Cause: cause,
	}
}
