// Package errors provides structured error types for the cargo-wasm build pipeline.
//
// Errors are categorized by Phase (which stage failed) and Kind (error category).
// The Error type carries the package name or path it concerns and keeps the
// underlying process or network error as its cause, so nothing is masked.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCompile, errors.KindCompileFailed).
//		Package("my-crate").
//		Detail("exit status %d", 101).
//		Cause(runErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.CompileFailed("my-crate", runErr)
//	err := errors.UnsupportedPlatform("linux", "386")
//
// Match a category regardless of phase with the sentinel targets:
//
//	if errors.Is(err, cwerrors.ErrUnsupportedPlatform) { ... }
package errors
