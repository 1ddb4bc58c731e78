// Package build orchestrates a cargo-wasm invocation.
//
// A Pipeline runs the stages in a fixed order:
//
//	discover -> { install wasm-bindgen CLIs || compile packages } -> bindgen
//	         -> optimize (optional) -> bootstrap (bundler and rollup targets)
//
// Installing the distinct wasm-bindgen versions runs on one background
// goroutine while the calling goroutine compiles packages; both are joined
// before any glue is generated. Everything after the join is sequential.
//
// Compile and glue failures are isolated per package: siblings are still
// attempted. Any package failure skips optimization and bootstrap emission
// for the whole invocation, since the loader must reference every package.
// Discovery failures abort immediately.
package build
