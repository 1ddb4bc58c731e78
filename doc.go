// Package cargowasm builds Rust workspaces for the browser.
//
// A single invocation discovers every workspace member that depends on
// wasm-bindgen, compiles it for wasm32-unknown-unknown, installs the exact
// wasm-bindgen CLI version it was built against, generates JavaScript glue into
// one output directory, optionally shrinks each binary with wasm-opt and, for
// bundler targets, writes a bootstrap.js loader.
//
// # Architecture Overview
//
//	cargowasm/
//	├── build/          Pipeline orchestration, events and the build report
//	├── metadata/       `cargo metadata` discovery of wasm-bindgen packages
//	├── toolchain/      Version-pinned wasm-bindgen CLI installation
//	├── compiler/       `cargo build --target wasm32-unknown-unknown`
//	├── bindgen/        wasm-bindgen invocation and output naming
//	├── binaryen/       wasm-opt download, unpacking and optimization levels
//	├── artifact/       Validation of optimized binaries with wazero
//	├── bootstrap/      Loader script generation
//	├── config/         Options from defaults, cargo-wasm.yaml and environment
//	├── platform/       Host to release-archive platform mapping
//	├── command/        External process execution
//	├── errors/         Structured error types
//	└── cmd/cargo-wasm  The `cargo wasm` subcommand
//
// # Quick Start
//
// Run a build from Go:
//
//	opts := config.Defaults()
//	opts.Target = config.TargetBundler
//	opts.Optimize = &config.OptimizeOptions{Level: binaryen.LevelSize}
//
//	p := &build.Pipeline{Options: opts, Root: "."}
//	report, err := p.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Bootstrap)
//
// Or from the shell:
//
//	cargo wasm build -release -target bundler -wasm-opt -Os
//
// # Concurrency
//
// Installing wasm-bindgen CLIs overlaps with compilation; every other stage
// runs sequentially. Each distinct CLI version is installed once per run.
package cargowasm
