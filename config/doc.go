// Package config holds the options snapshot for one build invocation.
//
// Options are assembled once, before any pipeline stage runs, from defaults,
// an optional cargo-wasm.yaml in the project root, CARGO_WASM_* environment
// variables and finally command-line flags. Stages only read them.
package config
