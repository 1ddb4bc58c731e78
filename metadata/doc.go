// Package metadata discovers the workspace packages that need JavaScript
// bindings.
//
// It runs `cargo metadata --format-version 1` once, keeps the workspace members
// whose dependency graph reaches wasm-bindgen and records the resolved
// wasm-bindgen version of each, which pins the wasm-bindgen CLI that package
// must be processed with. Members without the dependency are skipped silently.
package metadata
