// Package bootstrap generates the loader script used by bundler and rollup
// builds. The script imports every package's glue module and initializes its
// wasm binary.
package bootstrap

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wippyai/cargo-wasm/metadata"
)

// FileName is the script name inside the output directory
const FileName = "bootstrap.js"

// Emit returns the loader script text for pkgs, whose glue lives in outDir.
// All imports come first, then one init call per package in the same order.
func Emit(pkgs []metadata.Package, outDir string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "// Generated by cargo-wasm from %s. Do not edit.\n", filepath.ToSlash(outDir))
	for _, p := range pkgs {
		name := p.ArtifactName()
		fmt.Fprintf(&b, "import %s from \"./%s.js\";\n", initName(name), name)
	}

	if len(pkgs) > 0 {
		b.WriteByte('\n')
	}

	for _, p := range pkgs {
		name := p.ArtifactName()
		wasm := name + "_bg.wasm"
		fmt.Fprintf(&b, "%s(%q).catch((e) => console.error(%q, e));\n",
			initName(name), wasm, "Failed to load "+wasm)
	}

	return b.String()
}

// Path returns where the script is written for outDir
func Path(outDir string) string {
	return filepath.Join(outDir, FileName)
}

func initName(artifact string) string {
	return "init_" + artifact
}
