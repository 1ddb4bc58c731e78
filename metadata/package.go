package metadata

import (
	"path/filepath"
	"strings"
)

// BindgenCrate is the library whose presence marks a package as needing glue
const BindgenCrate = "wasm-bindgen"

// Package is a workspace member that depends on wasm-bindgen
type Package struct {
	Name         string
	ID           string
	ManifestPath string
	// BindgenVersion is the resolved wasm-bindgen version, e.g. "0.2.68".
	BindgenVersion string
}

// Dir returns the directory holding the package manifest
func (p Package) Dir() string {
	return filepath.Dir(p.ManifestPath)
}

// ArtifactName returns the crate name as it appears in output file names
func (p Package) ArtifactName() string {
	return strings.ReplaceAll(p.Name, "-", "_")
}

// Workspace is the result of one discovery
type Workspace struct {
	Root      string
	TargetDir string
	Packages  []Package
}

// Versions returns the distinct wasm-bindgen versions in first-seen order
func (w *Workspace) Versions() []string {
	seen := make(map[string]struct{}, len(w.Packages))
	var out []string
	for _, p := range w.Packages {
		if _, ok := seen[p.BindgenVersion]; ok {
			continue
		}
		seen[p.BindgenVersion] = struct{}{}
		out = append(out, p.BindgenVersion)
	}
	return out
}
