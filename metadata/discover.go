package metadata

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/errors"
)

// Discoverer queries cargo for workspace metadata
type Discoverer struct {
	Runner command.Runner
	Log    *zap.Logger
	// Cargo is the cargo executable; empty means "cargo".
	Cargo string
}

// Discover runs the metadata query for the project rooted at root and returns
// the members that need bindings.
func (d *Discoverer) Discover(ctx context.Context, root string) (*Workspace, error) {
	cargo := d.Cargo
	if cargo == "" {
		cargo = "cargo"
	}

	args := []string{"metadata", "--format-version", "1"}
	if root != "" {
		args = append(args, "--manifest-path", filepath.Join(root, "Cargo.toml"))
	}

	res, err := d.Runner.Run(ctx, command.Command{Name: cargo, Args: args, Dir: root})
	if err != nil {
		return nil, errors.MetadataUnavailable("cargo metadata", err)
	}

	ws, err := Parse(res.Stdout)
	if err != nil {
		return nil, err
	}

	if d.Log != nil {
		d.Log.Debug("discovered workspace",
			zap.String("root", ws.Root),
			zap.String("target_dir", ws.TargetDir),
			zap.Int("packages", len(ws.Packages)))
	}
	return ws, nil
}

type pkgInfo struct {
	name         string
	version      string
	manifestPath string
	directDeps   []gjson.Result
}

// Parse extracts a Workspace from `cargo metadata --format-version 1` output.
func Parse(data []byte) (*Workspace, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.MetadataUnavailable("metadata output is not valid JSON", nil)
	}
	doc := gjson.ParseBytes(data)

	members := doc.Get("workspace_members")
	if !members.IsArray() {
		return nil, errors.MetadataUnavailable("metadata has no workspace_members", nil)
	}

	pkgs := make(map[string]pkgInfo)
	var bindgenVersions []string
	doc.Get("packages").ForEach(func(_, p gjson.Result) bool {
		info := pkgInfo{
			name:         p.Get("name").String(),
			version:      p.Get("version").String(),
			manifestPath: p.Get("manifest_path").String(),
			directDeps:   p.Get("dependencies").Array(),
		}
		pkgs[p.Get("id").String()] = info
		if info.name == BindgenCrate {
			bindgenVersions = append(bindgenVersions, info.version)
		}
		return true
	})

	graph, hasResolve := resolveGraph(doc)

	ws := &Workspace{
		Root:      doc.Get("workspace_root").String(),
		TargetDir: doc.Get("target_directory").String(),
	}
	if ws.TargetDir == "" && ws.Root != "" {
		ws.TargetDir = filepath.Join(ws.Root, "target")
	}

	for _, m := range members.Array() {
		id := m.String()
		info, ok := pkgs[id]
		if !ok {
			continue
		}

		var version string
		if hasResolve {
			version = findTransitive(id, graph, pkgs)
		} else {
			version = findDirect(info, bindgenVersions)
		}
		if version == "" {
			continue
		}

		ws.Packages = append(ws.Packages, Package{
			Name:           info.name,
			ID:             id,
			ManifestPath:   info.manifestPath,
			BindgenVersion: version,
		})
	}

	return ws, nil
}

func resolveGraph(doc gjson.Result) (map[string][]string, bool) {
	nodes := doc.Get("resolve.nodes")
	if !nodes.IsArray() {
		return nil, false
	}

	graph := make(map[string][]string)
	nodes.ForEach(func(_, n gjson.Result) bool {
		var deps []string
		if detailed := n.Get("deps"); detailed.IsArray() {
			for _, d := range detailed.Array() {
				if linksTarget(d.Get("dep_kinds")) {
					deps = append(deps, d.Get("pkg").String())
				}
			}
		} else {
			for _, d := range n.Get("dependencies").Array() {
				deps = append(deps, d.String())
			}
		}
		graph[n.Get("id").String()] = deps
		return true
	})
	return graph, true
}

// linksTarget reports whether a resolved edge ends up in the wasm artifact.
// Dev and build dependencies never do; a missing dep_kinds list is treated as
// a normal dependency.
func linksTarget(kinds gjson.Result) bool {
	if !kinds.IsArray() || len(kinds.Array()) == 0 {
		return true
	}
	for _, k := range kinds.Array() {
		if isNormalKind(k.Get("kind").String()) {
			return true
		}
	}
	return false
}

// isNormalKind maps cargo's null / "normal" dependency kind
func isNormalKind(kind string) bool {
	return kind == "" || kind == "normal"
}

// findTransitive walks the resolve graph breadth-first from id and returns the
// version of the nearest wasm-bindgen package.
func findTransitive(id string, graph map[string][]string, pkgs map[string]pkgInfo) string {
	visited := map[string]bool{id: true}
	queue := []string{id}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, dep := range graph[cur] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if info, ok := pkgs[dep]; ok && info.name == BindgenCrate {
				return info.version
			}
			queue = append(queue, dep)
		}
	}
	return ""
}

// findDirect is used when metadata was produced with --no-deps: only direct
// dependencies are visible, and the version comes from the package list when
// cargo resolved one, otherwise from the requirement itself.
func findDirect(info pkgInfo, resolved []string) string {
	for _, d := range info.directDeps {
		if d.Get("name").String() != BindgenCrate || !isNormalKind(d.Get("kind").String()) {
			continue
		}
		if len(resolved) > 0 {
			return resolved[0]
		}
		return strings.TrimLeft(d.Get("req").String(), "=^~ ")
	}
	return ""
}
