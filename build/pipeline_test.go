package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/cargo-wasm/binaryen"
	"github.com/wippyai/cargo-wasm/bootstrap"
	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/compiler"
	"github.com/wippyai/cargo-wasm/config"
	cwerrors "github.com/wippyai/cargo-wasm/errors"
	"github.com/wippyai/cargo-wasm/metadata"
	"github.com/wippyai/cargo-wasm/platform"
	"github.com/wippyai/cargo-wasm/toolchain"
)

// emptyModule is the smallest valid wasm binary: magic and version.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

type member struct {
	name    string
	bindgen string
}

// metadataJSON renders `cargo metadata` output for a workspace whose members
// depend directly on the given wasm-bindgen versions.
func metadataJSON(t *testing.T, root string, members []member) []byte {
	t.Helper()

	var (
		packages []map[string]any
		ids      []string
		nodes    []map[string]any
	)
	bindgenIDs := map[string]string{}
	for _, m := range members {
		if m.bindgen == "" {
			continue
		}
		if _, ok := bindgenIDs[m.bindgen]; ok {
			continue
		}
		id := fmt.Sprintf("wasm-bindgen %s (registry+https://github.com/rust-lang/crates.io-index)", m.bindgen)
		bindgenIDs[m.bindgen] = id
		packages = append(packages, map[string]any{
			"name": "wasm-bindgen", "version": m.bindgen, "id": id,
			"manifest_path": "/registry/wasm-bindgen-" + m.bindgen + "/Cargo.toml",
			"dependencies":  []any{},
		})
		nodes = append(nodes, map[string]any{"id": id, "dependencies": []string{}})
	}

	for _, m := range members {
		id := fmt.Sprintf("%s 0.1.0 (path+file://%s/%s)", m.name, root, m.name)
		ids = append(ids, id)
		var deps []string
		if m.bindgen != "" {
			deps = append(deps, bindgenIDs[m.bindgen])
		}
		packages = append(packages, map[string]any{
			"name": m.name, "version": "0.1.0", "id": id,
			"manifest_path": filepath.Join(root, m.name, "Cargo.toml"),
			"dependencies":  []any{},
		})
		nodes = append(nodes, map[string]any{"id": id, "dependencies": deps})
	}

	data, err := json.Marshal(map[string]any{
		"packages":          packages,
		"workspace_members": ids,
		"resolve":           map[string]any{"nodes": nodes},
		"workspace_root":    root,
		"target_directory":  filepath.Join(root, "target"),
	})
	require.NoError(t, err)
	return data
}

// fakeTools stands in for cargo, wasm-bindgen and wasm-opt. It writes the
// files each tool would produce and keeps a log of what ran.
type fakeTools struct {
	t        *testing.T
	root     string
	metadata []byte

	failCompile map[string]bool
	failBindgen map[string]bool
	failInstall map[string]bool
	failOpt     bool

	mu  sync.Mutex
	log []string
}

func (f *fakeTools) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, s)
}

func (f *fakeTools) entries(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.log {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTools) index(entry string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Index(f.log, entry)
}

func (f *fakeTools) runner() *command.Recorder {
	return &command.Recorder{Handler: f.handle}
}

func (f *fakeTools) handle(_ context.Context, c command.Command) (*command.Result, error) {
	switch {
	case c.Name == "cargo" && c.Args[0] == "metadata":
		return &command.Result{Stdout: f.metadata}, nil

	case c.Name == "cargo" && c.Args[0] == "install":
		version := c.Args[4]
		f.record("install " + version)
		if f.failInstall[version] {
			return nil, &command.ExitError{Command: c.String(), ExitCode: 101, Stderr: "no matching package"}
		}
		bin := filepath.Join(c.Args[2], "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			return nil, err
		}
		return &command.Result{}, os.WriteFile(filepath.Join(bin, toolchain.DefaultBinary), nil, 0o755)

	case c.Name == "cargo" && c.Args[0] == "build":
		name := c.Args[2]
		f.record("compile " + name)
		if f.failCompile[name] {
			return nil, &command.ExitError{Command: c.String(), ExitCode: 101, Stderr: "error[E0425]: cannot find value"}
		}
		mode := "debug"
		if slices.Contains(c.Args, "--release") {
			mode = "release"
		}
		pkg := metadata.Package{Name: name}
		path := compiler.ArtifactPath(filepath.Join(f.root, "target"), mode, pkg)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return &command.Result{}, os.WriteFile(path, emptyModule, 0o644)

	case filepath.Base(c.Name) == toolchain.DefaultBinary:
		name := strings.TrimSuffix(filepath.Base(c.Args[0]), ".wasm")
		f.record("bindgen " + name)
		if f.failBindgen[name] {
			return nil, &command.ExitError{Command: c.String(), ExitCode: 1, Stderr: "unsupported section"}
		}
		out := c.Args[len(c.Args)-1]
		files := map[string][]byte{
			name + ".js":      []byte("export default function init() {}\n"),
			name + "_bg.wasm": append(slices.Clone(emptyModule), make([]byte, 64)...),
		}
		if !slices.Contains(c.Args, "--no-typescript") {
			files[name+".d.ts"] = []byte("export default function init(): Promise<void>;\n")
		}
		for file, data := range files {
			if err := os.WriteFile(filepath.Join(out, file), data, 0o644); err != nil {
				return nil, err
			}
		}
		return &command.Result{}, nil

	case filepath.Base(c.Name) == "wasm-opt":
		f.record("optimize " + filepath.Base(c.Args[0]))
		if f.failOpt {
			return nil, &command.ExitError{Command: c.String(), ExitCode: 1, Stderr: "Fatal: error in validating input"}
		}
		return &command.Result{}, os.WriteFile(c.Args[2], emptyModule, 0o644)
	}

	f.t.Errorf("unexpected command %s", c)
	return nil, errors.New("unexpected command")
}

func newFake(t *testing.T, members ...member) *fakeTools {
	t.Helper()
	root := t.TempDir()
	return &fakeTools{
		t:        t,
		root:     root,
		metadata: metadataJSON(t, root, members),
	}
}

func newPipeline(f *fakeTools, opts config.Options) (*Pipeline, *command.Recorder) {
	rec := f.runner()
	return &Pipeline{
		Options: opts,
		Root:    f.root,
		Runner:  rec,
	}, rec
}

// preinstallOptimizer lays out a completed wasm-opt installation so no
// download is attempted.
func preinstallOptimizer(t *testing.T, root string) {
	t.Helper()
	home := filepath.Join(root, "target", optimizerDir, "binaryen-"+binaryen.DefaultVersion)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", "wasm-opt"), nil, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, binaryen.MarkerFile), nil, 0o644))
}

func TestRun_NoPackagesDoesNothing(t *testing.T) {
	f := newFake(t, member{name: "tools"})
	p, rec := newPipeline(f, config.Defaults())

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Packages)
	require.Len(t, rec.Calls(), 1, "only the metadata query runs")
	require.NoDirExists(t, filepath.Join(f.root, config.DefaultOutDir))
}

func TestRun_InstallsEachVersionOnce(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.68"},
		member{name: "c", bindgen: "0.2.67"},
	)
	p, _ := newPipeline(f, config.Defaults())

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Packages, 3)
	require.ElementsMatch(t, []string{"install 0.2.67", "install 0.2.68"}, f.entries("install "))

	for _, res := range report.Packages {
		require.True(t, res.OK())
		require.Equal(t,
			filepath.Join(f.root, "target", toolchain.DefaultCrate, res.Package.BindgenVersion, "bin", toolchain.DefaultBinary),
			res.Tool)
	}
}

func TestRun_InstallsFinishBeforeGlue(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.67"},
	)
	p, _ := newPipeline(f, config.Defaults())

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	firstGlue := f.index("bindgen a")
	require.GreaterOrEqual(t, firstGlue, 0)
	for _, e := range append(f.entries("install "), f.entries("compile ")...) {
		require.Less(t, f.index(e), firstGlue, "%s must precede glue generation", e)
	}
}

func TestRun_GeneratesGlue(t *testing.T) {
	tests := []struct {
		name       string
		typescript bool
	}{
		{"without typescript", false},
		{"with typescript", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake(t, member{name: "my-app", bindgen: "0.2.68"})
			opts := config.Defaults()
			opts.TypeScript = tt.typescript
			p, _ := newPipeline(f, opts)

			report, err := p.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, report.Packages, 1)

			out := filepath.Join(f.root, config.DefaultOutDir)
			res := report.Packages[0]
			require.Equal(t, filepath.Join(out, "my_app.js"), res.Outputs.JS)
			require.FileExists(t, res.Outputs.JS)
			require.FileExists(t, res.Outputs.Wasm)
			if tt.typescript {
				require.FileExists(t, res.Outputs.DTS)
			} else {
				require.Empty(t, res.Outputs.DTS)
				require.NoFileExists(t, filepath.Join(out, "my_app.d.ts"))
			}
			require.Empty(t, report.Bootstrap, "web target writes no bootstrap")
		})
	}
}

func TestRun_CleanRemovesStaleOutput(t *testing.T) {
	f := newFake(t, member{name: "a", bindgen: "0.2.68"})
	out := filepath.Join(f.root, config.DefaultOutDir)
	require.NoError(t, os.MkdirAll(out, 0o755))
	stale := filepath.Join(out, "old_bg.wasm")
	require.NoError(t, os.WriteFile(stale, emptyModule, 0o644))

	opts := config.Defaults()
	opts.Clean = true
	p, _ := newPipeline(f, opts)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoFileExists(t, stale)
	require.FileExists(t, filepath.Join(out, "a.js"))
}

func TestRun_KeepsOutputWithoutClean(t *testing.T) {
	f := newFake(t, member{name: "a", bindgen: "0.2.68"})
	out := filepath.Join(f.root, config.DefaultOutDir)
	require.NoError(t, os.MkdirAll(out, 0o755))
	kept := filepath.Join(out, "index.html")
	require.NoError(t, os.WriteFile(kept, []byte("<html></html>"), 0o644))

	p, _ := newPipeline(f, config.Defaults())
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, kept)
}

func TestRun_CompileFailureIsIsolated(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.68"},
	)
	f.failCompile = map[string]bool{"a": true}
	preinstallOptimizer(t, f.root)

	opts := config.Defaults()
	opts.Target = config.TargetBundler
	opts.Optimize = &config.OptimizeOptions{}
	p, _ := newPipeline(f, opts)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, cwerrors.ErrCompileFailed)
	require.Contains(t, err.Error(), "cannot find value", "process output is not masked")

	require.Equal(t, []string{"compile a", "compile b"}, f.entries("compile "))
	require.Equal(t, []string{"bindgen b"}, f.entries("bindgen "))
	require.Empty(t, f.entries("optimize "))

	require.False(t, report.Packages[0].OK())
	require.True(t, report.Packages[1].OK())
	require.Equal(t, []Stage{StageOptimize, StageBootstrap}, report.Skipped)
	require.NoFileExists(t, bootstrap.Path(filepath.Join(f.root, config.DefaultOutDir)))
}

func TestRun_GlueFailureSkipsOptimizeAndBootstrap(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.68"},
	)
	f.failBindgen = map[string]bool{"a": true}
	preinstallOptimizer(t, f.root)

	opts := config.Defaults()
	opts.Target = config.TargetRollup
	opts.Optimize = &config.OptimizeOptions{}
	p, _ := newPipeline(f, opts)

	report, err := p.Run(context.Background())
	require.ErrorIs(t, err, cwerrors.ErrGlueGenerationFailed)
	require.Equal(t, []string{"bindgen a", "bindgen b"}, f.entries("bindgen "))
	require.Empty(t, f.entries("optimize "))
	require.Empty(t, report.Bootstrap)
	require.Len(t, report.Failures, 1)
}

func TestRun_InstallFailureFailsItsPackages(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.67"},
	)
	f.failInstall = map[string]bool{"0.2.67": true}
	p, _ := newPipeline(f, config.Defaults())

	report, err := p.Run(context.Background())
	require.ErrorIs(t, err, cwerrors.ErrInstallFailed)
	require.Equal(t, []string{"bindgen a"}, f.entries("bindgen "))
	require.True(t, report.Packages[0].OK())
	require.ErrorIs(t, report.Packages[1].Err, cwerrors.ErrInstallFailed)
}

func TestRun_BundlerWritesBootstrap(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.68"},
	)
	opts := config.Defaults()
	opts.Target = config.TargetBundler
	p, rec := newPipeline(f, opts)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	out := filepath.Join(f.root, config.DefaultOutDir)
	require.Equal(t, bootstrap.Path(out), report.Bootstrap)

	data, err := os.ReadFile(report.Bootstrap)
	require.NoError(t, err)
	script := string(data)
	importA := strings.Index(script, `import init_a from "./a.js";`)
	importB := strings.Index(script, `import init_b from "./b.js";`)
	initA := strings.Index(script, `init_a("a_bg.wasm")`)
	initB := strings.Index(script, `init_b("b_bg.wasm")`)
	require.True(t, importA >= 0 && importA < importB && importB < initA && initA < initB, script)

	for _, c := range rec.Calls() {
		if filepath.Base(c.Name) == toolchain.DefaultBinary {
			require.Equal(t, "bundler", c.Args[2])
		}
	}
}

func TestRun_Optimizes(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.68"},
	)
	preinstallOptimizer(t, f.root)

	opts := config.Defaults()
	opts.Optimize = &config.OptimizeOptions{Level: binaryen.LevelSize}
	opts.ReferenceTypes = true
	p, rec := newPipeline(f, opts)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"optimize a_bg.wasm", "optimize b_bg.wasm"}, f.entries("optimize "))

	require.Len(t, report.Sizes, 2)
	for _, s := range report.Sizes {
		require.Equal(t, binaryen.LevelSize, s.Level)
		require.Greater(t, s.Original, s.Final)
	}

	var optCalls []command.Command
	for _, c := range rec.Calls() {
		if filepath.Base(c.Name) == "wasm-opt" {
			optCalls = append(optCalls, c)
		}
	}
	require.Len(t, optCalls, 2)
	require.Contains(t, optCalls[0].Args, "--enable-reference-types")
	require.Equal(t, "-Os", optCalls[0].Args[len(optCalls[0].Args)-1])
}

func TestRun_OptimizerFailureSkipsBootstrap(t *testing.T) {
	f := newFake(t, member{name: "a", bindgen: "0.2.68"})
	f.failOpt = true
	preinstallOptimizer(t, f.root)

	opts := config.Defaults()
	opts.Target = config.TargetBundler
	opts.Optimize = &config.OptimizeOptions{}
	p, _ := newPipeline(f, opts)

	report, err := p.Run(context.Background())
	require.ErrorIs(t, err, cwerrors.ErrOptimizeFailed)
	require.Equal(t, []Stage{StageBootstrap}, report.Skipped)
	require.Empty(t, report.Bootstrap)
}

func TestRun_UnsupportedPlatformFailsOptimize(t *testing.T) {
	f := newFake(t, member{name: "a", bindgen: "0.2.68"})
	opts := config.Defaults()
	opts.Optimize = &config.OptimizeOptions{}
	opts.Binaryen.BaseURL = "http://127.0.0.1:1"
	p, _ := newPipeline(f, opts)
	p.Platform = platform.Resolver{OS: "linux", Arch: "386"}

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, cwerrors.ErrUnsupportedPlatform)
	require.Empty(t, f.entries("optimize "))
}

func TestRun_StrictVersions(t *testing.T) {
	f := newFake(t,
		member{name: "a", bindgen: "0.2.68"},
		member{name: "b", bindgen: "0.2.67"},
	)
	opts := config.Defaults()
	opts.StrictVersions = true
	p, rec := newPipeline(f, opts)

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, cwerrors.ErrVersionConflict)
	require.Len(t, rec.Calls(), 1, "nothing runs after the conflict")
}

func TestRun_MetadataFailureAborts(t *testing.T) {
	rec := &command.Recorder{
		Handler: func(_ context.Context, c command.Command) (*command.Result, error) {
			return nil, &command.ExitError{Command: c.String(), ExitCode: 101, Stderr: "could not find `Cargo.toml`"}
		},
	}
	p := &Pipeline{Options: config.Defaults(), Root: t.TempDir(), Runner: rec}

	report, err := p.Run(context.Background())
	require.Nil(t, report)
	require.ErrorIs(t, err, cwerrors.ErrMetadataUnavailable)
	require.Contains(t, err.Error(), "Cargo.toml")
	require.Len(t, rec.Calls(), 1)
}

func TestRun_InvalidOptions(t *testing.T) {
	opts := config.Defaults()
	opts.OutDir = ""
	p := &Pipeline{Options: opts, Runner: &command.Recorder{}}

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, cwerrors.ErrInvalidInput)
}

func TestRun_EventsAreOrderedPerPackage(t *testing.T) {
	f := newFake(t, member{name: "a", bindgen: "0.2.68"})
	opts := config.Defaults()
	opts.Target = config.TargetBundler
	p, _ := newPipeline(f, opts)

	var events []Event
	p.Observer = func(ev Event) { events = append(events, ev) }

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	stageDone := func(stage Stage) int {
		return slices.IndexFunc(events, func(ev Event) bool {
			return ev.Stage == stage && ev.Status == StatusDone
		})
	}
	require.Less(t, stageDone(StageDiscover), stageDone(StageCompile))
	require.Less(t, stageDone(StageInstall), stageDone(StageBindgen))
	require.Less(t, stageDone(StageCompile), stageDone(StageBindgen))
	require.Less(t, stageDone(StageBindgen), stageDone(StageBootstrap))
}

func TestReport_Err(t *testing.T) {
	r := &Report{}
	require.NoError(t, r.Err())

	r.fail(cwerrors.CompileFailed("a", errors.New("exit status 101")))
	r.fail(cwerrors.GlueGenerationFailed("b", errors.New("exit status 1")))
	err := r.Err()
	require.ErrorIs(t, err, cwerrors.ErrCompileFailed)
	require.ErrorIs(t, err, cwerrors.ErrGlueGenerationFailed)
}
