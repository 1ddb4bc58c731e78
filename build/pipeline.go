package build

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/cargo-wasm/artifact"
	"github.com/wippyai/cargo-wasm/binaryen"
	"github.com/wippyai/cargo-wasm/bindgen"
	"github.com/wippyai/cargo-wasm/bootstrap"
	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/compiler"
	"github.com/wippyai/cargo-wasm/config"
	"github.com/wippyai/cargo-wasm/errors"
	"github.com/wippyai/cargo-wasm/metadata"
	"github.com/wippyai/cargo-wasm/platform"
	"github.com/wippyai/cargo-wasm/toolchain"
)

// optimizerDir is the optimizer installation root inside the target directory
const optimizerDir = "wasm-opt"

// Pipeline runs one build invocation. It is not reusable across invocations.
type Pipeline struct {
	Options config.Options
	// Root is the project directory holding Cargo.toml; empty means the
	// current directory.
	Root string

	// Runner executes every external process. Nil uses command.Exec bounded
	// by Options.ProcessTimeout.
	Runner     command.Runner
	HTTPClient *http.Client
	Platform   platform.Resolver
	Observer   Observer
	// Log overrides the package logger.
	Log *zap.Logger

	mu sync.Mutex
}

type installResult struct {
	path string
	err  error
}

// Run executes every stage and returns the report. The returned error is
// non-nil when discovery fails or when any later stage recorded a failure;
// the report is returned in the latter case too.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	opts := p.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.NewString()}
	log := p.logger().With(zap.String("run", report.RunID))
	runner := p.runner()

	if opts.OutDir != "" && !filepath.IsAbs(opts.OutDir) && p.Root != "" {
		opts.OutDir = filepath.Join(p.Root, opts.OutDir)
	}
	log.Debug("build options", zap.Stringer("options", opts))

	p.emit(Event{Stage: StageDiscover, Status: StatusStarted})
	disc := &metadata.Discoverer{Runner: runner, Log: log, Cargo: opts.Cargo}
	ws, err := disc.Discover(ctx, p.Root)
	if err != nil {
		p.emit(Event{Stage: StageDiscover, Status: StatusFailed, Err: err})
		return nil, err
	}
	report.Workspace = ws
	p.emit(Event{Stage: StageDiscover, Status: StatusDone})

	if len(ws.Packages) == 0 {
		log.Info("no packages depend on " + metadata.BindgenCrate + ", nothing to do")
		return report, nil
	}

	versions := toolchain.Distinct(ws.Versions())
	if len(versions) > 1 {
		if opts.StrictVersions {
			err := errors.VersionConflict(versions)
			p.emit(Event{Stage: StageDiscover, Status: StatusFailed, Err: err})
			return report, err
		}
		log.Warn("packages use different "+metadata.BindgenCrate+" versions",
			zap.Strings("versions", versions))
	}

	targetDir := ws.TargetDir
	installs := p.installAndCompile(ctx, runner, log, opts, ws, versions, report)

	if opts.Clean {
		log.Info("cleaning output directory", zap.String("out_dir", opts.OutDir))
		_ = os.RemoveAll(opts.OutDir)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		err = errors.IO(errors.PhaseBindgen, opts.OutDir, err)
		report.fail(err)
		return report, report.Err()
	}

	gen := &bindgen.Generator{Runner: runner, Log: log}
	for i := range report.Packages {
		res := &report.Packages[i]
		if res.Err != nil {
			p.emit(Event{Stage: StageBindgen, Subject: res.Package.Name, Status: StatusSkipped, Err: res.Err})
			continue
		}
		inst := installs[res.Package.BindgenVersion]
		if inst.err != nil {
			res.Err = inst.err
			p.emit(Event{Stage: StageBindgen, Subject: res.Package.Name, Status: StatusSkipped, Err: inst.err})
			continue
		}
		res.Tool = inst.path

		p.emit(Event{Stage: StageBindgen, Subject: res.Package.Name, Status: StatusStarted})
		out, err := gen.Generate(ctx, res.Package, res.Tool, res.Artifact, opts)
		if err != nil {
			log.Error("glue generation failed", zap.String("package", res.Package.Name), zap.Error(err))
			res.Err = err
			report.fail(err)
			p.emit(Event{Stage: StageBindgen, Subject: res.Package.Name, Status: StatusFailed, Err: err})
			continue
		}
		res.Outputs = out
		p.emit(Event{Stage: StageBindgen, Subject: res.Package.Name, Status: StatusDone})
	}

	if len(report.Failures) > 0 {
		log.Warn("skipping optimization and bootstrap after package failures",
			zap.Int("failures", len(report.Failures)))
		if opts.Optimize != nil {
			report.Skipped = append(report.Skipped, StageOptimize)
			p.emit(Event{Stage: StageOptimize, Status: StatusSkipped})
		}
		if opts.Target.EmitsBootstrap() {
			report.Skipped = append(report.Skipped, StageBootstrap)
			p.emit(Event{Stage: StageBootstrap, Status: StatusSkipped})
		}
		return report, report.Err()
	}

	if opts.Optimize != nil {
		if err := p.optimize(ctx, runner, log, opts, targetDir, report); err != nil {
			report.fail(err)
			if opts.Target.EmitsBootstrap() {
				report.Skipped = append(report.Skipped, StageBootstrap)
				p.emit(Event{Stage: StageBootstrap, Status: StatusSkipped})
			}
			return report, report.Err()
		}
	}

	if opts.Target.EmitsBootstrap() {
		if err := p.writeBootstrap(log, opts, ws.Packages, report); err != nil {
			report.fail(err)
		}
	}

	return report, report.Err()
}

// installAndCompile installs every distinct version on one worker goroutine
// while compiling packages on the caller's, then joins. Each version is
// installed exactly once, so the installer never races itself.
func (p *Pipeline) installAndCompile(ctx context.Context, runner command.Runner, log *zap.Logger,
	opts config.Options, ws *metadata.Workspace, versions []string, report *Report,
) map[string]installResult {
	installer := toolchain.NewInstaller(runner, ws.TargetDir)
	installer.Log = log
	installer.Cargo = opts.Cargo
	installer.Crate = opts.Bindgen.Crate
	installer.Binary = opts.Bindgen.Binary

	installs := make(map[string]installResult, len(versions))

	var g errgroup.Group
	g.Go(func() error {
		for _, v := range versions {
			p.emit(Event{Stage: StageInstall, Subject: v, Status: StatusStarted})
			path, err := installer.EnsureInstalled(ctx, v)
			if err != nil {
				log.Error("install failed", zap.String("version", v), zap.Error(err))
				p.emit(Event{Stage: StageInstall, Subject: v, Status: StatusFailed, Err: err})
			} else {
				p.emit(Event{Stage: StageInstall, Subject: v, Status: StatusDone})
			}
			installs[v] = installResult{path: path, err: err}
		}
		return nil
	})

	comp := &compiler.Compiler{Runner: runner, Log: log, Root: p.Root, TargetDir: ws.TargetDir}
	for _, pkg := range ws.Packages {
		res := PackageResult{Package: pkg}
		p.emit(Event{Stage: StageCompile, Subject: pkg.Name, Status: StatusStarted})
		wasm, err := comp.Compile(ctx, pkg, opts)
		if err != nil {
			log.Error("compile failed", zap.String("package", pkg.Name), zap.Error(err))
			res.Err = err
			report.fail(err)
			p.emit(Event{Stage: StageCompile, Subject: pkg.Name, Status: StatusFailed, Err: err})
		} else {
			res.Artifact = wasm
			p.emit(Event{Stage: StageCompile, Subject: pkg.Name, Status: StatusDone})
		}
		report.Packages = append(report.Packages, res)
	}

	_ = g.Wait()

	for _, v := range versions {
		if err := installs[v].err; err != nil {
			report.fail(err)
		}
	}
	return installs
}

// optimize fetches wasm-opt once, then rewrites each generated binary in turn
func (p *Pipeline) optimize(ctx context.Context, runner command.Runner, log *zap.Logger,
	opts config.Options, targetDir string, report *Report,
) error {
	fetcher := binaryen.NewFetcher(filepath.Join(targetDir, optimizerDir))
	fetcher.Client = p.HTTPClient
	fetcher.Log = log
	fetcher.Platform = p.Platform
	fetcher.Version = opts.Binaryen.Version
	fetcher.Arch = opts.Binaryen.Arch
	fetcher.BaseURL = opts.Binaryen.BaseURL
	fetcher.Timeout = opts.DownloadTimeout

	p.emit(Event{Stage: StageFetch, Subject: opts.Binaryen.Version, Status: StatusStarted})
	exe, err := fetcher.EnsureInstalled(ctx)
	if err != nil {
		log.Error("wasm-opt unavailable", zap.Error(err))
		p.emit(Event{Stage: StageFetch, Subject: opts.Binaryen.Version, Status: StatusFailed, Err: err})
		return err
	}
	p.emit(Event{Stage: StageFetch, Subject: opts.Binaryen.Version, Status: StatusDone})

	opt := &binaryen.Optimizer{Runner: runner, Log: log, Path: exe}
	for _, res := range report.Packages {
		wasm := res.Outputs.Wasm
		p.emit(Event{Stage: StageOptimize, Subject: res.Package.Name, Status: StatusStarted})
		size, err := opt.Run(ctx, wasm, opts.Optimize.Level, opts.ReferenceTypes)
		if err != nil {
			log.Error("wasm-opt failed", zap.String("path", wasm), zap.Error(err))
			p.emit(Event{Stage: StageOptimize, Subject: res.Package.Name, Status: StatusFailed, Err: err})
			return err
		}
		report.Sizes = append(report.Sizes, *size)
		p.emit(Event{Stage: StageOptimize, Subject: res.Package.Name, Status: StatusDone})

		info, err := artifact.Inspect(ctx, wasm)
		if err != nil {
			log.Warn("optimized module does not validate", zap.String("path", wasm), zap.Error(err))
			continue
		}
		log.Debug("optimized module",
			zap.String("path", wasm),
			zap.Int("exports", len(info.Exports)),
			zap.Int("imports", len(info.Imports)))
	}
	return nil
}

func (p *Pipeline) writeBootstrap(log *zap.Logger, opts config.Options, pkgs []metadata.Package, report *Report) error {
	path := bootstrap.Path(opts.OutDir)
	p.emit(Event{Stage: StageBootstrap, Status: StatusStarted})

	if err := os.WriteFile(path, []byte(bootstrap.Emit(pkgs, opts.OutDir)), 0o644); err != nil {
		err = errors.IO(errors.PhaseBootstrap, path, err)
		p.emit(Event{Stage: StageBootstrap, Status: StatusFailed, Err: err})
		return err
	}

	log.Info("wrote bootstrap script", zap.String("path", path))
	report.Bootstrap = path
	p.emit(Event{Stage: StageBootstrap, Status: StatusDone})
	return nil
}

func (p *Pipeline) emit(ev Event) {
	if p.Observer == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Observer(ev)
}

func (p *Pipeline) runner() command.Runner {
	if p.Runner != nil {
		return p.Runner
	}
	return &command.Exec{Timeout: p.Options.ProcessTimeout}
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Log != nil {
		return p.Log
	}
	return Logger()
}
