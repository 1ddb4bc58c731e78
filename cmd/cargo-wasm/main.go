// Command cargo-wasm builds every wasm-bindgen package in a cargo workspace
// and writes the JavaScript glue into one output directory.
//
// It is normally invoked by cargo as `cargo wasm build [flags]`.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/cargo-wasm/binaryen"
	"github.com/wippyai/cargo-wasm/build"
	"github.com/wippyai/cargo-wasm/config"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr))
}

func run(args []string, lookup config.LookupFunc, stdout, stderr io.Writer) int {
	// cargo passes the subcommand name through as the first argument
	if len(args) > 0 && args[0] == "wasm" {
		args = args[1:]
	}

	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
		usage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}
	if args[0] != "build" {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		usage(stderr)
		return exitUsage
	}

	inv, err := parseBuild(args[1:], lookup, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, inv, stdout, stderr)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cargo wasm build [flags]")
	fmt.Fprintln(w, "       cargo wasm build -target bundler -wasm-opt -Oz")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run `cargo wasm build -h` for the list of flags.")
}

// invocation is a parsed build command line
type invocation struct {
	opts     config.Options
	root     string
	verbose  bool
	progress bool
}

// parseBuild resolves options from defaults, the project config file, the
// environment and finally the flags that were given explicitly.
func parseBuild(args []string, lookup config.LookupFunc, stderr io.Writer) (*invocation, error) {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		root           = fs.String("root", ".", "Project directory containing Cargo.toml")
		configPath     = fs.String("config", "", "Config file (default <root>/"+config.FileName+")")
		release        = fs.Bool("release", false, "Build in release mode")
		target         = fs.String("target", "", "Output style: web (default), bundler, rollup")
		outDir         = fs.String("out-dir", "", "Output directory for generated glue (default "+config.DefaultOutDir+")")
		typescript     = fs.Bool("typescript", false, "Generate TypeScript definitions")
		clean          = fs.Bool("clean", false, "Remove the output directory before building")
		weakRefs       = fs.Bool("weak-refs", false, "Enable weak references in generated glue")
		referenceTypes = fs.Bool("reference-types", false, "Enable reference types")
		noDemangle     = fs.Bool("no-demangle", false, "Do not demangle Rust symbol names")
		wasmOpt        = fs.Bool("wasm-opt", false, "Optimize generated binaries with wasm-opt")
		strict         = fs.Bool("strict-versions", false, "Fail when packages need different wasm-bindgen versions")
		quiet          = fs.Bool("quiet", false, "Only print warnings and errors")
		verbose        = fs.Bool("verbose", false, "Print debug output")
		progress       = fs.Bool("progress", false, "Show a progress view when attached to a terminal")
		levels         binaryen.LevelFlags
	)
	fs.BoolVar(&levels.O, "O", false, "wasm-opt default optimization")
	fs.BoolVar(&levels.O0, "O0", false, "wasm-opt: no optimization")
	fs.BoolVar(&levels.O1, "O1", false, "wasm-opt: quick optimization")
	fs.BoolVar(&levels.O2, "O2", false, "wasm-opt: most optimizations")
	fs.BoolVar(&levels.O3, "O3", false, "wasm-opt: all optimizations, favouring speed")
	fs.BoolVar(&levels.O4, "O4", false, "wasm-opt: -O3 plus flattening")
	fs.BoolVar(&levels.Os, "Os", false, "wasm-opt: optimize for size")
	fs.BoolVar(&levels.Oz, "Oz", false, "wasm-opt: optimize aggressively for size")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	path := *configPath
	if path == "" {
		path = filepath.Join(*root, config.FileName)
	}
	opts := config.Defaults()
	if err := config.LoadFile(path, &opts); err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(&opts, lookup); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["target"] {
		t, err := config.ParseTarget(*target)
		if err != nil {
			return nil, err
		}
		opts.Target = t
	}
	if set["out-dir"] {
		opts.OutDir = *outDir
	}
	overlay := []struct {
		name string
		dst  *bool
		val  bool
	}{
		{"release", &opts.Release, *release},
		{"typescript", &opts.TypeScript, *typescript},
		{"clean", &opts.Clean, *clean},
		{"weak-refs", &opts.WeakRefs, *weakRefs},
		{"reference-types", &opts.ReferenceTypes, *referenceTypes},
		{"no-demangle", &opts.NoDemangle, *noDemangle},
		{"strict-versions", &opts.StrictVersions, *strict},
		{"quiet", &opts.Quiet, *quiet},
	}
	for _, o := range overlay {
		if set[o.name] {
			*o.dst = o.val
		}
	}

	levelSet := false
	for _, name := range []string{"O", "O0", "O1", "O2", "O3", "O4", "Os", "Oz"} {
		levelSet = levelSet || set[name]
	}
	switch {
	case set["wasm-opt"] && !*wasmOpt:
		opts.Optimize = nil
	case levelSet:
		opts.Optimize = &config.OptimizeOptions{Level: levels.Level()}
	case *wasmOpt && opts.Optimize == nil:
		opts.Optimize = &config.OptimizeOptions{}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &invocation{
		opts:     opts,
		root:     *root,
		verbose:  *verbose,
		progress: *progress,
	}, nil
}

func newLogger(w io.Writer, quiet, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	switch {
	case verbose:
		level = zapcore.DebugLevel
	case quiet:
		level = zapcore.WarnLevel
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), level)
	return zap.New(core)
}

func execute(ctx context.Context, inv *invocation, stdout, stderr io.Writer) int {
	tty := isTerminal(stdout)
	showProgress := inv.progress && tty && !inv.opts.Quiet

	var logOut io.Writer = stderr
	if showProgress {
		// the progress view owns the terminal; only surface problems
		logOut = io.Discard
	}
	log := newLogger(logOut, inv.opts.Quiet, inv.verbose)
	defer func() { _ = log.Sync() }()
	build.SetLogger(log)

	p := &build.Pipeline{Options: inv.opts, Root: inv.root}

	var (
		report *build.Report
		err    error
	)
	if showProgress {
		report, err = runWithProgress(ctx, p)
	} else {
		report, err = p.Run(ctx)
	}

	if report != nil && !inv.opts.Quiet {
		fmt.Fprint(stdout, renderReport(report, tty))
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
