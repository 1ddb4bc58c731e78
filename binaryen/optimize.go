package binaryen

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/cargo-wasm/command"
	"github.com/wippyai/cargo-wasm/errors"
)

// SizeReport describes one optimizer pass over an artifact
type SizeReport struct {
	Path     string
	Level    Level
	Original uint64
	Final    uint64
}

// Reduction returns the size reduction in percent of the original size.
// It is negative when the optimizer made the file larger.
func (r SizeReport) Reduction() float64 {
	if r.Original == 0 {
		return 0
	}
	return (float64(r.Original) - float64(r.Final)) / float64(r.Original) * 100
}

// Saved returns the number of bytes removed, negative on growth
func (r SizeReport) Saved() int64 {
	return int64(r.Original) - int64(r.Final)
}

// Optimizer runs wasm-opt over artifacts in place
type Optimizer struct {
	Runner command.Runner
	Log    *zap.Logger
	// Path is the wasm-opt executable.
	Path string
}

// Run optimizes wasmPath in place. A failed run leaves the file as the
// optimizer left it.
func (o *Optimizer) Run(ctx context.Context, wasmPath string, level Level, referenceTypes bool) (*SizeReport, error) {
	before, err := os.Stat(wasmPath)
	if err != nil {
		return nil, errors.OptimizeFailed(wasmPath, err)
	}

	args := []string{wasmPath, "--output", wasmPath}
	if referenceTypes {
		args = append(args, "--enable-reference-types")
	}
	args = append(args, level.Flag())

	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("running wasm-opt", zap.String("path", wasmPath), zap.Stringer("level", level))

	if _, err := o.Runner.Run(ctx, command.Command{Name: o.Path, Args: args}); err != nil {
		return nil, errors.OptimizeFailed(wasmPath, err)
	}

	after, err := os.Stat(wasmPath)
	if err != nil {
		return nil, errors.OptimizeFailed(wasmPath, err)
	}

	report := &SizeReport{
		Path:     wasmPath,
		Level:    level,
		Original: uint64(before.Size()),
		Final:    uint64(after.Size()),
	}
	log.Info("wasm-opt finished",
		zap.String("path", wasmPath),
		zap.Uint64("original_bytes", report.Original),
		zap.Uint64("final_bytes", report.Final),
		zap.Float64("reduction_pct", report.Reduction()))
	return report, nil
}
