// Package binaryen fetches and runs wasm-opt, binaryen's size optimizer.
//
// Fetcher downloads a pinned binaryen release for the host platform and
// unpacks it under a local directory. An installation counts as present only
// when both the executable and an ".installed" marker exist; the marker is
// written last, by atomic rename, so an interrupted unpack is fetched again
// on the next run.
//
// Optimizer rewrites a .wasm file in place and reports its size before and
// after:
//
//	path, err := fetcher.EnsureInstalled(ctx)
//	opt := &binaryen.Optimizer{Runner: runner, Path: path}
//	report, err := opt.Run(ctx, "dist/js/app_bg.wasm", binaryen.LevelSize, false)
//	fmt.Printf("%s: %.1f%% smaller\n", report.Path, report.Reduction())
package binaryen
