// Package command runs the external tools the build pipeline drives: cargo,
// the wasm-bindgen CLI and wasm-opt.
//
// Stages depend on the Runner interface rather than os/exec so the pipeline
// can be exercised without a Rust toolchain:
//
//	var r command.Runner = &command.Exec{Timeout: 10 * time.Minute}
//	res, err := r.Run(ctx, command.Command{
//		Name: "cargo",
//		Args: []string{"build", "--target", "wasm32-unknown-unknown"},
//		Dir:  projectRoot,
//	})
//
// A non-zero exit is reported as *ExitError, which keeps the exit code and the
// tail of stderr so callers can surface the tool's own message.
package command
