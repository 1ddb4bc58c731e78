// Package artifact inspects built wasm binaries.
//
// Inspect compiles a module with wazero's interpreter, without instantiating
// it, to confirm an artifact rewritten by wasm-opt still decodes and validates,
// and to report what it imports and exports.
package artifact

import (
	"context"
	"os"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/cargo-wasm/errors"
)

// Info summarizes a compiled module
type Info struct {
	Path    string
	Exports []string
	Imports []string
	Size    int64
	// Memories is the number of exported memories.
	Memories int
}

// Inspect reads and validates the module at path
func Inspect(ctx context.Context, path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.VerifyFailed(path, err)
	}

	cfg := wazero.NewRuntimeConfigInterpreter().WithCoreFeatures(api.CoreFeaturesV2)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.VerifyFailed(path, err)
	}
	defer compiled.Close(ctx)

	info := &Info{
		Path:     path,
		Size:     int64(len(data)),
		Memories: len(compiled.ExportedMemories()),
	}
	for name := range compiled.ExportedFunctions() {
		info.Exports = append(info.Exports, name)
	}
	sort.Strings(info.Exports)

	for _, fn := range compiled.ImportedFunctions() {
		mod, name, _ := fn.Import()
		info.Imports = append(info.Imports, mod+"."+name)
	}
	sort.Strings(info.Imports)

	return info, nil
}
