package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	cwerrors "github.com/wippyai/cargo-wasm/errors"
)

// exportsAnswer is a module exporting `answer: () -> i32` returning 42.
var exportsAnswer = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic + version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f, // type: () -> i32
	0x03, 0x02, 0x01, 0x00, // func 0 has type 0
	0x07, 0x0a, 0x01, 0x06, 'a', 'n', 's', 'w', 'e', 'r', 0x00, 0x00, // export "answer"
	0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b, // i32.const 42; end
}

// importsLog is a module importing `env.log: (i32) -> ()`.
var importsLog = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x05, 0x01, 0x60, 0x01, 0x7f, 0x00, // type: (i32) -> ()
	0x02, 0x0b, 0x01, 0x03, 'e', 'n', 'v', 0x03, 'l', 'o', 'g', 0x00, 0x00, // import env.log
}

func writeWasm(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app_bg.wasm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInspect(t *testing.T) {
	info, err := Inspect(context.Background(), writeWasm(t, exportsAnswer))
	require.NoError(t, err)
	require.Equal(t, []string{"answer"}, info.Exports)
	require.Empty(t, info.Imports)
	require.Equal(t, int64(len(exportsAnswer)), info.Size)
}

func TestInspect_Imports(t *testing.T) {
	info, err := Inspect(context.Background(), writeWasm(t, importsLog))
	require.NoError(t, err)
	require.Equal(t, []string{"env.log"}, info.Imports)
	require.Empty(t, info.Exports)
}

func TestInspect_Invalid(t *testing.T) {
	tests := map[string][]byte{
		"not wasm":  []byte("<html></html>"),
		"truncated": exportsAnswer[:20],
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Inspect(context.Background(), writeWasm(t, data))
			require.ErrorIs(t, err, cwerrors.ErrVerifyFailed)
		})
	}
}

func TestInspect_Missing(t *testing.T) {
	_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"))
	require.ErrorIs(t, err, cwerrors.ErrVerifyFailed)
}
