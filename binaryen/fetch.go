package binaryen

import (
	"archive/tar"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/wippyai/cargo-wasm/errors"
	"github.com/wippyai/cargo-wasm/platform"
)

const (
	DefaultVersion = "version_97"
	DefaultArch    = "x86_64"
	DefaultBaseURL = "https://github.com/WebAssembly/binaryen/releases/download"

	// MarkerFile is written once an archive has been fully unpacked.
	MarkerFile = ".installed"
	// downloadAttempts is one request plus one silent retry.
	downloadAttempts = 2
)

// Fetcher ensures a pinned wasm-opt is available locally
type Fetcher struct {
	Client   *http.Client
	Log      *zap.Logger
	Platform platform.Resolver
	// Dir receives the unpacked archive, e.g. target/wasm-opt.
	Dir     string
	Version string
	Arch    string
	BaseURL string
	// Timeout bounds the whole download; zero means no limit.
	Timeout time.Duration
}

// NewFetcher returns a Fetcher for the default pinned release
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		Dir:      dir,
		Version:  DefaultVersion,
		Arch:     DefaultArch,
		BaseURL:  DefaultBaseURL,
		Platform: platform.Host(),
	}
}

// Home returns the directory the release archive unpacks into
func (f *Fetcher) Home() string {
	return filepath.Join(f.Dir, "binaryen-"+f.Version)
}

// Path returns the wasm-opt executable path
func (f *Fetcher) Path() string {
	return filepath.Join(f.Home(), "bin", "wasm-opt"+f.exeSuffix())
}

// Installed reports whether a completed installation exists
func (f *Fetcher) Installed() bool {
	if _, err := os.Stat(f.Path()); err != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(f.Home(), MarkerFile))
	return err == nil
}

// URL returns the release archive URL for p
func (f *Fetcher) URL(p platform.Platform) string {
	name := fmt.Sprintf("binaryen-%s-%s-%s.tar.gz", f.Version, f.Arch, p)
	return strings.TrimSuffix(f.BaseURL, "/") + "/" + f.Version + "/" + name
}

// EnsureInstalled returns the wasm-opt path, downloading and unpacking the
// release archive first when no completed installation exists.
func (f *Fetcher) EnsureInstalled(ctx context.Context) (string, error) {
	path := f.Path()
	if f.Installed() {
		f.logger().Debug("wasm-opt already installed", zap.String("path", path))
		return path, nil
	}

	p, err := f.Platform.Resolve()
	if err != nil {
		return "", err
	}

	url := f.URL(p)
	f.logger().Info("downloading wasm-opt", zap.String("url", url))

	data, err := f.download(ctx, url)
	if err != nil {
		return "", errors.DownloadFailed(url, err)
	}

	if err := Extract(bytes.NewReader(data), f.Dir); err != nil {
		return "", errors.ExtractFailed(f.Dir, err)
	}

	if _, err := os.Stat(path); err != nil {
		return "", errors.New(errors.PhaseFetch, errors.KindExtractFailed).
			Path(path).
			Detail("archive does not contain wasm-opt").
			Build()
	}

	if err := writeMarker(f.Home(), url); err != nil {
		return "", errors.ExtractFailed(f.Home(), err)
	}
	return path, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		data, err := get(ctx, client, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		if attempt < downloadAttempts {
			f.logger().Debug("download failed, retrying", zap.String("url", url), zap.Error(err))
		}
	}
	return nil, lastErr
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{url: url, code: resp.StatusCode, status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

// statusError is a completed request with a non-200 response
type statusError struct {
	url    string
	status string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.url, e.status)
}

// retryable reports whether a failed attempt may succeed on a second try:
// transport errors and server-side statuses. A 404 for a pinned release will not.
func retryable(err error) bool {
	var se *statusError
	if stderrors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	return true
}

// Extract unpacks a gzip-compressed tar stream into dest. Entries that would
// land outside dest are rejected. A failed extraction is not rolled back.
func Extract(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		target, err := within(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := hdr.Linkname
			if !filepath.IsAbs(linkTarget) {
				linkTarget = filepath.Join(filepath.Dir(hdr.Name), linkTarget)
			}
			if _, err := within(dest, linkTarget); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			// hard link names are relative to the archive root
			source, err := within(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return err
			}
		case tar.TypeXGlobalHeader:
		default:
			return fmt.Errorf("archive entry %q has unsupported type %q", hdr.Name, hdr.Typeflag)
		}
	}
}

// within joins name onto dest and rejects results outside dest
func within(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q is absolute", name)
	}
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes %s", name, dest)
	}
	return target, nil
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeMarker(home, source string) error {
	tmp, err := os.CreateTemp(home, MarkerFile+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(source + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(home, MarkerFile))
}

func (f *Fetcher) exeSuffix() string {
	goos := f.Platform.OS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return ".exe"
	}
	return ""
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log
}
