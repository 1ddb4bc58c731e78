package platform

import (
	"errors"
	"strings"
	"testing"

	cwerrors "github.com/wippyai/cargo-wasm/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		os   string
		arch string
		want Platform
	}{
		{"linux", "amd64", Linux},
		{"darwin", "amd64", MacOS},
		{"windows", "amd64", Windows},
	}

	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			got, err := Resolver{OS: tt.os, Arch: tt.arch}.Resolve()
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolve_Unsupported(t *testing.T) {
	tests := []struct {
		os   string
		arch string
	}{
		{"linux", "386"},
		{"linux", "arm64"},
		{"darwin", "arm64"},
		{"freebsd", "amd64"},
		{"js", "wasm"},
	}

	for _, tt := range tests {
		t.Run(tt.os+"/"+tt.arch, func(t *testing.T) {
			_, err := Resolver{OS: tt.os, Arch: tt.arch}.Resolve()
			if !errors.Is(err, cwerrors.ErrUnsupportedPlatform) {
				t.Fatalf("Resolve() error = %v, want unsupported_platform", err)
			}
			if !strings.Contains(err.Error(), tt.os+"/"+tt.arch) {
				t.Errorf("error %q should carry %s/%s", err, tt.os, tt.arch)
			}
		})
	}
}

func TestExeSuffix(t *testing.T) {
	if Windows.ExeSuffix() != ".exe" {
		t.Errorf("Windows suffix = %q", Windows.ExeSuffix())
	}
	if Linux.ExeSuffix() != "" || MacOS.ExeSuffix() != "" {
		t.Error("unix platforms should have no suffix")
	}
}
