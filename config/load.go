package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/cargo-wasm/errors"
)

// LoadFile overlays the YAML file at path onto opts. A missing file is not an
// error; unknown keys are.
func LoadFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.IO(errors.PhaseConfig, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil && err != io.EOF {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(path).
			Cause(err).
			Build()
	}
	return nil
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto opts
func ApplyEnv(opts *Options, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := envReader{lookup: lookup}

	opts.Cargo = env.String("CARGO", opts.Cargo)
	opts.OutDir = env.String("CARGO_WASM_OUT_DIR", opts.OutDir)

	if v, ok := lookup("CARGO_WASM_TARGET"); ok {
		t, err := ParseTarget(v)
		if err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).Detail("CARGO_WASM_TARGET").Cause(err).Build()
		}
		opts.Target = t
	}

	var err error
	if opts.Release, err = env.Bool("CARGO_WASM_RELEASE", opts.Release); err != nil {
		return err
	}
	if opts.Quiet, err = env.Bool("CARGO_WASM_QUIET", opts.Quiet); err != nil {
		return err
	}
	if opts.ProcessTimeout, err = env.Duration("CARGO_WASM_PROCESS_TIMEOUT", opts.ProcessTimeout); err != nil {
		return err
	}
	if opts.DownloadTimeout, err = env.Duration("CARGO_WASM_DOWNLOAD_TIMEOUT", opts.DownloadTimeout); err != nil {
		return err
	}
	return nil
}

type envReader struct {
	lookup LookupFunc
}

func (e envReader) String(key, def string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (e envReader) Bool(key string, def bool) (bool, error) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("parse %s", key).Cause(err).Build()
		}
		return b, nil
	}
	return def, nil
}

func (e envReader) Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Detail("parse %s", key).Cause(err).Build()
		}
		return d, nil
	}
	return def, nil
}

// Load assembles options for the project at root: defaults, then the
// project's cargo-wasm.yaml, then the environment.
func Load(root string, lookup LookupFunc) (Options, error) {
	opts := Defaults()
	path := filepath.Join(root, FileName)
	if err := LoadFile(path, &opts); err != nil {
		return opts, err
	}
	if err := ApplyEnv(&opts, lookup); err != nil {
		return opts, err
	}
	return opts, nil
}

// String renders the options for debug logs
func (o Options) String() string {
	level := "off"
	if o.Optimize != nil {
		level = o.Optimize.Level.String()
	}
	return fmt.Sprintf("target=%s mode=%s out_dir=%s typescript=%t weak_refs=%t reference_types=%t no_demangle=%t clean=%t optimize=%s",
		o.Target, o.Mode(), o.OutDir, o.TypeScript, o.WeakRefs, o.ReferenceTypes, o.NoDemangle, o.Clean, level)
}
