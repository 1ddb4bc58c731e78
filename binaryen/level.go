package binaryen

import (
	"fmt"
	"strings"
)

// Level is a wasm-opt optimization level. The zero value is LevelDefault,
// which runs wasm-opt's default passes (-O).
type Level int

const (
	LevelDefault Level = iota
	LevelNone
	LevelO1
	LevelO2
	LevelO3
	LevelO4
	LevelSize
	LevelSizeAggressive
)

var levelFlags = [...]string{
	LevelDefault:        "-O",
	LevelNone:           "-O0",
	LevelO1:             "-O1",
	LevelO2:             "-O2",
	LevelO3:             "-O3",
	LevelO4:             "-O4",
	LevelSize:           "-Os",
	LevelSizeAggressive: "-Oz",
}

var levelNames = [...]string{
	LevelDefault:        "default",
	LevelNone:           "O0",
	LevelO1:             "O1",
	LevelO2:             "O2",
	LevelO3:             "O3",
	LevelO4:             "O4",
	LevelSize:           "Os",
	LevelSizeAggressive: "Oz",
}

// Flag returns the wasm-opt command-line switch for the level
func (l Level) Flag() string {
	if l < 0 || int(l) >= len(levelFlags) {
		return levelFlags[LevelDefault]
	}
	return levelFlags[l]
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts a level name with or without its leading dash:
// "O", "default", "O0", "none", "O1".."O4", "Os", "size", "Oz", "size-aggressive".
func ParseLevel(s string) (Level, error) {
	switch strings.TrimPrefix(strings.TrimSpace(s), "-") {
	case "", "O", "default":
		return LevelDefault, nil
	case "O0", "none":
		return LevelNone, nil
	case "O1":
		return LevelO1, nil
	case "O2":
		return LevelO2, nil
	case "O3":
		return LevelO3, nil
	case "O4":
		return LevelO4, nil
	case "Os", "size":
		return LevelSize, nil
	case "Oz", "size-aggressive":
		return LevelSizeAggressive, nil
	}
	return LevelDefault, fmt.Errorf("unknown optimization level %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	lv, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = lv
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LevelFlags mirrors wasm-opt's individual level switches as booleans
type LevelFlags struct {
	O, O0, O1, O2, O3, O4, Os, Oz bool
}

// Level collapses the switches into one level. When several are set the first
// in the order O0, O1, O2, O3, O4, Os, Oz wins; none set means LevelDefault.
func (f LevelFlags) Level() Level {
	ordered := []struct {
		set   bool
		level Level
	}{
		{f.O0, LevelNone},
		{f.O1, LevelO1},
		{f.O2, LevelO2},
		{f.O3, LevelO3},
		{f.O4, LevelO4},
		{f.Os, LevelSize},
		{f.Oz, LevelSizeAggressive},
	}
	for _, o := range ordered {
		if o.set {
			return o.level
		}
	}
	return LevelDefault
}
