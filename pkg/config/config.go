// Package config loads YAML or TOML configuration files with environment
// variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Validator is implemented by configurations that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// Load reads filename, expands environment references and decodes it into
// target. Files ending in .toml are decoded as TOML, everything else as YAML.
//
// References use the shell forms $NAME and ${NAME}; ${NAME:-fallback} yields
// fallback when NAME is unset or empty.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if err := decode(filename, expand(data), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return validate(target)
}

// LoadOptional is Load for a file that may be absent: a missing file leaves
// target untouched, but target is still validated.
func LoadOptional[T any](filename string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return validate(target)
	}
	return Load(filename, target)
}

func expand(data []byte) []byte {
	return []byte(os.Expand(string(data), func(ref string) string {
		name, fallback, ok := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" || !ok {
			return v
		}
		return fallback
	}))
}

func decode(filename string, data []byte, target any) error {
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		return toml.Unmarshal(data, target)
	}
	return yaml.Unmarshal(data, target)
}

func validate(target any) error {
	v, ok := target.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
