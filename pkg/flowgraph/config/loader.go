package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// WithEnv returns a copy of c where each dotted key in bindings is replaced
// by the named environment variable when that variable is set and non-empty.
//
//	cfg = cfg.WithEnv(map[string]string{
//	    "llm.api_key": "GEMINI_API_KEY",
//	    "store.dsn":   "DATABASE_URL",
//	})
func (c Config) WithEnv(bindings map[string]string) Config {
	return c.withLookup(bindings, os.LookupEnv)
}

func (c Config) withLookup(bindings map[string]string, lookup func(string) (string, bool)) Config {
	out := c
	for key, name := range bindings {
		if v, ok := lookup(name); ok && v != "" {
			out = out.Set(key, v)
		}
	}
	return out
}

// Load reads path when it is non-empty, then applies environment bindings.
// A missing path is not an error when optional is true.
func Load(path string, optional bool, bindings map[string]string) (Config, error) {
	cfg := New(nil)
	if path != "" {
		loaded, err := FromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case optional && errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, err
		}
	}
	return cfg.WithEnv(bindings), nil
}
