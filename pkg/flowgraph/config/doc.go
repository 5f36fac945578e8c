/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
This is useful for extracting configuration values from YAML/JSON structures
without verbose type assertions and nil checks.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "timeout":       "30s",
	    "history_limit": 20,
	    "debug":         true,
	})

	timeout := cfg.Duration("timeout", 10*time.Second) // 30s
	limit := cfg.Int("history_limit", 10)              // 20
	debug := cfg.Bool("debug", false)                  // true
	missing := cfg.String("missing", "default")        // "default"

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

Numeric types handle reasonable conversions:
  - int from float64 (truncated)
  - float64 from int

All methods return the default value if:
  - The key is missing
  - The value cannot be converted to the requested type
  - The conversion would lose precision (e.g., float to int with fraction)

# Sections

YAML sections decode into nested maps. Accessors take dotted paths, and Sub
narrows to one section:

	cfg.String("store.driver", "memory")
	llm := cfg.Sub("llm")
	llm.Float("temperature.intake", 0.3)

# Environment Overrides

Secrets usually come from the environment. WithEnv binds dotted keys to
variable names; a set, non-empty variable replaces the file value:

	cfg = cfg.WithEnv(map[string]string{"search.api_key": "TAVILY_API_KEY"})

Int, Float, Bool, and StringSlice parse string values so overrides need no
special handling.

# File Loading

Load configuration from YAML or JSON files:

	cfg, err := config.FromFile("config.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	// Or load from bytes
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)

	// Optional file plus environment in one call
	cfg, err = config.Load(path, true, bindings)

# Thread Safety

Config is safe for concurrent read access. Set and WithEnv return copies
and never modify the receiver. However, if the original map is modified
externally, behavior is undefined.
*/
package config
