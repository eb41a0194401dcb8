// Package config provides the process configuration model and its
// loading.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Defaults for every field and BASEFN_* environment overrides
//   - Validation reporting every problem at once
//
// # Configuration Loading
//
//	cfg, err := config.Load("basefn.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// Configuration is read once at process start and passed to constructors
// as explicit values.
package config
