// Package config loads process settings from CATMARKET_* environment
// variables and reports fatal startup errors.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target's `env` tagged fields from the process environment,
// applying envDefault values for unset variables.
func ParseEnv(target any) error {
	return parse(target, env.Options{})
}

// ParseEnvFrom is ParseEnv against a fixed variable set.
func ParseEnvFrom(target any, vars map[string]string) error {
	return parse(target, env.Options{Environment: vars})
}

func parse(target any, opts env.Options) error {
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf prints a one-line failure to stderr and terminates with status 1.
func Exitf(format string, args ...any) {
	os.Exit(report(os.Stderr, format, args...))
}

func report(w io.Writer, format string, args ...any) int {
	fmt.Fprintf(w, format+"\n", args...)
	return 1
}
