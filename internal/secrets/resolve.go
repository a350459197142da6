// Package secrets resolves secret indirections in configuration values.
// A value of the form "env:NAME" reads the named environment variable;
// "file:/path" reads the file contents (trailing whitespace trimmed, for
// mounted secret files). Anything else is returned as-is.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

const (
	envPrefix  = "env:"
	filePrefix = "file:"
)

// Resolve expands an env: or file: indirection. A named but unset
// environment variable or an unreadable file is an error: a config that
// points at a secret must find one.
func Resolve(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, envPrefix):
		name := strings.TrimPrefix(value, envPrefix)
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("secret env %s: not set", name)
		}
		return v, nil

	case strings.HasPrefix(value, filePrefix):
		path := strings.TrimPrefix(value, filePrefix)
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
		if err != nil {
			return "", fmt.Errorf("secret file %s: %w", path, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil

	default:
		return value, nil
	}
}

// ResolveAll resolves every pointer in place, stopping at the first error.
func ResolveAll(values ...*string) error {
	for _, v := range values {
		resolved, err := Resolve(*v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}
