// Package ci exports build values to a CI runner's environment file.
package ci

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// GitHubEnvVar names the file GitHub Actions reads step outputs from
const GitHubEnvVar = "GITHUB_ENV"

// ErrNotInCI is returned when $GITHUB_ENV is not set
var ErrNotInCI = errors.New(GitHubEnvVar + " is not set")

// ExportVersion appends "version=<v>" to the file named by $GITHUB_ENV.
// It returns the file written to.
func ExportVersion(version string) (string, error) {
	return Export(map[string]string{"version": version}, "version")
}

// Export appends key=value lines for keys, in order, to $GITHUB_ENV
func Export(values map[string]string, keys ...string) (string, error) {
	path := os.Getenv(GitHubEnvVar)
	if path == "" {
		return "", ErrNotInCI
	}

	var b strings.Builder
	for _, k := range keys {
		v := values[k]
		if strings.ContainsAny(v, "\r\n") {
			return "", fmt.Errorf("value for %s spans lines", k)
		}
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", GitHubEnvVar, err)
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return "", err
	}
	return path, nil
}
