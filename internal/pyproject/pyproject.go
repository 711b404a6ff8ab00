// Package pyproject reads the project metadata pyship needs from pyproject.toml.
package pyproject

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the standard project metadata file
const FileName = "pyproject.toml"

// ErrNoProject is returned when neither [project] nor [tool.poetry] names the project
var ErrNoProject = errors.New("pyproject.toml has no [project] name")

// Project is the [project] table subset pyship uses
type Project struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Description string   `toml:"description"`
	Dynamic     []string `toml:"dynamic"`
}

type document struct {
	Project Project `toml:"project"`
	Tool    struct {
		Poetry struct {
			Name        string `toml:"name"`
			Version     string `toml:"version"`
			Description string `toml:"description"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// Load reads <dir>/pyproject.toml
func Load(dir string) (*Project, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes pyproject.toml content
func Parse(data []byte) (*Project, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if strings.TrimSpace(doc.Project.Name) != "" {
		return &doc.Project, nil
	}
	// Poetry before 2.0 keeps the metadata under [tool.poetry]
	if poetry := doc.Tool.Poetry; strings.TrimSpace(poetry.Name) != "" {
		return &Project{Name: poetry.Name, Version: poetry.Version, Description: poetry.Description}, nil
	}
	return nil, ErrNoProject
}

// DynamicVersion reports whether the version is computed by the build backend
func (p *Project) DynamicVersion() bool {
	for _, d := range p.Dynamic {
		if d == "version" {
			return true
		}
	}
	return false
}

var separators = regexp.MustCompile(`[-_.\s]+`)

// DistributionName returns the wheel file name component for a project name:
// runs of "-", "_", "." and spaces collapse to "_" and the result is lowercased.
func DistributionName(name string) string {
	return strings.ToLower(separators.ReplaceAllString(name, "_"))
}

// WheelGlob returns the glob matching wheels built for name and version.
// An empty version matches any version.
func WheelGlob(name, version string) string {
	v := "*"
	if version != "" {
		v = strings.ReplaceAll(version, "-", "_")
	}
	return fmt.Sprintf("%s-%s-*.whl", DistributionName(name), v)
}

var versionAssign = regexp.MustCompile(`(?m)^__version__\s*(?::\s*str\s*)?=\s*["']([^"']+)["']`)

// VersionModuleCandidates lists where a __version__.py module is looked up,
// in order, for a project whose version is not in pyproject.toml.
func VersionModuleCandidates(dir, name string) []string {
	paths := []string{
		filepath.Join(dir, "__version__.py"),
		filepath.Join(dir, "src", "__version__.py"),
	}
	if name != "" {
		dist := DistributionName(name)
		paths = append(paths,
			filepath.Join(dir, "src", dist, "__version__.py"),
			filepath.Join(dir, dist, "__version__.py"),
		)
	}
	return paths
}

// ModuleVersion returns the __version__ string assigned in the first
// candidate module that exists. os.ErrNotExist is returned when none does.
func ModuleVersion(dir, name string) (string, error) {
	for _, path := range VersionModuleCandidates(dir, name) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		m := versionAssign.FindSubmatch(data)
		if m == nil {
			return "", fmt.Errorf("%s: no __version__ assignment", path)
		}
		return string(m[1]), nil
	}
	return "", os.ErrNotExist
}
