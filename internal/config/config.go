package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the project dir
const FileName = "pyship.yaml"

// ErrInvalidConfig classifies configuration problems
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete build configuration
type Config struct {
	ProjectDir string          `mapstructure:"project_dir" yaml:"project_dir" json:"project_dir"`
	StateDir   string          `mapstructure:"state_dir" yaml:"state_dir" json:"state_dir"`
	App        AppConfig       `mapstructure:"app" yaml:"app" json:"app"`
	Tools      ToolsConfig     `mapstructure:"tools" yaml:"tools" json:"tools"`
	Freeze     FreezeConfig    `mapstructure:"freeze" yaml:"freeze" json:"freeze"`
	Installer  InstallerConfig `mapstructure:"installer" yaml:"installer" json:"installer"`
	Build      BuildConfig     `mapstructure:"build" yaml:"build" json:"build"`
	History    HistoryConfig   `mapstructure:"history" yaml:"history" json:"history"`

	// File is the config file the values were read from, if any.
	File string `mapstructure:"-" yaml:"-" json:"file,omitempty"`
}

// AppConfig describes the application being packaged
type AppConfig struct {
	Name        string `mapstructure:"name" yaml:"name" json:"name"`
	Version     string `mapstructure:"version" yaml:"version" json:"version"`
	Publisher   string `mapstructure:"publisher" yaml:"publisher" json:"publisher"`
	Description string `mapstructure:"description" yaml:"description" json:"description"`
	Copyright   string `mapstructure:"copyright" yaml:"copyright" json:"copyright"`
	URL         string `mapstructure:"url" yaml:"url" json:"url"`
	EntryScript string `mapstructure:"entry_script" yaml:"entry_script" json:"entry_script"`
	Icon        string `mapstructure:"icon" yaml:"icon" json:"icon"`
	Splash      string `mapstructure:"splash" yaml:"splash" json:"splash"`
	ExeName     string `mapstructure:"exe_name" yaml:"exe_name" json:"exe_name"`
}

// ToolsConfig locates the external tools. Nothing here has a usable
// machine-specific default; paths come from the file or PYSHIP_TOOLS_* env.
type ToolsConfig struct {
	Python        string `mapstructure:"python" yaml:"python" json:"python"`
	Wine          string `mapstructure:"wine" yaml:"wine" json:"wine"`
	WinePrefix    string `mapstructure:"wine_prefix" yaml:"wine_prefix" json:"wine_prefix"`
	WindowsPython string `mapstructure:"windows_python" yaml:"windows_python" json:"windows_python"`
	ISCC          string `mapstructure:"iscc" yaml:"iscc" json:"iscc"`
}

// DataFile is one --add-data pair, src relative to the project dir
type DataFile struct {
	Src  string `mapstructure:"src" yaml:"src" json:"src"`
	Dest string `mapstructure:"dest" yaml:"dest" json:"dest"`
}

// FreezeConfig holds PyInstaller options
type FreezeConfig struct {
	Windowed      bool       `mapstructure:"windowed" yaml:"windowed" json:"windowed"`
	OneDir        bool       `mapstructure:"onedir" yaml:"onedir" json:"onedir"`
	Data          []DataFile `mapstructure:"data" yaml:"data" json:"data"`
	HiddenImports []string   `mapstructure:"hidden_imports" yaml:"hidden_imports" json:"hidden_imports"`
	LogLevel      string     `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Optimize      int        `mapstructure:"optimize" yaml:"optimize" json:"optimize"`
	ExtraArgs     []string   `mapstructure:"extra_args" yaml:"extra_args" json:"extra_args"`
}

// InstallerConfig holds Inno Setup options
type InstallerConfig struct {
	OutputDir       string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	OutputBaseName  string `mapstructure:"output_base_name" yaml:"output_base_name" json:"output_base_name"`
	Compression     string `mapstructure:"compression" yaml:"compression" json:"compression"`
	Solid           bool   `mapstructure:"solid" yaml:"solid" json:"solid"`
	DesktopShortcut bool   `mapstructure:"desktop_shortcut" yaml:"desktop_shortcut" json:"desktop_shortcut"`
	RunAfterInstall bool   `mapstructure:"run_after_install" yaml:"run_after_install" json:"run_after_install"`
	Privileges      string `mapstructure:"privileges" yaml:"privileges" json:"privileges"`
	AppID           string `mapstructure:"app_id" yaml:"app_id" json:"app_id"`
	DefaultDirName  string `mapstructure:"default_dir_name" yaml:"default_dir_name" json:"default_dir_name"`
	LicenseFile     string `mapstructure:"license_file" yaml:"license_file" json:"license_file"`
}

// BuildConfig holds workspace layout and reproducibility knobs
type BuildConfig struct {
	DistDir         string   `mapstructure:"dist_dir" yaml:"dist_dir" json:"dist_dir"`
	WorkDir         string   `mapstructure:"work_dir" yaml:"work_dir" json:"work_dir"`
	ExtraClean      []string `mapstructure:"extra_clean" yaml:"extra_clean" json:"extra_clean"`
	SourceDateEpoch int64    `mapstructure:"source_date_epoch" yaml:"source_date_epoch" json:"source_date_epoch"`
	HashSeed        string   `mapstructure:"hash_seed" yaml:"hash_seed" json:"hash_seed"`
}

// HistoryConfig controls the build history database
type HistoryConfig struct {
	Retention int `mapstructure:"retention" yaml:"retention" json:"retention"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		ProjectDir: ".",
		StateDir:   ".pyship",
		Tools: ToolsConfig{
			Python: "python3",
			Wine:   "wine",
		},
		Freeze: FreezeConfig{
			Windowed: true,
			OneDir:   true,
			LogLevel: "WARN",
		},
		Installer: InstallerConfig{
			OutputDir:       "installer",
			Compression:     "lzma2/max",
			Solid:           true,
			DesktopShortcut: true,
			RunAfterInstall: true,
			Privileges:      "lowest",
		},
		Build: BuildConfig{
			DistDir:  "dist",
			WorkDir:  "build",
			HashSeed: "0",
		},
		History: HistoryConfig{
			Retention: 50,
		},
	}
}

// ValidationError lists every configuration problem found
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

// Is lets callers match with errors.Is(err, ErrInvalidConfig)
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

var (
	compressionRe = regexp.MustCompile(`^(none|zip(/[1-9])?|bzip(/[1-9])?|lzma2?(/(fast|normal|max|ultra|ultra64))?)$`)
	privileges    = map[string]bool{"admin": true, "poweruser": true, "lowest": true, "none": true}
	logLevels     = map[string]bool{"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "DEPRECATION": true, "ERROR": true, "FATAL": true}
)

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	var problems []string
	require := func(v, key string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, key+" is required")
		}
	}

	require(c.App.Name, "app.name")
	require(c.App.Version, "app.version (or [project].version in pyproject.toml, or __version__.py)")
	require(c.App.EntryScript, "app.entry_script")
	require(c.Tools.Python, "tools.python")
	require(c.Tools.Wine, "tools.wine")
	require(c.Tools.WindowsPython, "tools.windows_python")
	require(c.Tools.ISCC, "tools.iscc")

	if c.Freeze.Optimize < 0 || c.Freeze.Optimize > 2 {
		problems = append(problems, fmt.Sprintf("freeze.optimize must be 0, 1 or 2 (got %d)", c.Freeze.Optimize))
	}
	if !logLevels[strings.ToUpper(c.Freeze.LogLevel)] {
		problems = append(problems, fmt.Sprintf("freeze.log_level %q is not a PyInstaller log level", c.Freeze.LogLevel))
	}
	for i, d := range c.Freeze.Data {
		if d.Src == "" || d.Dest == "" {
			problems = append(problems, fmt.Sprintf("freeze.data[%d] needs src and dest", i))
		}
	}
	if !compressionRe.MatchString(strings.ToLower(c.Installer.Compression)) {
		problems = append(problems, fmt.Sprintf("installer.compression %q is not an Inno Setup compression", c.Installer.Compression))
	}
	if !privileges[strings.ToLower(c.Installer.Privileges)] {
		problems = append(problems, fmt.Sprintf("installer.privileges %q must be admin, poweruser, lowest or none", c.Installer.Privileges))
	}
	if c.Build.DistDir == "" || c.Build.WorkDir == "" {
		problems = append(problems, "build.dist_dir and build.work_dir must be set")
	}
	if c.History.Retention < 0 {
		problems = append(problems, "history.retention must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Path resolves p against the project dir
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectDir, p)
}

// DistDir is where the wheel and the frozen app land
func (c *Config) DistDir() string { return c.Path(c.Build.DistDir) }

// WorkDir holds PyInstaller work files, the .spec file, the version file and the .iss script
func (c *Config) WorkDir() string { return c.Path(c.Build.WorkDir) }

// InstallerDir is the Inno Setup output directory
func (c *Config) InstallerDir() string { return c.Path(c.Installer.OutputDir) }

// VersionFilePath is the generated Windows version resource file
func (c *Config) VersionFilePath() string { return filepath.Join(c.WorkDir(), "versionfile.txt") }

// ScriptPath is the generated Inno Setup script
func (c *Config) ScriptPath() string { return filepath.Join(c.WorkDir(), "installer.iss") }

// FrozenDir holds the frozen app. For onedir builds PyInstaller creates it
// under the dist dir; onefile builds are pointed at it directly.
func (c *Config) FrozenDir() string { return filepath.Join(c.DistDir(), c.App.ExeName) }

// FrozenExe is the main executable inside the frozen output
func (c *Config) FrozenExe() string { return filepath.Join(c.FrozenDir(), c.App.ExeName+".exe") }

// InstallerPath is the installer the last stage must produce
func (c *Config) InstallerPath() string {
	return filepath.Join(c.InstallerDir(), c.Installer.OutputBaseName+".exe")
}

// HistoryPath is the SQLite build history
func (c *Config) HistoryPath() string { return filepath.Join(c.Path(c.StateDir), "history.db") }

// RunsDir holds one JSON report per build
func (c *Config) RunsDir() string { return filepath.Join(c.Path(c.StateDir), "runs") }

// MetricsPath is the Prometheus textfile written after every build
func (c *Config) MetricsPath() string { return filepath.Join(c.Path(c.StateDir), "metrics.prom") }

// WriteYAML writes the configuration as a pyship.yaml document
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// WriteFile writes a new config file, refusing to overwrite unless force is set
func (c *Config) WriteFile(path string, force bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if err := c.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
