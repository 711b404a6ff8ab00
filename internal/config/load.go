package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/psantana5/pyship/internal/pyproject"
)

// EnvPrefix prefixes every environment override, PYSHIP_TOOLS_ISCC etc.
const EnvPrefix = "PYSHIP"

// Options selects where the configuration comes from
type Options struct {
	// File is an explicit config file; when empty pyship.yaml is looked up
	// in ProjectDir and its absence is not an error.
	File string
	// ProjectDir overrides project_dir from the file.
	ProjectDir string
}

// SetDefaults registers every key with viper so env overrides apply even
// when the key is absent from the file
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("project_dir", d.ProjectDir)
	v.SetDefault("state_dir", d.StateDir)

	for _, k := range []string{"name", "version", "publisher", "description", "copyright", "url", "entry_script", "icon", "splash", "exe_name"} {
		v.SetDefault("app."+k, "")
	}

	v.SetDefault("tools.python", d.Tools.Python)
	v.SetDefault("tools.wine", d.Tools.Wine)
	v.SetDefault("tools.wine_prefix", "")
	v.SetDefault("tools.windows_python", "")
	v.SetDefault("tools.iscc", "")

	v.SetDefault("freeze.windowed", d.Freeze.Windowed)
	v.SetDefault("freeze.onedir", d.Freeze.OneDir)
	v.SetDefault("freeze.data", []map[string]string{})
	v.SetDefault("freeze.hidden_imports", []string{})
	v.SetDefault("freeze.log_level", d.Freeze.LogLevel)
	v.SetDefault("freeze.optimize", d.Freeze.Optimize)
	v.SetDefault("freeze.extra_args", []string{})

	v.SetDefault("installer.output_dir", d.Installer.OutputDir)
	v.SetDefault("installer.output_base_name", "")
	v.SetDefault("installer.compression", d.Installer.Compression)
	v.SetDefault("installer.solid", d.Installer.Solid)
	v.SetDefault("installer.desktop_shortcut", d.Installer.DesktopShortcut)
	v.SetDefault("installer.run_after_install", d.Installer.RunAfterInstall)
	v.SetDefault("installer.privileges", d.Installer.Privileges)
	v.SetDefault("installer.app_id", "")
	v.SetDefault("installer.default_dir_name", "")
	v.SetDefault("installer.license_file", "")

	v.SetDefault("build.dist_dir", d.Build.DistDir)
	v.SetDefault("build.work_dir", d.Build.WorkDir)
	v.SetDefault("build.extra_clean", []string{})
	v.SetDefault("build.source_date_epoch", d.Build.SourceDateEpoch)
	v.SetDefault("build.hash_seed", d.Build.HashSeed)

	v.SetDefault("history.retention", d.History.Retention)
}

// Load reads defaults, the config file and PYSHIP_* environment overrides,
// then fills derived values. It does not validate.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		dir := opts.ProjectDir
		if dir == "" {
			dir = "."
		}
		v.AddConfigPath(dir)
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if opts.ProjectDir != "" {
		cfg.ProjectDir = opts.ProjectDir
	} else if cfg.File != "" && !filepath.IsAbs(cfg.ProjectDir) {
		cfg.ProjectDir = filepath.Join(filepath.Dir(cfg.File), cfg.ProjectDir)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve makes paths absolute and fills values derived from other fields
func (c *Config) resolve() error {
	abs, err := filepath.Abs(expandHome(c.ProjectDir))
	if err != nil {
		return fmt.Errorf("failed to resolve project dir: %w", err)
	}
	c.ProjectDir = abs

	c.Tools.WinePrefix = expandHome(c.Tools.WinePrefix)
	if c.Tools.WinePrefix == "" {
		c.Tools.WinePrefix = os.Getenv("WINEPREFIX")
	}
	c.Tools.WindowsPython = expandHome(c.Tools.WindowsPython)
	c.Tools.ISCC = expandHome(c.Tools.ISCC)

	if err := c.fillFromProject(); err != nil {
		return err
	}

	c.FillDerived()
	return nil
}

// fillFromProject fills app name, version and description left empty by
// pyship.yaml from pyproject.toml, then takes a missing version from a
// __version__.py module. A pyproject.toml that cannot be read only fails the
// load when name or version are still unknown afterwards.
func (c *Config) fillFromProject() error {
	if c.App.Name != "" && c.App.Version != "" && c.App.Description != "" {
		return nil
	}

	proj, projErr := pyproject.Load(c.ProjectDir)
	switch {
	case projErr == nil:
		if c.App.Name == "" {
			c.App.Name = proj.Name
		}
		if c.App.Version == "" && !proj.DynamicVersion() {
			c.App.Version = proj.Version
		}
		if c.App.Description == "" {
			c.App.Description = proj.Description
		}
	case errors.Is(projErr, os.ErrNotExist), errors.Is(projErr, pyproject.ErrNoProject):
		projErr = nil
	}

	if c.App.Version == "" {
		name := c.App.Name
		if proj != nil {
			name = proj.Name
		}
		v, err := pyproject.ModuleVersion(c.ProjectDir, name)
		switch {
		case err == nil:
			c.App.Version = v
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("failed to read app version: %w", err)
		}
	}

	if projErr != nil && (c.App.Name == "" || c.App.Version == "") {
		return projErr
	}
	return nil
}

// FillDerived sets the defaults computed from the app name and version
func (c *Config) FillDerived() {
	if c.App.ExeName == "" {
		c.App.ExeName = c.App.Name
	}
	if c.App.Description == "" {
		c.App.Description = c.App.Name
	}
	if c.Installer.OutputBaseName == "" && c.App.Name != "" {
		c.Installer.OutputBaseName = fmt.Sprintf("%s-%s-setup", c.App.Name, c.App.Version)
	}
	if c.Installer.DefaultDirName == "" && c.App.Name != "" {
		c.Installer.DefaultDirName = `{autopf}\` + c.App.Name
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
