package stages

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/exitcode"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/runner"
)

const (
	winPython = `C:\Python311\python.exe`
	iscc      = `C:\Program Files (x86)\Inno Setup 6\ISCC.exe`
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), "[project]\nname = \"anonymizer\"\nversion = \"1.0.0\"\n")
	writeFile(t, filepath.Join(dir, "anonymizer.py"), "print('hi')\n")

	cfg := config.Default()
	cfg.ProjectDir = dir
	cfg.App.Name = "Anonymizer"
	cfg.App.Version = "1.0.0"
	cfg.App.EntryScript = "anonymizer.py"
	cfg.Tools.WindowsPython = winPython
	cfg.Tools.ISCC = iscc
	cfg.Tools.WinePrefix = "/wine-prefix"
	cfg.Build.SourceDateEpoch = 1700000000
	cfg.FillDerived()
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeWheel(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("anonymizer-1.0.0.dist-info/WHEEL")
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("Wheel-Version: 1.0\n")); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("MZ"), 0o644)
}

// toolchain simulates what each tool leaves on disk
func toolchain(cfg *config.Config) *runner.FakeRunner {
	return &runner.FakeRunner{Effects: map[string]func(runner.Command) error{
		"-m build": func(runner.Command) error {
			return writeWheel(filepath.Join(cfg.DistDir(), "anonymizer-1.0.0-py3-none-any.whl"))
		},
		"PyInstaller": func(runner.Command) error { return touch(cfg.FrozenExe()) },
		"ISCC.exe":    func(runner.Command) error { return touch(cfg.InstallerPath()) },
	}}
}

func run(t *testing.T, cfg *config.Config, fake *runner.FakeRunner) (*pipeline.State, *pipeline.Outcome, error) {
	t.Helper()
	s := pipeline.NewState(cfg, fake, logging.Discard())
	out, err := pipeline.New(logging.Discard(), Default()...).Run(context.Background(), s)
	return s, out, err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestDefaultOrder(t *testing.T) {
	var names []string
	for _, s := range Default() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"clean", "wheel", "install", "versionfile", "freeze", "installer"}, names)
}

func TestCleanTwiceLeavesNoArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Build.ExtraClean = []string{"*.log"}
	artifacts := []string{
		filepath.Join(cfg.WorkDir(), "Anonymizer", "warn.txt"),
		filepath.Join(cfg.DistDir(), "Anonymizer", "Anonymizer.exe"),
		filepath.Join(cfg.ProjectDir, "Anonymizer.spec"),
		filepath.Join(cfg.ProjectDir, "old.spec"),
		cfg.InstallerPath(),
		filepath.Join(cfg.ProjectDir, "build.log"),
	}
	for _, a := range artifacts {
		writeFile(t, a, "x")
	}

	s := pipeline.NewState(cfg, &runner.FakeRunner{}, logging.Discard())
	s.Wheel = "stale.whl"
	for i := 0; i < 2; i++ {
		require.NoError(t, Clean{}.Run(context.Background(), s))
		for _, a := range artifacts {
			assert.False(t, exists(a), "run %d left %s", i+1, a)
		}
		for _, d := range []string{cfg.WorkDir(), cfg.DistDir(), cfg.InstallerDir()} {
			assert.False(t, exists(d))
		}
	}
	assert.Empty(t, s.Wheel)
	assert.True(t, exists(filepath.Join(cfg.ProjectDir, "pyproject.toml")))
	assert.True(t, exists(filepath.Join(cfg.ProjectDir, "anonymizer.py")))
}

func TestCleanRefusesProjectDir(t *testing.T) {
	for _, dist := range []string{".", "..", "/"} {
		cfg := testConfig(t)
		cfg.Build.DistDir = dist
		_, err := CleanTargets(cfg)
		assert.Error(t, err, dist)
	}
}

func TestCleanDescribe(t *testing.T) {
	cfg := testConfig(t)
	s := pipeline.NewState(cfg, &runner.FakeRunner{}, nil)
	actions := Clean{}.Describe(s)
	assert.Contains(t, actions, "remove "+cfg.DistDir())
	assert.Contains(t, actions, "remove "+cfg.InstallerDir())
}

func TestFullBuild(t *testing.T) {
	cfg := testConfig(t)
	fake := toolchain(cfg)

	s, out, err := run(t, cfg, fake)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)

	lines := fake.Lines()
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "python3 -m build --wheel --outdir "))
	assert.True(t, strings.HasPrefix(lines[1], `wine C:\Python311\python.exe -m pip install --force-reinstall`))
	assert.True(t, strings.HasPrefix(lines[2], `wine C:\Python311\python.exe -m PyInstaller --noconfirm --onedir --windowed`))
	assert.True(t, strings.HasPrefix(lines[3], `wine "C:\Program Files (x86)\Inno Setup 6\ISCC.exe" /Q /O`))

	wheelWin := s.Wine.WindowsPath(cfg.ProjectDir, s.Wheel)
	assert.True(t, strings.HasSuffix(lines[1], " "+wheelWin), "install consumes the built wheel")
	assert.True(t, strings.HasPrefix(wheelWin, `Z:\`))

	assert.Equal(t, filepath.Join(cfg.DistDir(), "anonymizer-1.0.0-py3-none-any.whl"), s.Wheel)
	assert.True(t, s.Installed)
	assert.Equal(t, cfg.VersionFilePath(), s.VersionFile)
	assert.Equal(t, cfg.FrozenDir(), s.FrozenDir)
	assert.Equal(t, cfg.ScriptPath(), s.Script)
	assert.Equal(t, cfg.InstallerPath(), s.Installer)
	assert.True(t, exists(cfg.InstallerPath()))
	assert.True(t, exists(cfg.ScriptPath()))
	assert.True(t, exists(cfg.VersionFilePath()))
	assert.Equal(t, s.Artifacts, out.Artifacts)

	for _, c := range fake.Calls {
		assert.Contains(t, c.Env, "SOURCE_DATE_EPOCH=1700000000", c.String())
		assert.Contains(t, c.Env, "PYTHONHASHSEED=0", c.String())
		assert.Equal(t, cfg.ProjectDir, c.Dir)
	}
	for _, c := range fake.Calls[1:] {
		assert.Contains(t, c.Env, "WINEPREFIX=/wine-prefix")
		assert.Contains(t, c.Env, "WINEDEBUG=-all")
	}
}

func TestRebuildIsRepeatable(t *testing.T) {
	cfg := testConfig(t)

	first := toolchain(cfg)
	_, _, err := run(t, cfg, first)
	require.NoError(t, err)

	second := toolchain(cfg)
	_, _, err = run(t, cfg, second)
	require.NoError(t, err)

	assert.Equal(t, first.Lines(), second.Lines())
	for i := range first.Calls {
		assert.Equal(t, first.Calls[i].Env, second.Calls[i].Env)
	}
}

func TestNoInstallerAfterFailure(t *testing.T) {
	tests := []struct {
		name     string
		fail     map[string]int
		missing  []string
		wantCode int
		stage    string
	}{
		{name: "host python missing", missing: []string{"python3 -m build"}, wantCode: exitcode.ToolNotFound, stage: "wheel"},
		{name: "wheel build fails", fail: map[string]int{"-m build": 1}, wantCode: 1, stage: "wheel"},
		{name: "wine missing", missing: []string{"pip install"}, wantCode: exitcode.ToolNotFound, stage: "install"},
		{name: "pip fails", fail: map[string]int{"pip install": 2}, wantCode: 2, stage: "install"},
		{name: "pyinstaller fails", fail: map[string]int{"PyInstaller": 3}, wantCode: 3, stage: "freeze"},
		{name: "iscc missing", missing: []string{"ISCC.exe"}, wantCode: exitcode.ToolNotFound, stage: "installer"},
		{name: "iscc fails after writing output", fail: map[string]int{"ISCC.exe": 2}, wantCode: 2, stage: "installer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			writeFile(t, cfg.InstallerPath(), "from a previous build")

			fake := toolchain(cfg)
			fake.Fail = tt.fail
			fake.Missing = tt.missing

			_, out, err := run(t, cfg, fake)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, pipeline.ExitCode(err))

			var stageErr *pipeline.StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, tt.stage, stageErr.Stage)

			assert.False(t, exists(cfg.InstallerPath()), "installer must not exist after a failed build")
			matches, _ := filepath.Glob(filepath.Join(cfg.InstallerDir(), "*"))
			assert.Empty(t, matches)
			assert.Empty(t, out.Artifacts.Installer)
		})
	}
}

func TestWheelMissingAfterBuild(t *testing.T) {
	cfg := testConfig(t)
	s := pipeline.NewState(cfg, &runner.FakeRunner{}, nil)

	err := Wheel{}.Run(context.Background(), s)
	assert.ErrorIs(t, err, pipeline.ErrMissingArtifact)
	assert.Empty(t, s.Wheel)
}

func TestWheelRejectsCorruptArchive(t *testing.T) {
	cfg := testConfig(t)
	fake := &runner.FakeRunner{Effects: map[string]func(runner.Command) error{
		"-m build": func(runner.Command) error {
			return touch(filepath.Join(cfg.DistDir(), "anonymizer-1.0.0-py3-none-any.whl"))
		},
	}}
	s := pipeline.NewState(cfg, fake, nil)
	assert.Error(t, Wheel{}.Run(context.Background(), s))
}

func TestInstallRequiresWheel(t *testing.T) {
	cfg := testConfig(t)
	fake := &runner.FakeRunner{}
	s := pipeline.NewState(cfg, fake, nil)

	err := Install{}.Run(context.Background(), s)
	assert.ErrorIs(t, err, pipeline.ErrMissingArtifact)
	assert.Empty(t, fake.Calls)

	s.Wheel = filepath.Join(cfg.DistDir(), "gone.whl")
	assert.ErrorIs(t, Install{}.Run(context.Background(), s), pipeline.ErrMissingArtifact)
	assert.Empty(t, fake.Calls)
	assert.False(t, s.Installed)
}

func TestFreezeRequiresInstall(t *testing.T) {
	cfg := testConfig(t)
	fake := &runner.FakeRunner{}
	s := pipeline.NewState(cfg, fake, nil)
	s.VersionFile = cfg.VersionFilePath()

	assert.ErrorIs(t, Freeze{}.Run(context.Background(), s), pipeline.ErrMissingArtifact)
	assert.Empty(t, fake.Calls)
}

func TestFreezeRequiresExecutable(t *testing.T) {
	cfg := testConfig(t)
	s := pipeline.NewState(cfg, &runner.FakeRunner{}, nil)
	s.Installed = true
	require.NoError(t, VersionFile{}.Run(context.Background(), s))

	err := Freeze{}.Run(context.Background(), s)
	assert.ErrorIs(t, err, pipeline.ErrMissingArtifact)
	assert.Empty(t, s.FrozenDir)
}

func TestInstallerRequiresFrozenApp(t *testing.T) {
	cfg := testConfig(t)
	fake := &runner.FakeRunner{}
	s := pipeline.NewState(cfg, fake, nil)

	assert.ErrorIs(t, Installer{}.Run(context.Background(), s), pipeline.ErrMissingArtifact)
	assert.Empty(t, fake.Calls)
}

func TestInstallerExitZeroWithoutOutput(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, touch(cfg.FrozenExe()))
	s := pipeline.NewState(cfg, &runner.FakeRunner{}, nil)
	s.FrozenDir = cfg.FrozenDir()

	err := Installer{}.Run(context.Background(), s)
	assert.ErrorIs(t, err, pipeline.ErrMissingArtifact)
	assert.Empty(t, s.Installer)
}

func TestFreezeArgs(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Icon = "assets/icon.ico"
	cfg.App.Splash = "assets/splash.png"
	cfg.Freeze.Optimize = 2
	cfg.Freeze.LogLevel = "info"
	cfg.Freeze.Data = []config.DataFile{{Src: "assets", Dest: "assets"}, {Src: "/opt/ctk", Dest: "customtkinter/"}}
	cfg.Freeze.HiddenImports = []string{"pydicom.encoders.gdcm"}
	cfg.Freeze.ExtraArgs = []string{"--clean"}
	s := pipeline.NewState(cfg, &runner.FakeRunner{}, nil)
	win := func(p string) string { return s.Wine.WindowsPath(cfg.ProjectDir, p) }

	args := strings.Join(FreezeArgs(s), "|")
	for _, want := range []string{
		"-m|PyInstaller|--noconfirm|--onedir|--windowed",
		"--name|Anonymizer",
		"--distpath|" + win(cfg.DistDir()),
		"--workpath|" + win(cfg.WorkDir()),
		"--specpath|" + win(cfg.WorkDir()),
		"--icon|" + win("assets/icon.ico"),
		"--splash|" + win("assets/splash.png"),
		"--version-file|" + win(cfg.VersionFilePath()),
		"--log-level|INFO",
		"--optimize|2",
		"--add-data|" + win("assets") + ";assets",
		`--add-data|Z:\opt\ctk;customtkinter\`,
		"--hidden-import|pydicom.encoders.gdcm",
		"--clean|" + win("anonymizer.py"),
	} {
		assert.Contains(t, args, want)
	}
	assert.True(t, strings.HasSuffix(args, win("anonymizer.py")))
}

func TestFreezeArgsOneFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Freeze.OneDir = false
	cfg.Freeze.Windowed = false
	s := pipeline.NewState(cfg, &runner.FakeRunner{}, nil)

	args := strings.Join(FreezeArgs(s), "|")
	assert.Contains(t, args, "--onefile")
	assert.NotContains(t, args, "--windowed")
	assert.NotContains(t, args, "--optimize")
	assert.Contains(t, args, "--distpath|"+s.Wine.WindowsPath(cfg.ProjectDir, cfg.FrozenDir()))
}

func TestFindWheel(t *testing.T) {
	dir := t.TempDir()
	_, err := FindWheel(dir, "My-App", "1.0-beta")
	assert.ErrorIs(t, err, pipeline.ErrMissingArtifact)

	writeFile(t, filepath.Join(dir, "my_app-1.0b0-py3-none-any.whl"), "")
	got, err := FindWheel(dir, "My-App", "1.0-beta")
	require.NoError(t, err)
	assert.Equal(t, "my_app-1.0b0-py3-none-any.whl", filepath.Base(got))

	writeFile(t, filepath.Join(dir, "my_app-0.9-py3-none-any.whl"), "")
	_, err = FindWheel(dir, "My-App", "1.0-beta")
	assert.Error(t, err)

	writeFile(t, filepath.Join(dir, "my_app-1.0_beta-py3-none-any.whl"), "")
	got, err = FindWheel(dir, "My-App", "1.0-beta")
	require.NoError(t, err)
	assert.Equal(t, "my_app-1.0_beta-py3-none-any.whl", filepath.Base(got))
}

func TestPlanListsEveryStage(t *testing.T) {
	cfg := testConfig(t)
	fake := &runner.FakeRunner{}
	s := pipeline.NewState(cfg, fake, nil)

	plan := pipeline.New(nil, Default()...).Plan(s)
	require.Len(t, plan, 6)
	assert.NotEmpty(t, plan[0].Actions)
	assert.Len(t, plan[1].Commands, 1)
	assert.Contains(t, plan[2].Commands[0].String(), "anonymizer-1.0.0-*.whl")
	assert.NotEmpty(t, plan[3].Actions)
	assert.Contains(t, plan[4].Commands[0].String(), "PyInstaller")
	assert.Contains(t, plan[5].Commands[0].String(), "ISCC.exe")
	assert.Empty(t, fake.Calls)
	assert.False(t, exists(cfg.DistDir()))
}

func TestInstallPlanUsesDistributionName(t *testing.T) {
	cases := map[string]struct {
		pyproject string
		want      string
	}{
		"project table": {"[project]\nname = \"lai-anonymizer\"\nversion = \"1.0.0\"\n", "lai_anonymizer-1.0.0-*.whl"},
		"no project":    {"[build-system]\nrequires = [\"setuptools\"]\n", "lai_anonymizer-1.0.0-*.whl"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.App.Name = "LAI Anonymizer"
			writeFile(t, filepath.Join(cfg.ProjectDir, "pyproject.toml"), tc.pyproject)

			s := pipeline.NewState(cfg, nil, nil)
			cmds := Install{}.Plan(s)
			require.Len(t, cmds, 1)
			assert.Contains(t, cmds[0].String(), tc.want)
		})
	}
}
