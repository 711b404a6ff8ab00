package inno

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/wine"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ProjectDir = "/src/anonymizer"
	cfg.App.Name = "Anonymizer"
	cfg.App.Version = "17.2.1"
	cfg.App.Publisher = "RSNA"
	cfg.App.URL = "https://example.org"
	cfg.App.Icon = "assets/icons/app.ico"
	cfg.FillDerived()
	return cfg
}

func render(t *testing.T, s Script) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, s))
	return buf.String()
}

func TestDefaultAppIDIsStable(t *testing.T) {
	a := DefaultAppID("Anonymizer")
	assert.Equal(t, a, DefaultAppID("Anonymizer"))
	assert.NotEqual(t, a, DefaultAppID("Other"))
	assert.Len(t, a, 36)
	assert.Equal(t, strings.ToUpper(a), a)
}

func TestFromConfigPaths(t *testing.T) {
	s := FromConfig(testConfig(), wine.Env{Prefix: "/home/b/.wine"})

	assert.Equal(t, `Z:\src\anonymizer\dist\Anonymizer`, s.SourceDir)
	assert.Equal(t, `Z:\src\anonymizer\installer`, s.OutputDir)
	assert.Equal(t, `Z:\src\anonymizer\assets\icons\app.ico`, s.SetupIcon)
	assert.Empty(t, s.LicenseFile)
	assert.Equal(t, "Anonymizer-17.2.1-setup", s.OutputBaseName)
	assert.Equal(t, `{autopf}\Anonymizer`, s.DefaultDirName)
	assert.Equal(t, DefaultAppID("Anonymizer"), s.AppID)
}

func TestFromConfigExplicitAppID(t *testing.T) {
	cfg := testConfig()
	cfg.Installer.AppID = "{6F1B0C55-0000-4000-8000-000000000001}"
	s := FromConfig(cfg, wine.Env{})
	assert.Equal(t, "6F1B0C55-0000-4000-8000-000000000001", s.AppID)
}

func TestRenderSections(t *testing.T) {
	s := FromConfig(testConfig(), wine.Env{})
	out := render(t, s)

	for _, want := range []string{
		"[Setup]",
		"AppId={{" + s.AppID + "}\n",
		"AppName=Anonymizer\n",
		"AppVersion=17.2.1\n",
		"AppPublisher=RSNA\n",
		"AppPublisherURL=https://example.org\n",
		`DefaultDirName={autopf}\Anonymizer`,
		`OutputDir=Z:\src\anonymizer\installer`,
		"OutputBaseFilename=Anonymizer-17.2.1-setup\n",
		`SetupIconFile=Z:\src\anonymizer\assets\icons\app.ico`,
		"Compression=lzma2/max\n",
		"SolidCompression=yes\n",
		"PrivilegesRequired=lowest\n",
		`UninstallDisplayIcon={app}\Anonymizer.exe`,
		"[Languages]",
		"[Tasks]",
		`Source: "Z:\src\anonymizer\dist\Anonymizer\*"; DestDir: "{app}"; Flags: ignoreversion recursesubdirs createallsubdirs`,
		`Name: "{autoprograms}\Anonymizer"; Filename: "{app}\Anonymizer.exe"`,
		`Name: "{autodesktop}\Anonymizer"; Filename: "{app}\Anonymizer.exe"; Tasks: desktopicon`,
		`Filename: "{app}\Anonymizer.exe"; Description: "{cm:LaunchProgram,Anonymizer}"; Flags: nowait postinstall skipifsilent`,
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "LicenseFile=")
	assert.NotContains(t, out, "\n\n\n")
}

func TestRenderOptionalSectionsOff(t *testing.T) {
	cfg := testConfig()
	cfg.Installer.DesktopShortcut = false
	cfg.Installer.RunAfterInstall = false
	cfg.Installer.Solid = false
	cfg.App.Publisher = ""
	out := render(t, FromConfig(cfg, wine.Env{}))

	assert.NotContains(t, out, "[Tasks]")
	assert.NotContains(t, out, "[Run]")
	assert.NotContains(t, out, "{autodesktop}")
	assert.NotContains(t, out, "AppPublisher=")
	assert.Contains(t, out, "SolidCompression=no")
}

func TestRenderEscaping(t *testing.T) {
	s := FromConfig(testConfig(), wine.Env{})
	s.Name = `My "Best" {App}, 100%`
	out := render(t, s)

	assert.Contains(t, out, "AppName=My \"Best\" {{App}, 100%\n")
	assert.Contains(t, out, `Name: "{autoprograms}\My ""Best"" {{App}, 100%"`)
	assert.Contains(t, out, `{cm:LaunchProgram,My ""Best"" {App%7d%2c 100%25}`)
}

func TestRenderRequiresSource(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, Script{Name: "x", ExeName: "x"}))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build", "installer.iss")
	require.NoError(t, WriteFile(path, FromConfig(testConfig(), wine.Env{})))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "; Anonymizer 17.2.1 installer"))
}
