// Package inno renders the Inno Setup script that packages the frozen
// application into a single installer executable.
package inno

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/wine"
)

// Script is everything the installer template needs. Paths are already
// Windows paths as seen by ISCC under Wine.
type Script struct {
	AppID           string
	Name            string
	Version         string
	Publisher       string
	URL             string
	DefaultDirName  string
	OutputDir       string
	OutputBaseName  string
	SetupIcon       string
	LicenseFile     string
	Compression     string
	Solid           bool
	Privileges      string
	ExeName         string
	SourceDir       string
	DesktopShortcut bool
	RunAfterInstall bool
}

// DefaultAppID derives a stable AppId from the application name so
// upgrades of the same app replace each other
func DefaultAppID(name string) string {
	return strings.ToUpper(uuid.NewSHA1(uuid.NameSpaceURL, []byte("pyship:"+name)).String())
}

// FromConfig builds the script model for cfg, translating paths through env
func FromConfig(cfg *config.Config, env wine.Env) Script {
	appID := cfg.Installer.AppID
	if appID == "" {
		appID = DefaultAppID(cfg.App.Name)
	}
	appID = strings.Trim(appID, "{}")

	win := func(p string) string {
		if p == "" {
			return ""
		}
		return env.WindowsPath(cfg.ProjectDir, p)
	}

	return Script{
		AppID:           appID,
		Name:            cfg.App.Name,
		Version:         cfg.App.Version,
		Publisher:       cfg.App.Publisher,
		URL:             cfg.App.URL,
		DefaultDirName:  cfg.Installer.DefaultDirName,
		OutputDir:       win(cfg.InstallerDir()),
		OutputBaseName:  cfg.Installer.OutputBaseName,
		SetupIcon:       win(cfg.App.Icon),
		LicenseFile:     win(cfg.Installer.LicenseFile),
		Compression:     strings.ToLower(cfg.Installer.Compression),
		Solid:           cfg.Installer.Solid,
		Privileges:      strings.ToLower(cfg.Installer.Privileges),
		ExeName:         cfg.App.ExeName,
		SourceDir:       win(cfg.FrozenDir()),
		DesktopShortcut: cfg.Installer.DesktopShortcut,
		RunAfterInstall: cfg.Installer.RunAfterInstall,
	}
}

const scriptTemplate = `; {{text .Name}} {{text .Version}} installer, generated by pyship

[Setup]
AppId={{"{{"}}{{.AppID}}}
AppName={{text .Name}}
AppVersion={{text .Version}}
{{- if .Publisher}}
AppPublisher={{text .Publisher}}
{{- end}}
{{- if .URL}}
AppPublisherURL={{text .URL}}
AppSupportURL={{text .URL}}
{{- end}}
DefaultDirName={{.DefaultDirName}}
DefaultGroupName={{text .Name}}
DisableProgramGroupPage=yes
OutputDir={{.OutputDir}}
OutputBaseFilename={{text .OutputBaseName}}
{{- if .SetupIcon}}
SetupIconFile={{.SetupIcon}}
{{- end}}
{{- if .LicenseFile}}
LicenseFile={{.LicenseFile}}
{{- end}}
UninstallDisplayIcon={app}\{{text .ExeName}}.exe
Compression={{.Compression}}
SolidCompression={{yesno .Solid}}
PrivilegesRequired={{.Privileges}}
WizardStyle=modern

[Languages]
Name: "english"; MessagesFile: "compiler:Default.isl"
{{- if .DesktopShortcut}}

[Tasks]
Name: "desktopicon"; Description: "{cm:CreateDesktopIcon}"; GroupDescription: "{cm:AdditionalIcons}"; Flags: unchecked
{{- end}}

[Files]
Source: "{{param .SourceDir}}\*"; DestDir: "{app}"; Flags: ignoreversion recursesubdirs createallsubdirs

[Icons]
Name: "{autoprograms}\{{param .Name}}"; Filename: "{app}\{{param .ExeName}}.exe"
{{- if .DesktopShortcut}}
Name: "{autodesktop}\{{param .Name}}"; Filename: "{app}\{{param .ExeName}}.exe"; Tasks: desktopicon
{{- end}}
{{- if .RunAfterInstall}}

[Run]
Filename: "{app}\{{param .ExeName}}.exe"; Description: "{cm:LaunchProgram,{{cmarg .Name}}}"; Flags: nowait postinstall skipifsilent
{{- end}}
`

var tmpl = template.Must(template.New("iss").Funcs(template.FuncMap{
	"text":  escapeText,
	"param": escapeParam,
	"cmarg": escapeCmArg,
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(scriptTemplate))

// escapeText doubles braces so literal text is not read as an Inno constant
func escapeText(s string) string {
	return strings.ReplaceAll(s, "{", "{{")
}

// escapeParam escapes text placed inside a double-quoted parameter
func escapeParam(s string) string {
	return strings.ReplaceAll(escapeText(s), `"`, `""`)
}

// escapeCmArg escapes an argument of a {cm:...} constant
func escapeCmArg(s string) string {
	r := strings.NewReplacer("%", "%25", ",", "%2c", "}", "%7d", `"`, `""`)
	return r.Replace(s)
}

// Render writes the script
func Render(w io.Writer, s Script) error {
	if s.Name == "" || s.ExeName == "" || s.SourceDir == "" {
		return fmt.Errorf("installer script needs an app name, exe name and source dir")
	}
	return tmpl.Execute(w, s)
}

// WriteFile renders s to path, creating the parent directory
func WriteFile(path string, s Script) error {
	var buf bytes.Buffer
	if err := Render(&buf, s); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
