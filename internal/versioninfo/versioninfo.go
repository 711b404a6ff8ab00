// Package versioninfo renders the Windows version resource file that
// PyInstaller embeds into the frozen executable (--version-file).
package versioninfo

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/psantana5/pyship/internal/config"
)

// Info holds the string table of the resource
type Info struct {
	Version          string
	CompanyName      string
	FileDescription  string
	InternalName     string
	LegalCopyright   string
	OriginalFilename string
	ProductName      string
}

// FromConfig maps the app section onto a version resource
func FromConfig(cfg *config.Config) Info {
	return Info{
		Version:          cfg.App.Version,
		CompanyName:      cfg.App.Publisher,
		FileDescription:  cfg.App.Description,
		InternalName:     strings.ToLower(cfg.App.Name),
		LegalCopyright:   cfg.App.Copyright,
		OriginalFilename: cfg.App.ExeName + ".exe",
		ProductName:      cfg.App.Name,
	}
}

// Normalize turns an application version into the four numeric fields of
// a Windows FILEVERSION. A "-suffix" is dropped, each dotted part keeps its
// leading digits, and the result is padded or truncated to four parts.
func Normalize(version string) ([4]int, error) {
	var out [4]int
	v := strings.TrimSpace(version)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}

	parts := strings.Split(v, ".")
	for i, p := range parts {
		if i == len(out) {
			break
		}
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		if end == 0 {
			if i == 0 {
				return out, fmt.Errorf("version %q has no numeric major part", version)
			}
			break
		}
		n, err := strconv.Atoi(p[:end])
		if err != nil || n > 65535 {
			return out, fmt.Errorf("version %q: part %q out of range", version, p[:end])
		}
		out[i] = n
		if end < len(p) {
			// "2rc1": anything after the digits ends the version
			break
		}
	}
	return out, nil
}

// Dotted formats normalized fields as "a.b.c.d"
func Dotted(f [4]int) string {
	return fmt.Sprintf("%d.%d.%d.%d", f[0], f[1], f[2], f[3])
}

const resourceTemplate = `# UTF-8
#
# For more details about fixed file info 'ffi' see:
# http://msdn.microsoft.com/en-us/library/ms646997.aspx
VSVersionInfo(
  ffi=FixedFileInfo(
    filevers={{.Tuple}},
    prodvers={{.Tuple}},
    mask=0x3f,
    flags=0x0,
    OS=0x40004,
    fileType=0x1,
    subtype=0x0,
    date=(0, 0)
    ),
  kids=[
    StringFileInfo(
      [
      StringTable(
        u'040904B0',
        [StringStruct(u'CompanyName', {{py .CompanyName}}),
        StringStruct(u'FileDescription', {{py .FileDescription}}),
        StringStruct(u'FileVersion', {{py .Dotted}}),
        StringStruct(u'InternalName', {{py .InternalName}}),
        StringStruct(u'LegalCopyright', {{py .LegalCopyright}}),
        StringStruct(u'OriginalFilename', {{py .OriginalFilename}}),
        StringStruct(u'ProductName', {{py .ProductName}}),
        StringStruct(u'ProductVersion', {{py .Dotted}})])
      ]),
    VarFileInfo([VarStruct(u'Translation', [1033, 1200])])
  ]
)
`

var tmpl = template.Must(template.New("versionfile").Funcs(template.FuncMap{
	"py": pyString,
}).Parse(resourceTemplate))

// pyString quotes s as a Python unicode literal
func pyString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "u'" + r.Replace(s) + "'"
}

// Render writes the resource file for info
func Render(w io.Writer, info Info) error {
	fields, err := Normalize(info.Version)
	if err != nil {
		return err
	}
	data := struct {
		Info
		Tuple  string
		Dotted string
	}{
		Info:   info,
		Tuple:  fmt.Sprintf("(%d, %d, %d, %d)", fields[0], fields[1], fields[2], fields[3]),
		Dotted: Dotted(fields),
	}
	return tmpl.Execute(w, data)
}

// WriteFile renders info to path, creating the parent directory
func WriteFile(path string, info Info) error {
	var buf bytes.Buffer
	if err := Render(&buf, info); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
