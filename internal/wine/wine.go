// Package wine runs Windows tools on a non-Windows host through Wine and
// translates host paths into the paths those tools see.
package wine

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/psantana5/pyship/internal/runner"
)

// Env holds the Wine settings shared by every Windows command
type Env struct {
	// Binary is the wine launcher, usually "wine".
	Binary string
	// Prefix is the WINEPREFIX; empty means Wine's default (~/.wine).
	Prefix string
	// Extra is appended to every command's environment.
	Extra []string
}

// IsWindowsPath reports whether p already looks like a Windows path (C:\..., C:/..., \\server\...)
func IsWindowsPath(p string) bool {
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	return len(p) >= 3 && isDriveLetter(p[0]) && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func isDriveLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// WindowsPath maps a host path to the path a Windows program under Wine uses.
// Paths inside <prefix>/drive_c map to C:, any other absolute path maps to the
// Z: drive Wine exposes for the host root. Relative paths are resolved against base.
func (e Env) WindowsPath(base, p string) string {
	if p == "" || IsWindowsPath(p) {
		return p
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	p = path.Clean(filepath.ToSlash(p))

	if e.Prefix != "" {
		driveC := path.Clean(filepath.ToSlash(filepath.Join(e.Prefix, "drive_c")))
		if p == driveC {
			return `C:\`
		}
		if strings.HasPrefix(p, driveC+"/") {
			return `C:\` + strings.ReplaceAll(strings.TrimPrefix(p, driveC+"/"), "/", `\`)
		}
	}

	return `Z:` + strings.ReplaceAll(p, "/", `\`)
}

// Environ returns the environment entries for a Wine command
func (e Env) Environ() []string {
	env := []string{"WINEDEBUG=-all"}
	if e.Prefix != "" {
		env = append(env, "WINEPREFIX="+e.Prefix)
	}
	return append(env, e.Extra...)
}

// Command wraps a Windows executable (host or Windows path) in a wine invocation
func (e Env) Command(dir, exe string, args ...string) runner.Command {
	binary := e.Binary
	if binary == "" {
		binary = "wine"
	}
	return runner.Command{
		Name: binary,
		Args: append([]string{exe}, args...),
		Dir:  dir,
		Env:  e.Environ(),
	}
}
