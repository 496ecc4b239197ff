// Package locator finds the client tool executable on the host that runs it.
//
// PATH updates made for a job are not always honored by the process that
// launches the tool, so the absolute path is resolved explicitly and
// substituted into argv[0].
package locator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pterm/pterm"
)

// OSFamily identifies the platform that will run the tool.
type OSFamily string

const (
	// Darwin is macOS.
	Darwin OSFamily = "DARWIN"
	// Unix is Linux and other POSIX systems.
	Unix OSFamily = "UNIX"
	// Windows uses ".exe" and ";" separated search paths.
	Windows OSFamily = "WINDOWS"
	// ZOS is IBM z/OS.
	ZOS OSFamily = "ZOS"
)

// Detect returns the family of the local host.
func Detect() OSFamily {
	return familyOf(runtime.GOOS)
}

func familyOf(goos string) OSFamily {
	switch goos {
	case "darwin":
		return Darwin
	case "windows":
		return Windows
	case "zos":
		return ZOS
	default:
		return Unix
	}
}

// ExecutableName returns the platform file name for tool.
func ExecutableName(tool string, family OSFamily) string {
	if family == Windows && !strings.HasSuffix(strings.ToLower(tool), ".exe") {
		return tool + ".exe"
	}
	return tool
}

// ListSeparator returns the search path separator for family.
func ListSeparator(family OSFamily) string {
	if family == Windows {
		return ";"
	}
	return ":"
}

// Locate returns the absolute paths of every regular, executable file named
// tool in the directories of searchPath, in search order and without
// duplicates. Directories are scanned non-recursively. Nothing found is not an
// error; the result is simply empty.
func Locate(tool, searchPath string, family OSFamily) []string {
	name := ExecutableName(tool, family)
	seen := make(map[string]bool)
	var found []string

	for _, dir := range strings.Split(searchPath, ListSeparator(family)) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}

		candidate, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil || seen[candidate] {
			continue
		}

		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if family != Windows && info.Mode().Perm()&0o111 == 0 {
			continue
		}

		seen[candidate] = true
		found = append(found, candidate)
	}

	return found
}

// ErrToolNotFound reports that no executable of the requested name is on the
// search path.
var ErrToolNotFound = errors.New("client tool not found")

// Finder lists the executables named tool on searchPath of one host, in the
// order of Locate. An empty searchPath means the host's own PATH.
type Finder interface {
	Find(ctx context.Context, tool, searchPath string, family OSFamily) ([]string, error)
}

// Local is the Finder for this machine.
type Local struct{}

// Find implements Finder.
func (Local) Find(_ context.Context, tool, searchPath string, family OSFamily) ([]string, error) {
	if searchPath == "" {
		searchPath = os.Getenv("PATH")
	}
	return Locate(tool, searchPath, family), nil
}

// FixArgv0 replaces argv[0] with the first executable named argv[0] found on
// the PATH entry of env (falling back to the current process PATH). When none
// is found argv is returned unchanged so the launch fails naturally.
func FixArgv0(argv []string, env []string, family OSFamily, logger *pterm.Logger) []string {
	return Resolve(context.Background(), argv, env, family, Local{}, logger)
}

// Resolve is FixArgv0 searching the host behind finder. The PATH entry of env
// is passed on as the search path.
func Resolve(ctx context.Context, argv []string, env []string, family OSFamily, finder Finder, logger *pterm.Logger) []string {
	if len(argv) == 0 || isAbs(argv[0]) {
		return argv
	}

	found, err := finder.Find(ctx, argv[0], lookupEnv(env, "PATH"), family)
	if err == nil && len(found) == 0 {
		err = ErrToolNotFound
	}
	if err != nil {
		if logger != nil {
			logger.Warn("could not find client tool on the target host",
				logger.Args("tool", argv[0], "os", string(family), "error", err.Error()))
		}
		return argv
	}

	if logger != nil {
		logger.Debug("found client tool executables",
			logger.Args("tool", argv[0], "os", string(family), "paths", strings.Join(found, ",")))
	}

	fixed := make([]string, len(argv))
	copy(fixed, argv)
	fixed[0] = found[0]
	return fixed
}

// isAbs accepts POSIX absolute paths on any local OS, since the target host
// may differ from this one.
func isAbs(name string) bool {
	return strings.HasPrefix(name, "/") || filepath.IsAbs(name)
}

// lookupEnv returns the last value of key in a KEY=VALUE list, matching how
// exec resolves duplicates.
func lookupEnv(env []string, key string) string {
	value := ""
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k == key {
			value = v
		}
	}
	return value
}
