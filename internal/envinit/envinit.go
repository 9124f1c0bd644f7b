// Package envinit prepares the process environment before any command runs.
//
// Release tooling is often launched from GUI shells or CI runners that never
// sourced the user's login profile, so cargo, docker and signing credentials
// can be missing. Load fills those gaps from dotenv files in the workspace and
// from the login shell, never overriding a variable that is already set.
package envinit

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"runway.dev/runway/internal/procexec"
	"runway.dev/runway/internal/tui"
)

// DotenvFiles are read from the workspace root in priority order
var DotenvFiles = []string{".runway.env", ".env"}

// ShellTimeout bounds the login shell invocation
const ShellTimeout = 10 * time.Second

// shell-local variables that describe the child shell rather than the user
var ignoredShellVars = map[string]bool{
	"_":      true,
	"PWD":    true,
	"OLDPWD": true,
	"SHLVL":  true,
}

// Result lists what Load changed
type Result struct {
	// Files are the dotenv files that were read
	Files []string
	// FromDotenv and FromShell are the keys set from each source, sorted
	FromDotenv []string
	FromShell  []string
	// ShellSkipped is set when shell init was disabled or no shell was found
	ShellSkipped bool
}

// SkipShellInit reports whether RUNWAY_SKIP_SHELL_INIT or SKIP_SHELL_INIT is set
func SkipShellInit() bool {
	for _, key := range []string{"RUNWAY_SKIP_SHELL_INIT", "SKIP_SHELL_INIT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" && v != "0" && !strings.EqualFold(v, "false") {
			return true
		}
	}
	return false
}

// Load merges dotenv files under root and the login shell environment into
// the process environment. It must run before any goroutines are started.
// Shell failures are logged and otherwise ignored.
func Load(ctx context.Context, root string, runner procexec.Runner, splog *tui.Splog) (*Result, error) {
	if splog == nil {
		splog = tui.NewSplog()
	}
	res := &Result{}

	for _, name := range DotenvFiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
		res.FromDotenv = append(res.FromDotenv, setMissing(vars)...)
	}
	sort.Strings(res.FromDotenv)
	if len(res.FromDotenv) > 0 {
		splog.Debug("Loaded %d variable(s) from %s", len(res.FromDotenv), strings.Join(res.Files, ", "))
	}

	if SkipShellInit() {
		res.ShellSkipped = true
		return res, nil
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		splog.Debug("SHELL is not set; skipping shell init")
		res.ShellSkipped = true
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, ShellTimeout)
	defer cancel()
	out, err := runner.Run(ctx, procexec.Command{Name: shell, Args: []string{"-l", "-c", "env -0"}})
	if err != nil {
		splog.Debug("Shell init failed: %v", err)
		return res, nil
	}
	res.FromShell = setMissing(ParseEnv0(out))
	sort.Strings(res.FromShell)
	if len(res.FromShell) > 0 {
		splog.Debug("Imported %d variable(s) from %s", len(res.FromShell), shell)
	}
	return res, nil
}

// ParseEnv0 parses NUL-separated KEY=VALUE records as printed by `env -0`
func ParseEnv0(out []byte) map[string]string {
	vars := map[string]string{}
	for _, rec := range strings.Split(string(out), "\x00") {
		key, value, ok := strings.Cut(rec, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || ignoredShellVars[key] {
			continue
		}
		vars[key] = value
	}
	return vars
}

func setMissing(vars map[string]string) []string {
	var set []string
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err == nil {
			set = append(set, k)
		}
	}
	return set
}
