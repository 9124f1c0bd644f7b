package testhelpers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CrateSpec describes one workspace member for WriteWorkspace
type CrateSpec struct {
	Name    string
	Version string
	// PathDeps are internal dependencies declared with a path
	PathDeps []string
	// RegistryDeps are declared without a path, even when they name a member
	RegistryDeps []string
	// DevPathDeps are path dependencies under [dev-dependencies]
	DevPathDeps []string
	// Binary adds src/main.rs so the crate has an implicit bin target
	Binary bool
	// Extra is appended verbatim to the manifest
	Extra string
}

// WriteWorkspace writes a virtual workspace with every crate under crates/<name>.
// Returns the workspace root.
func WriteWorkspace(root string, version string, crates []CrateSpec) (string, error) {
	var rootManifest strings.Builder
	rootManifest.WriteString("[workspace]\nmembers = [\"crates/*\"]\nresolver = \"2\"\n")
	if version != "" {
		fmt.Fprintf(&rootManifest, "\n[workspace.package]\nversion = %q\n", version)
	}
	if err := writeFile(filepath.Join(root, "Cargo.toml"), rootManifest.String()); err != nil {
		return "", err
	}

	for _, c := range crates {
		if err := writeCrate(root, c); err != nil {
			return "", err
		}
	}
	return root, nil
}

func writeCrate(root string, c CrateSpec) error {
	dir := filepath.Join(root, "crates", c.Name)
	var b strings.Builder
	fmt.Fprintf(&b, "[package]\nname = %q\n", c.Name)
	if c.Version == "" {
		b.WriteString("version.workspace = true\n")
	} else {
		fmt.Fprintf(&b, "version = %q\n", c.Version)
	}

	deps := append([]string(nil), c.PathDeps...)
	sort.Strings(deps)
	b.WriteString("\n[dependencies]\n")
	for _, d := range deps {
		fmt.Fprintf(&b, "%s = { path = \"../%s\" }\n", d, d)
	}
	for _, d := range c.RegistryDeps {
		fmt.Fprintf(&b, "%s = \"1\"\n", d)
	}
	if len(c.DevPathDeps) > 0 {
		b.WriteString("\n[dev-dependencies]\n")
		for _, d := range c.DevPathDeps {
			fmt.Fprintf(&b, "%s = { path = \"../%s\" }\n", d, d)
		}
	}
	if c.Extra != "" {
		b.WriteString("\n" + c.Extra + "\n")
	}

	if err := writeFile(filepath.Join(dir, "Cargo.toml"), b.String()); err != nil {
		return err
	}
	src := "pub fn hello() {}\n"
	file := "lib.rs"
	if c.Binary {
		src = "fn main() {}\n"
		file = "main.rs"
	}
	return writeFile(filepath.Join(dir, "src", file), src)
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
