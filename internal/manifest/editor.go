package manifest

import (
	"bytes"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	runwayerrors "runway.dev/runway/internal/errors"
)

var (
	headerRe        = regexp.MustCompile(`^\s*\[\[?(.+?)\]\]?\s*(#.*)?$`)
	keyRe           = regexp.MustCompile(`^\s*([A-Za-z0-9_\-."' ]+?)\s*=\s*`)
	stringRe        = regexp.MustCompile(`^("[^"\\]*"|'[^']*')`)
	inlineVersionRe = regexp.MustCompile(`(\bversion\s*=\s*)("[^"\\]*"|'[^']*')`)
)

var depKinds = map[string]bool{
	"dependencies":       true,
	"dev-dependencies":   true,
	"build-dependencies": true,
}

// Editor rewrites version fields of one Cargo.toml in place. Only the value
// text changes; comments, ordering and layout survive untouched.
type Editor struct {
	path  string
	orig  []byte
	mode  os.FileMode
	lines []string
}

type entry struct {
	line int
	key  string
	// value is the offset of the value text in the line
	value int
}

type table struct {
	name    []string
	entries []entry
}

// OpenEditor reads the manifest at path for editing
func OpenEditor(path string) (*Editor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "stat manifest", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, runwayerrors.NewWithPath(runwayerrors.KindIO, "read manifest", path, err)
	}
	return &Editor{
		path:  path,
		orig:  data,
		mode:  info.Mode().Perm(),
		lines: strings.Split(string(data), "\n"),
	}, nil
}

// Path returns the manifest path
func (e *Editor) Path() string {
	return e.path
}

// Bytes returns the edited document
func (e *Editor) Bytes() []byte {
	return []byte(strings.Join(e.lines, "\n"))
}

// Changed reports whether any edit altered the document
func (e *Editor) Changed() bool {
	return !bytes.Equal(e.orig, e.Bytes())
}

// SetWorkspaceVersion sets version in [workspace.package]
func (e *Editor) SetWorkspaceVersion(version string) bool {
	return e.setTableVersion([]string{"workspace", "package"}, version)
}

// SetPackageVersion sets version in [package]. A version inherited with
// version.workspace = true is left alone.
func (e *Editor) SetPackageVersion(version string) bool {
	return e.setTableVersion([]string{"package"}, version)
}

func (e *Editor) setTableVersion(name []string, version string) bool {
	changed := false
	for _, t := range e.parse() {
		if !slices.Equal(t.name, name) {
			continue
		}
		for _, en := range t.entries {
			if en.key == "version" && e.setString(en, version) {
				changed = true
			}
		}
	}
	return changed
}

// SetDependencyVersions updates the version requirement of every path
// dependency on a crate internal reports true for, in every dependency
// table including [workspace.dependencies] and target tables. Dependencies
// that declare no version keep having none. Returns the number of updated
// requirements.
func (e *Editor) SetDependencyVersions(internal func(name string) bool, version string) (int, error) {
	n := 0
	for _, t := range e.parse() {
		switch {
		case isDepTable(t.name):
			for _, en := range t.entries {
				ok, err := e.setInlineVersion(en, internal, version)
				if err != nil {
					return n, err
				}
				if ok {
					n++
				}
			}
		case len(t.name) > 1 && isDepTable(t.name[:len(t.name)-1]):
			// [dependencies.core] style
			byKey := map[string]entry{}
			for _, en := range t.entries {
				byKey[en.key] = en
			}
			name := t.name[len(t.name)-1]
			if pkg, ok := byKey["package"]; ok {
				if s, ok := e.stringAt(pkg); ok {
					name = s
				}
			}
			ver, hasVersion := byKey["version"]
			if _, hasPath := byKey["path"]; !hasPath || !hasVersion || !internal(name) {
				continue
			}
			if e.setString(ver, version) {
				n++
			}
		}
	}
	return n, nil
}

func (e *Editor) setInlineVersion(en entry, internal func(string) bool, version string) (bool, error) {
	line := e.lines[en.line]
	value := line[en.value:]
	if !strings.HasPrefix(value, "{") {
		return false, nil
	}
	var decl map[string]any
	if _, err := toml.Decode("dep = "+value, &decl); err != nil {
		return false, runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "parse dependency "+en.key, e.path, err)
	}
	fields, _ := decl["dep"].(map[string]any)
	name := en.key
	if pkg, ok := fields["package"].(string); ok && pkg != "" {
		name = pkg
	}
	if _, ok := fields["path"].(string); !ok || !internal(name) {
		return false, nil
	}
	if _, ok := fields["version"].(string); !ok {
		return false, nil
	}
	m := inlineVersionRe.FindStringSubmatchIndex(value)
	if m == nil {
		return false, nil
	}
	quote := value[m[4]]
	updated := value[:m[4]] + string(quote) + version + string(quote) + value[m[5]:]
	if updated == value {
		return false, nil
	}
	e.lines[en.line] = line[:en.value] + updated
	return true, nil
}

func (e *Editor) stringAt(en entry) (string, bool) {
	m := stringRe.FindString(e.lines[en.line][en.value:])
	if m == "" {
		return "", false
	}
	return m[1 : len(m)-1], true
}

// setString replaces a plain string value, keeping its quote style
func (e *Editor) setString(en entry, version string) bool {
	line := e.lines[en.line]
	m := stringRe.FindString(line[en.value:])
	if m == "" {
		return false
	}
	quote := string(m[0])
	updated := line[:en.value] + quote + version + quote + line[en.value+len(m):]
	if updated == line {
		return false
	}
	e.lines[en.line] = updated
	return true
}

// Save validates the edited document and writes it back when it changed
func (e *Editor) Save() error {
	if !e.Changed() {
		return nil
	}
	data := e.Bytes()
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindWorkspace, "validate edited manifest", e.path, err)
	}
	if err := os.WriteFile(e.path, data, e.mode); err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindIO, "write manifest", e.path, err)
	}
	return nil
}

// Restore writes the document back as it was read
func (e *Editor) Restore() error {
	if err := os.WriteFile(e.path, e.orig, e.mode); err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindIO, "restore manifest", e.path, err)
	}
	e.lines = strings.Split(string(e.orig), "\n")
	return nil
}

// parse splits the document into tables of top-level key lines. Lines
// inside multi-line strings and arrays never count as keys.
func (e *Editor) parse() []table {
	tables := []table{{}}
	var multiline string
	depth := 0
	for i, line := range e.lines {
		if multiline != "" {
			if strings.Count(line, multiline)%2 == 1 {
				multiline = ""
			}
			continue
		}
		if depth > 0 {
			depth += bracketDelta(line)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if m := headerRe.FindStringSubmatch(line); m != nil && strings.HasPrefix(trimmed, "[") {
			tables = append(tables, table{name: splitKey(m[1])})
			continue
		}
		loc := keyRe.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		cur := &tables[len(tables)-1]
		cur.entries = append(cur.entries, entry{
			line:  i,
			key:   strings.Join(splitKey(line[loc[2]:loc[3]]), "."),
			value: loc[1],
		})
		value := line[loc[1]:]
		for _, delim := range []string{`"""`, `'''`} {
			if strings.Count(value, delim)%2 == 1 {
				multiline = delim
			}
		}
		if strings.HasPrefix(value, "[") {
			depth = bracketDelta(value)
		}
	}
	return tables
}

// bracketDelta counts [ minus ] outside strings and comments
func bracketDelta(s string) int {
	delta := 0
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '#':
			return delta
		case r == '[':
			delta++
		case r == ']':
			delta--
		}
	}
	return delta
}

// splitKey splits a dotted TOML key, dropping quotes and surrounding spaces
func splitKey(key string) []string {
	var parts []string
	var b strings.Builder
	var quote rune
	for _, r := range key {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '.':
			parts = append(parts, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(b.String()))
}

// isDepTable matches [dependencies], [workspace.dependencies] and
// [target.<cfg>.dependencies] with their dev and build variants
func isDepTable(name []string) bool {
	switch len(name) {
	case 1:
		return depKinds[name[0]]
	case 2:
		return name[0] == "workspace" && name[1] == "dependencies"
	case 3:
		return name[0] == "target" && depKinds[name[2]]
	}
	return false
}
