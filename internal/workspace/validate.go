package workspace

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Severity of a validation issue
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue is one finding from Validate
type Issue struct {
	Package  string
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Package, i.Message)
}

// Validate checks the workspace for problems that would break a release.
// Issues are sorted by package name.
func Validate(w *Workspace) []Issue {
	var issues []Issue

	for _, name := range w.Names() {
		pkg := w.Packages[name]
		if !IsValidVersion(pkg.Version) {
			issues = append(issues, Issue{name, SeverityError, fmt.Sprintf("version %q is not valid semver", pkg.Version)})
		}
		if w.Version != "" && pkg.Version != w.Version {
			issues = append(issues, Issue{name, SeverityWarning,
				fmt.Sprintf("version %s differs from workspace version %s", pkg.Version, w.Version)})
		}

		for _, dep := range pkg.Dependencies {
			if _, internal := w.Internal[name][dep.Name]; !internal {
				continue
			}
			target := w.Packages[dep.Name]
			if dep.Version == "" {
				if pkg.Publish {
					issues = append(issues, Issue{name, SeverityWarning,
						fmt.Sprintf("path dependency %s has no version requirement and cannot be published", dep.Name)})
				}
				continue
			}
			if !RequirementSatisfied(dep.Version, target.Version) {
				issues = append(issues, Issue{name, SeverityError,
					fmt.Sprintf("requires %s %s but the workspace has %s", dep.Name, dep.Version, target.Version)})
			}
			if pkg.Publish && !target.Publish {
				issues = append(issues, Issue{name, SeverityError,
					fmt.Sprintf("depends on %s which has publish = false", dep.Name)})
			}
		}
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Package < issues[j].Package })
	return issues
}

// HasErrors reports whether any issue is an error
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// IsValidVersion reports whether v is a full semantic version (no leading "v")
func IsValidVersion(v string) bool {
	if v == "" || strings.HasPrefix(v, "v") {
		return false
	}
	canonical := "v" + v
	return semver.IsValid(canonical) && strings.Count(strings.SplitN(v, "-", 2)[0], ".") == 2
}

// RequirementSatisfied checks a Cargo version requirement against a version.
// Supports bare and caret requirements, "=" exact and "~" tilde forms; other
// operators are treated as satisfied.
func RequirementSatisfied(req, version string) bool {
	req = strings.TrimSpace(req)
	if req == "" || req == "*" || strings.ContainsAny(req, "<>,") {
		return true
	}
	v := "v" + version
	if !semver.IsValid(v) {
		return false
	}

	switch {
	case strings.HasPrefix(req, "="):
		r := "v" + strings.TrimSpace(req[1:])
		return semver.IsValid(r) && semver.Compare(v, r) == 0
	case strings.HasPrefix(req, "~"):
		r := "v" + strings.TrimSpace(req[1:])
		if !semver.IsValid(r) || semver.Compare(v, r) < 0 {
			return false
		}
		if strings.Count(req, ".") == 0 {
			return semver.Major(v) == semver.Major(r)
		}
		return semver.MajorMinor(v) == semver.MajorMinor(r)
	default:
		r := "v" + strings.TrimPrefix(req, "^")
		if !semver.IsValid(r) || semver.Compare(v, r) < 0 {
			return false
		}
		if semver.Major(r) != "v0" {
			return semver.Major(v) == semver.Major(r)
		}
		if semver.MajorMinor(r) != "v0.0" || strings.Count(req, ".") < 2 {
			return semver.MajorMinor(v) == semver.MajorMinor(r)
		}
		return semver.Compare(v, r) == 0
	}
}
