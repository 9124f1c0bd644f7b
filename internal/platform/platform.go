// Package platform names the installer formats runway produces and decides
// which of them the current host can build natively.
package platform

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	runwayerrors "runway.dev/runway/internal/errors"
)

// Format is an installer format
type Format string

const (
	App       Format = "app"
	DMG       Format = "dmg"
	Universal Format = "universal"
	Deb       Format = "deb"
	RPM       Format = "rpm"
	AppImage  Format = "appimage"
	NSIS      Format = "nsis"
)

// All lists every format in display order
var All = []Format{Deb, RPM, AppImage, App, DMG, Universal, NSIS}

var aliases = map[string]Format{
	"macos": App,
	"exe":   NSIS,
}

// ParseFormat accepts a format name or alias, case-insensitively
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if f, ok := aliases[name]; ok {
		return f, nil
	}
	for _, f := range All {
		if string(f) == name {
			return f, nil
		}
	}
	return "", runwayerrors.Errorf(runwayerrors.KindCLI, "unknown bundle format %q (expected one of %s)", s, joinFormats(All))
}

// ParseFormats parses a comma separated list, dropping duplicates
func ParseFormats(s string) ([]Format, error) {
	var formats []Format
	seen := map[Format]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, nil
}

// Family groups formats by target OS
func (f Format) Family() string {
	switch f {
	case App, DMG, Universal:
		return "darwin"
	case NSIS:
		return "windows"
	default:
		return "linux"
	}
}

// Host is the operating system and architecture runway runs on
type Host struct {
	OS   string
	Arch string
}

func (h Host) String() string {
	return h.OS + "/" + h.Arch
}

// Detect returns the current host
func Detect() Host {
	return Host{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// IsNative reports whether host can build f without a container
func IsNative(f Format, host Host) bool {
	switch host.OS {
	case "darwin":
		return f == App || f == DMG || f == Universal
	case "linux":
		return f == Deb || f == RPM || f == AppImage || f == NSIS
	case "windows":
		return f == NSIS
	}
	return false
}

// Classify splits formats into those built on the host and those delegated
// to the build container. Input order is preserved in both outputs.
func Classify(formats []Format, host Host) (native, container []Format) {
	for _, f := range formats {
		if IsNative(f, host) {
			native = append(native, f)
		} else {
			container = append(container, f)
		}
	}
	return native, container
}

// ContainerCapable reports whether the Linux build container can produce f
func ContainerCapable(f Format) bool {
	return IsNative(f, Host{OS: "linux"})
}

// Sorted returns formats in display order
func Sorted(formats []Format) []Format {
	rank := map[Format]int{}
	for i, f := range All {
		rank[f] = i
	}
	out := append([]Format(nil), formats...)
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}

func joinFormats(formats []Format) string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Strings renders formats as their names
func Strings(formats []Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// ArtifactPattern is the file glob a bundler's output matches inside its
// bundle/<format> directory
func ArtifactPattern(f Format) string {
	switch f {
	case Deb:
		return "*.deb"
	case RPM:
		return "*.rpm"
	case AppImage:
		return "*.AppImage"
	case NSIS:
		return "*-setup.exe"
	case DMG:
		return "*.dmg"
	case App:
		return "*.app"
	}
	return "*"
}

// Arch maps a Go architecture to the names packaging tools expect
type Arch struct {
	// Rust is the target triple prefix (x86_64, aarch64)
	Rust string
	// Deb is the Debian architecture (amd64, arm64)
	Deb string
	// RPM is the rpm target (x86_64, aarch64)
	RPM string
	// AppImage is the linuxdeploy suffix (x86_64, aarch64)
	AppImage string
}

// ArchFor maps GOARCH values; unknown architectures are an error
func ArchFor(goarch string) (Arch, error) {
	switch goarch {
	case "amd64", "x86_64":
		return Arch{Rust: "x86_64", Deb: "amd64", RPM: "x86_64", AppImage: "x86_64"}, nil
	case "arm64", "aarch64":
		return Arch{Rust: "aarch64", Deb: "arm64", RPM: "aarch64", AppImage: "aarch64"}, nil
	}
	return Arch{}, fmt.Errorf("%w: %s", runwayerrors.ErrUnsupportedArch, goarch)
}
