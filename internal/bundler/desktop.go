package bundler

import (
	"fmt"
	"strings"
)

// desktopEntry renders a freedesktop .desktop file for the main binary
func desktopEntry(spec Spec, icon string) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", spec.ProductName)
	fmt.Fprintf(&b, "Exec=%s\n", spec.MainBinary)
	if icon != "" {
		fmt.Fprintf(&b, "Icon=%s\n", icon)
	}
	if spec.Description != "" {
		fmt.Fprintf(&b, "Comment=%s\n", firstLine(spec.Description))
	}
	if len(spec.Categories) > 0 {
		fmt.Fprintf(&b, "Categories=%s;\n", strings.Join(spec.Categories, ";"))
	}
	b.WriteString("Terminal=false\n")
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
