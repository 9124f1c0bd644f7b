package bundler

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

type appBundler struct {
	opts Options
}

func (b *appBundler) Format() platform.Format {
	return platform.App
}

func (b *appBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	outDir := spec.bundleDir(platform.App)
	app, err := b.build(ctx, spec, outDir)
	if err != nil {
		return nil, err
	}
	return absAll([]string{app}), nil
}

// build assembles <Product>.app under dir, signing it when an identity is set
func (b *appBundler) build(ctx context.Context, spec Spec, dir string) (string, error) {
	app := filepath.Join(dir, spec.ProductName+".app")
	b.opts.Splog.Info("Bundling %s.app", spec.ProductName)
	if err := os.RemoveAll(app); err != nil {
		return "", fsErr("remove old app bundle", app, err)
	}

	contents := filepath.Join(app, "Contents")
	macosDir := filepath.Join(contents, "MacOS")
	resources := filepath.Join(contents, "Resources")
	for _, d := range []string{macosDir, resources} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", fsErr("create app bundle", d, err)
		}
	}

	for _, name := range spec.Binaries {
		dest := resources
		if name == spec.MainBinary {
			dest = macosDir
		}
		if err := copyBinaries(spec, []string{name}, dest); err != nil {
			return "", err
		}
	}

	iconFile := ""
	if icns := spec.firstIcon(".icns"); icns != "" {
		iconFile = spec.ProductName + ".icns"
		if err := copyFile(icns, filepath.Join(resources, iconFile), 0644); err != nil {
			return "", fsErr("copy icon", icns, err)
		}
	}

	plist, err := infoPlist(spec, iconFile)
	if err != nil {
		return "", err
	}
	plistPath := filepath.Join(contents, "Info.plist")
	if err := os.WriteFile(plistPath, plist, 0644); err != nil {
		return "", fsErr("write Info.plist", plistPath, err)
	}

	if b.opts.Signing.Identity != "" {
		codesign, err := procexec.Require(b.opts.Runner, "codesign", "install the Xcode command line tools (xcode-select --install)")
		if err != nil {
			return "", err
		}
		if _, err := b.opts.Runner.Run(ctx, procexec.Command{
			Name: codesign,
			Args: []string{"--force", "--deep", "-s", b.opts.Signing.Identity, app},
		}); err != nil {
			return "", toolErr("codesign", err)
		}
	}
	return app, nil
}

type plistEntry struct {
	key   string
	value any
}

// infoPlist renders the bundle's Info.plist
func infoPlist(spec Spec, iconFile string) ([]byte, error) {
	entries := []plistEntry{
		{"CFBundleDevelopmentRegion", "English"},
		{"CFBundleDisplayName", spec.ProductName},
		{"CFBundleExecutable", spec.MainBinary},
		{"CFBundleIdentifier", spec.Identifier},
		{"CFBundleInfoDictionaryVersion", "6.0"},
		{"CFBundleName", spec.ProductName},
		{"CFBundlePackageType", "APPL"},
		{"CFBundleShortVersionString", spec.Version},
		{"CFBundleVersion", spec.Version},
	}
	if iconFile != "" {
		entries = append(entries, plistEntry{"CFBundleIconFile", iconFile})
	}
	if len(spec.Categories) > 0 {
		entries = append(entries, plistEntry{"LSApplicationCategoryType", spec.Categories[0]})
	}
	entries = append(entries, plistEntry{"NSHighResolutionCapable", true})
	if spec.Copyright != "" {
		entries = append(entries, plistEntry{"NSHumanReadableCopyright", spec.Copyright})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	buf.WriteString("<plist version=\"1.0\">\n<dict>\n")
	for _, e := range entries {
		buf.WriteString("\t<key>")
		if err := xml.EscapeText(&buf, []byte(e.key)); err != nil {
			return nil, err
		}
		buf.WriteString("</key>\n")
		switch v := e.value.(type) {
		case bool:
			fmt.Fprintf(&buf, "\t<%t/>\n", v)
		case string:
			buf.WriteString("\t<string>")
			if err := xml.EscapeText(&buf, []byte(v)); err != nil {
				return nil, err
			}
			buf.WriteString("</string>\n")
		}
	}
	buf.WriteString("</dict>\n</plist>\n")
	return buf.Bytes(), nil
}
