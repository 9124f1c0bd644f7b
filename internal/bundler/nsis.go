package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

const defaultTimestampURL = "http://timestamp.digicert.com"

// windowsTargets are searched in order for cross-compiled .exe binaries
var windowsTargets = []string{"x86_64-pc-windows-msvc", "x86_64-pc-windows-gnu"}

type nsisBundler struct {
	opts Options
}

func (b *nsisBundler) Format() platform.Format {
	return platform.NSIS
}

func (b *nsisBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	makensis, err := procexec.Require(b.opts.Runner, "makensis", "install NSIS (apt install nsis, or brew install makensis)")
	if err != nil {
		return nil, err
	}

	outDir := spec.bundleDir(platform.NSIS)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fsErr("create nsis directory", outDir, err)
	}

	exes := make([]string, 0, len(spec.Binaries))
	for _, name := range spec.Binaries {
		exe, err := windowsBinary(spec, name)
		if err != nil {
			return nil, err
		}
		exes = append(exes, exe)
	}

	output := filepath.Join(outDir, fmt.Sprintf("%s_%s_x64-setup.exe", spec.ProductName, spec.Version))
	script := filepath.Join(outDir, spec.ProductName+".nsi")
	if err := os.WriteFile(script, []byte(nsisScript(spec, exes, output)), 0644); err != nil {
		return nil, fsErr("write nsis script", script, err)
	}

	b.opts.Splog.Info("Building NSIS installer for %s", spec.ProductName)
	if _, err := b.opts.Runner.Run(ctx, procexec.Command{
		Name: makensis,
		Args: []string{"-V2", script},
		Dir:  outDir,
	}); err != nil {
		return nil, toolErr("makensis", err)
	}
	if err := expectArtifact(output); err != nil {
		return nil, err
	}

	if b.opts.Signing.WindowsCert != "" {
		if err := b.sign(ctx, output); err != nil {
			return nil, err
		}
	}
	return absAll([]string{output}), nil
}

// sign runs osslsigncode into a temp file and swaps it in
func (b *nsisBundler) sign(ctx context.Context, path string) error {
	tool, err := procexec.Require(b.opts.Runner, "osslsigncode", "install osslsigncode (apt install osslsigncode)")
	if err != nil {
		return err
	}
	ts := b.opts.Signing.TimestampURL
	if ts == "" {
		ts = defaultTimestampURL
	}
	signed := path + ".signed"
	args := []string{"sign", "-certs", b.opts.Signing.WindowsCert}
	if b.opts.Signing.WindowsKey != "" {
		args = append(args, "-key", b.opts.Signing.WindowsKey)
	}
	args = append(args, "-t", ts, "-in", path, "-out", signed)
	if _, err := b.opts.Runner.Run(ctx, procexec.Command{Name: tool, Args: args}); err != nil {
		return toolErr("osslsigncode", err)
	}
	if err := os.Rename(signed, path); err != nil {
		return fsErr("replace signed installer", path, err)
	}
	return nil
}

// windowsBinary finds name.exe under a windows target, then the host target dir
func windowsBinary(spec Spec, name string) (string, error) {
	targetRoot := filepath.Dir(spec.TargetDir)
	for _, triple := range windowsTargets {
		candidate := filepath.Join(targetRoot, triple, "release", name+".exe")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return spec.binaryPath(name + ".exe")
}

func nsisScript(spec Spec, exes []string, output string) string {
	publisher := spec.Publisher
	if publisher == "" {
		publisher = spec.ProductName
	}
	main := spec.MainBinary + ".exe"

	var b strings.Builder
	b.WriteString("Unicode true\n")
	b.WriteString("!include \"MUI2.nsh\"\n\n")
	fmt.Fprintf(&b, "Name %q\n", spec.ProductName)
	fmt.Fprintf(&b, "OutFile %q\n", output)
	fmt.Fprintf(&b, "InstallDir \"$PROGRAMFILES64\\%s\"\n", spec.ProductName)
	b.WriteString("RequestExecutionLevel admin\n")
	fmt.Fprintf(&b, "VIProductVersion \"%s\"\n", nsisVersion(spec.Version))
	fmt.Fprintf(&b, "VIAddVersionKey \"ProductName\" %q\n", spec.ProductName)
	fmt.Fprintf(&b, "VIAddVersionKey \"CompanyName\" %q\n", publisher)
	fmt.Fprintf(&b, "VIAddVersionKey \"FileVersion\" %q\n", spec.Version)
	if spec.Copyright != "" {
		fmt.Fprintf(&b, "VIAddVersionKey \"LegalCopyright\" %q\n", spec.Copyright)
	}
	b.WriteString("\n!insertmacro MUI_PAGE_DIRECTORY\n!insertmacro MUI_PAGE_INSTFILES\n")
	b.WriteString("!insertmacro MUI_UNPAGE_CONFIRM\n!insertmacro MUI_UNPAGE_INSTFILES\n")
	b.WriteString("!insertmacro MUI_LANGUAGE \"English\"\n\n")

	b.WriteString("Section \"Install\"\n")
	b.WriteString("  SetOutPath \"$INSTDIR\"\n")
	for _, exe := range exes {
		fmt.Fprintf(&b, "  File %q\n", exe)
	}
	b.WriteString("  WriteUninstaller \"$INSTDIR\\uninstall.exe\"\n")
	fmt.Fprintf(&b, "  CreateShortCut \"$SMPROGRAMS\\%s.lnk\" \"$INSTDIR\\%s\"\n", spec.ProductName, main)
	b.WriteString("SectionEnd\n\n")

	b.WriteString("Section \"Uninstall\"\n")
	for _, exe := range exes {
		fmt.Fprintf(&b, "  Delete \"$INSTDIR\\%s\"\n", filepath.Base(exe))
	}
	b.WriteString("  Delete \"$INSTDIR\\uninstall.exe\"\n")
	fmt.Fprintf(&b, "  Delete \"$SMPROGRAMS\\%s.lnk\"\n", spec.ProductName)
	b.WriteString("  RMDir \"$INSTDIR\"\n")
	b.WriteString("SectionEnd\n")
	return b.String()
}

// nsisVersion pads a semver core to the four numeric parts VIProductVersion requires
func nsisVersion(v string) string {
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	for len(parts) < 4 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:4], ".")
}
