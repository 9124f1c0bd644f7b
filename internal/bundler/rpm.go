package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

const rpmRelease = "1"

type rpmBundler struct {
	opts Options
}

func (b *rpmBundler) Format() platform.Format {
	return platform.RPM
}

func (b *rpmBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	rpmbuild, err := procexec.Require(b.opts.Runner, "rpmbuild", "install rpm-build (dnf install rpm-build, or apt install rpm)")
	if err != nil {
		return nil, err
	}
	arch, err := platform.ArchFor(spec.Arch)
	if err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(spec.Binaries))
	for _, name := range spec.Binaries {
		src, err := spec.binaryPath(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	outDir := spec.bundleDir(platform.RPM)
	topDir := filepath.Join(outDir, ".rpmbuild-"+uuid.NewString())
	if err := os.MkdirAll(filepath.Join(topDir, "SPECS"), 0755); err != nil {
		return nil, fsErr("create rpm topdir", topDir, err)
	}
	defer func() { _ = os.RemoveAll(topDir) }()

	pkgName := sanitize(spec.Package)
	version := rpmVersion(spec.Version)
	specPath := filepath.Join(topDir, "SPECS", pkgName+".spec")
	if err := os.WriteFile(specPath, []byte(rpmSpec(spec, pkgName, version, sources)), 0644); err != nil {
		return nil, fsErr("write rpm spec", specPath, err)
	}

	b.opts.Splog.Info("Building RPM package for %s", spec.ProductName)
	if _, err := b.opts.Runner.Run(ctx, procexec.Command{
		Name: rpmbuild,
		Args: []string{"-bb", "--define", "_topdir " + topDir, "--target", arch.RPM, specPath},
	}); err != nil {
		return nil, toolErr("rpmbuild", err)
	}

	name := fmt.Sprintf("%s-%s-%s.%s.rpm", pkgName, version, rpmRelease, arch.RPM)
	built := filepath.Join(topDir, "RPMS", arch.RPM, name)
	if err := expectArtifact(built); err != nil {
		return nil, err
	}
	output := filepath.Join(outDir, name)
	if err := os.Rename(built, output); err != nil {
		return nil, fsErr("move rpm", built, err)
	}
	return absAll([]string{output}), nil
}

// rpmVersion replaces characters rpm forbids in Version; pre-releases sort
// before the release with '~'
func rpmVersion(v string) string {
	return strings.ReplaceAll(v, "-", "~")
}

func rpmSpec(spec Spec, pkgName, version string, sources []string) string {
	license := spec.License
	if license == "" {
		license = "Unknown"
	}
	summary := firstLine(spec.Description)
	if summary == "" {
		summary = spec.ProductName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", pkgName)
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Release: %s\n", rpmRelease)
	fmt.Fprintf(&b, "Summary: %s\n", summary)
	fmt.Fprintf(&b, "License: %s\n", license)
	if spec.Publisher != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", spec.Publisher)
	}
	b.WriteString("AutoReqProv: no\n")
	b.WriteString("%define __strip /bin/true\n")
	b.WriteString("%define debug_package %{nil}\n\n")

	b.WriteString("%description\n")
	desc := spec.Description
	if desc == "" {
		desc = summary
	}
	b.WriteString(desc + "\n\n")

	b.WriteString("%install\n")
	b.WriteString("mkdir -p %{buildroot}/usr/bin\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "install -m 0755 %q %%{buildroot}/usr/bin/%s\n", src, filepath.Base(src))
	}
	b.WriteString("\n%files\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "/usr/bin/%s\n", filepath.Base(src))
	}
	return b.String()
}
