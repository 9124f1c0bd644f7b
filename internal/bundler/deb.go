package bundler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"runway.dev/runway/internal/platform"
	"runway.dev/runway/internal/procexec"
)

type debBundler struct {
	opts Options
}

func (b *debBundler) Format() platform.Format {
	return platform.Deb
}

func (b *debBundler) Bundle(ctx context.Context, spec Spec) ([]string, error) {
	dpkg, err := procexec.Require(b.opts.Runner, "dpkg-deb", "install dpkg (apt install dpkg-dev)")
	if err != nil {
		return nil, err
	}
	arch, err := platform.ArchFor(spec.Arch)
	if err != nil {
		return nil, err
	}

	pkgName := sanitize(spec.Package)
	base := fmt.Sprintf("%s_%s_%s", pkgName, spec.Version, arch.Deb)
	outDir := spec.bundleDir(platform.Deb)
	stage := filepath.Join(outDir, base)
	if err := os.RemoveAll(stage); err != nil {
		return nil, fsErr("remove old staging directory", stage, err)
	}

	binDir := filepath.Join(stage, "usr", "bin")
	if err := copyBinaries(spec, spec.Binaries, binDir); err != nil {
		return nil, err
	}
	if len(spec.Categories) > 0 || len(spec.Icons) > 0 {
		if err := writeDebDesktop(spec, stage, pkgName); err != nil {
			return nil, err
		}
	}

	size, err := dirSizeKB(filepath.Join(stage, "usr"))
	if err != nil {
		return nil, fsErr("measure package", stage, err)
	}
	controlDir := filepath.Join(stage, "DEBIAN")
	if err := os.MkdirAll(controlDir, 0755); err != nil {
		return nil, fsErr("create DEBIAN directory", controlDir, err)
	}
	control := debControl(spec, pkgName, arch.Deb, size)
	if err := os.WriteFile(filepath.Join(controlDir, "control"), []byte(control), 0644); err != nil {
		return nil, fsErr("write control file", controlDir, err)
	}

	output := filepath.Join(outDir, base+".deb")
	b.opts.Splog.Info("Bundling %s", filepath.Base(output))
	if _, err := b.opts.Runner.Run(ctx, procexec.Command{
		Name: dpkg,
		Args: []string{"--build", "--root-owner-group", stage, output},
	}); err != nil {
		return nil, toolErr("dpkg-deb", err)
	}
	if err := expectArtifact(output); err != nil {
		return nil, err
	}
	return absAll([]string{output}), nil
}

func debControl(spec Spec, pkgName, arch string, sizeKB int64) string {
	maintainer := spec.Publisher
	if maintainer == "" {
		maintainer = "Unknown"
	}
	description := firstLine(spec.Description)
	if description == "" {
		description = spec.ProductName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Package: %s\n", pkgName)
	fmt.Fprintf(&b, "Version: %s\n", spec.Version)
	fmt.Fprintf(&b, "Architecture: %s\n", arch)
	fmt.Fprintf(&b, "Maintainer: %s\n", maintainer)
	fmt.Fprintf(&b, "Installed-Size: %d\n", sizeKB)
	b.WriteString("Section: utils\n")
	b.WriteString("Priority: optional\n")
	fmt.Fprintf(&b, "Description: %s\n", description)
	return b.String()
}

func writeDebDesktop(spec Spec, stage, pkgName string) error {
	dir := filepath.Join(stage, "usr", "share", "applications")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fsErr("create applications directory", dir, err)
	}
	icon := ""
	if png := spec.firstIcon(".png"); png != "" {
		iconDir := filepath.Join(stage, "usr", "share", "pixmaps")
		if err := copyFile(png, filepath.Join(iconDir, pkgName+".png"), 0644); err != nil {
			return fsErr("copy icon", png, err)
		}
		icon = pkgName
	}
	path := filepath.Join(dir, pkgName+".desktop")
	if err := os.WriteFile(path, []byte(desktopEntry(spec, icon)), 0644); err != nil {
		return fsErr("write desktop file", path, err)
	}
	return nil
}

func dirSizeKB(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return (total + 1023) / 1024, err
}
