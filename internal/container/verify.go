package container

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	runwayerrors "runway.dev/runway/internal/errors"
	"runway.dev/runway/internal/platform"
)

// FormatOf infers the format of an artifact from its name
func FormatOf(path string) (platform.Format, bool) {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".deb"):
		return platform.Deb, true
	case strings.HasSuffix(name, ".rpm"):
		return platform.RPM, true
	case strings.HasSuffix(name, ".AppImage"):
		return platform.AppImage, true
	case strings.HasSuffix(name, ".dmg"):
		return platform.DMG, true
	case strings.HasSuffix(name, ".exe"):
		return platform.NSIS, true
	case strings.HasSuffix(name, ".app"):
		return platform.App, true
	}
	return "", false
}

// VerifyArtifacts checks that every artifact exists, is non-empty, and
// carries the magic bytes of its format. Unknown extensions only get the
// existence and size checks.
func VerifyArtifacts(paths []string) error {
	for _, p := range paths {
		if err := verifyArtifact(p); err != nil {
			return err
		}
	}
	return nil
}

func verifyArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindBundler, "verify artifact", path,
			fmt.Errorf("%w: %v", runwayerrors.ErrArtifactMissing, err))
	}

	format, known := FormatOf(path)
	if info.IsDir() {
		if format != platform.App {
			return invalid(path, "is a directory")
		}
		if _, err := os.Stat(filepath.Join(path, "Contents", "Info.plist")); err != nil {
			return invalid(path, "has no Contents/Info.plist")
		}
		return nil
	}
	if info.Size() == 0 {
		return invalid(path, "is empty (0 bytes), the build failed or was incomplete")
	}
	if !known {
		return nil
	}
	ok, err := sniff(path, format, info.Size())
	if err != nil {
		return runwayerrors.NewWithPath(runwayerrors.KindIO, "verify artifact", path, err)
	}
	if !ok {
		return invalid(path, fmt.Sprintf("is not a valid %s file", format))
	}
	return nil
}

func invalid(path, reason string) error {
	return runwayerrors.NewWithPath(runwayerrors.KindBundler, "verify artifact", path,
		fmt.Errorf("%w: artifact %s", runwayerrors.ErrArtifactMissing, reason))
}

var (
	elfMagic  = []byte{0x7f, 'E', 'L', 'F'}
	appImage2 = []byte{'A', 'I', 0x02}
	squashfs  = []byte("hsqs")
	arMagic   = []byte("!<arch>")
	rpmMagic  = []byte{0xed, 0xab, 0xee, 0xdb}
	kolyMagic = []byte("koly")
	mzMagic   = []byte("MZ")
)

func sniff(path string, format platform.Format, size int64) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 16)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, err
	}
	head = head[:n]

	switch format {
	case platform.Deb:
		return bytes.HasPrefix(head, arMagic), nil
	case platform.RPM:
		return bytes.HasPrefix(head, rpmMagic), nil
	case platform.NSIS:
		return bytes.HasPrefix(head, mzMagic), nil
	case platform.DMG:
		tail := int64(512)
		if size < tail {
			tail = size
		}
		buf := make([]byte, tail)
		if _, err := f.ReadAt(buf, size-tail); err != nil && err != io.EOF {
			return false, err
		}
		return bytes.Contains(buf, kolyMagic), nil
	case platform.AppImage:
		if !bytes.HasPrefix(head, elfMagic) {
			return false, nil
		}
		if len(head) >= 11 && bytes.Equal(head[8:11], appImage2) {
			return true, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return false, err
		}
		return containsReader(f, squashfs)
	}
	return true, nil
}

// containsReader scans r for needle without loading it whole
func containsReader(r io.Reader, needle []byte) (bool, error) {
	buf := make([]byte, 64*1024)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			window := append(carry, buf[:n]...)
			if bytes.Contains(window, needle) {
				return true, nil
			}
			keep := len(needle) - 1
			if len(window) < keep {
				keep = len(window)
			}
			carry = append([]byte(nil), window[len(window)-keep:]...)
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}
