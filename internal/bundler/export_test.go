package bundler

var (
	NSISVersion = nsisVersion
	RPMVersion  = rpmVersion
)

func InfoPlist(spec Spec, iconFile string) (string, error) {
	b, err := infoPlist(spec, iconFile)
	return string(b), err
}

func DesktopEntry(spec Spec, icon string) string {
	return desktopEntry(spec, icon)
}
