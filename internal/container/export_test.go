package container

import "time"

// SetGuardTimeout shortens the cleanup bound for tests
func SetGuardTimeout(g *Guard, d time.Duration) {
	g.timeout = d
}

// SetOwner fixes the --user value for tests
func SetOwner(b *Builder, uid, gid int) {
	b.uid, b.gid = uid, gid
}

// SetArch fixes the container architecture for tests
func SetArch(b *Builder, goarch string) {
	b.arch = goarch
}
