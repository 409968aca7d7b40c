// Package devlink implements the claim-index arbitration and fixpoint
// update loop that decides, for each stable link under /dev, which device
// currently owns it, and the node finalizer that applies permissions and
// security labels once a device's node is ready.
package devlink

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"devlinkd/device"
	"devlinkd/escape"
	"devlinkd/linkerrors"
)

// maxClaimNameLen bounds the escaped directory-name component, matching the
// PATH_MAX-sized stack buffer the source encodes into.
const maxClaimNameLen = 4096

// ClaimIndex manages the on-disk "stack of claimants" directory for stable
// links, rooted at RunRoot (by default /run/udev/links).
type ClaimIndex struct {
	RunRoot string
	// DevRoot is the prefix stripped from a stable-link path before it is
	// escaped into a claim-index directory name, standing in for the
	// literal "/dev" the source strips. Defaults to "/dev" when empty, but
	// a Linker confined to an alternate filesystem root (or a test
	// harness with no real /dev available) sets it to match, so the same
	// stable-link path that was built under that root still resolves to
	// the same index directory a production /dev-rooted run would use.
	DevRoot string
}

// NewClaimIndex builds a ClaimIndex rooted at runRoot, treating devRoot as
// the stable-link path's "/dev" equivalent. An empty devRoot means "/dev".
func NewClaimIndex(runRoot, devRoot string) *ClaimIndex {
	return &ClaimIndex{RunRoot: runRoot, DevRoot: devRoot}
}

// Dir returns the claim-index directory for slink without creating it.
func (c *ClaimIndex) Dir(slink string) (string, error) {
	devRoot := c.DevRoot
	if devRoot == "" {
		devRoot = "/dev"
	}
	rel := strings.TrimPrefix(slink, devRoot)
	if rel == slink || !strings.HasPrefix(rel, "/") {
		return "", linkerrors.WrapWithLink(linkerrors.ErrNotUnderDev, linkerrors.ErrBadPath, "claimindex.Dir", slink)
	}

	escaped := escape.Escape(rel, maxClaimNameLen)
	if escaped == "" && rel != "" {
		return "", linkerrors.WrapWithLink(linkerrors.ErrEscapeOverflow, linkerrors.ErrBadPath, "claimindex.Dir", slink)
	}

	return filepath.Join(c.RunRoot, escaped), nil
}

// AddClaim records dev as a claimant of slink, creating the index directory
// if necessary. Each time the directory is removed out from under it between
// mkdir and open (ENOENT), it recreates the directory and tries again,
// matching the source's ENOENT retry loop.
func (c *ClaimIndex) AddClaim(dev device.Device, slink string) error {
	dir, err := c.Dir(slink)
	if err != nil {
		return err
	}
	file := filepath.Join(dir, dev.DeviceID())

	for {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return linkerrors.WrapWithLink(err, linkerrors.ErrIO, "claimindex.AddClaim", slink)
		}

		fd, err := unix.Open(file, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0444)
		if err == nil {
			unix.Close(fd)
			return nil
		}
		if err != unix.ENOENT {
			return linkerrors.WrapWithLink(err, linkerrors.ErrIO, "claimindex.AddClaim", slink)
		}
		// Directory vanished between MkdirAll and Open; retry.
	}
}

// RemoveClaim removes dev's claim on slink, then best-effort removes the
// index directory if it is now empty.
func (c *ClaimIndex) RemoveClaim(dev device.Device, slink string) error {
	dir, err := c.Dir(slink)
	if err != nil {
		return err
	}
	file := filepath.Join(dir, dev.DeviceID())

	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return linkerrors.WrapWithLink(err, linkerrors.ErrIO, "claimindex.RemoveClaim", slink)
	}
	_ = os.Remove(dir) // best-effort; fails silently if non-empty or already gone.
	return nil
}
