// Package symlink implements idempotent, race-safe creation of the relative
// symlinks the device-node linker publishes under /dev.
package symlink

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"devlinkd/device"
	"devlinkd/linkerrors"
	"devlinkd/logging"
	"devlinkd/seclabel"
)

// Outcome describes what WriteSymlink actually did to the filesystem.
type Outcome int

const (
	// Unchanged means an existing symlink already pointed at the right
	// target; only its label/timestamp were refreshed.
	Unchanged Outcome = iota
	// Created means no entry existed at slink and a fresh symlink was made.
	Created
	// Replaced means a stale or wrong entry at slink was atomically
	// swapped out via a staged rename.
	Replaced
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Created:
		return "created"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Writer publishes relative symlinks, consulting a security-label registry
// to bracket every symlink() call with the creation-label hooks the teacher
// carries over from the C source's mac_selinux_create_file_prepare/clear.
type Writer struct {
	Labels *seclabel.Registry
}

// NewWriter builds a Writer backed by the standard selinux/smack registry.
func NewWriter() *Writer {
	return &Writer{Labels: seclabel.NewRegistry()}
}

// WriteSymlink creates or repairs the symlink at slink so that it points,
// relatively, at targetNode. dev is consulted only for its DeviceID, used to
// name the staging file during a replace.
func (w *Writer) WriteSymlink(dev device.Device, targetNode, slink string) (Outcome, error) {
	if !filepath.IsAbs(targetNode) || !filepath.IsAbs(slink) {
		return Unchanged, linkerrors.New(linkerrors.ErrBadPath, "symlink.WriteSymlink", "targetNode and slink must be absolute")
	}

	relTarget, err := filepath.Rel(filepath.Dir(slink), targetNode)
	if err != nil {
		return Unchanged, linkerrors.WrapWithDetail(err, linkerrors.ErrNoRelativePath.Kind, "symlink.WriteSymlink", linkerrors.ErrNoRelativePath.Detail)
	}

	var st unix.Stat_t
	lstatErr := unix.Lstat(slink, &st)
	switch {
	case lstatErr == nil:
		mode := st.Mode & unix.S_IFMT
		if mode == unix.S_IFBLK || mode == unix.S_IFCHR {
			return Unchanged, linkerrors.WrapWithLink(linkerrors.ErrRealDeviceNode, linkerrors.ErrConflict, "symlink.WriteSymlink", slink)
		}
		if mode == unix.S_IFLNK {
			existing, err := os.Readlink(slink)
			if err == nil && existing == relTarget {
				logging.Debug("preserving existing symlink", "link", slink, "target", relTarget)
				w.fixLabel(slink)
				_ = touchNoFollow(slink)
				return Unchanged, nil
			}
		}
	case !os.IsNotExist(lstatErr):
		return Unchanged, linkerrors.Wrap(lstatErr, linkerrors.ErrIO, "symlink.WriteSymlink")
	}

	if lstatErr != nil && os.IsNotExist(lstatErr) {
		logging.Debug("creating symlink", "link", slink, "target", relTarget)
		if err := w.createWithParents(relTarget, slink); err == nil {
			return Created, nil
		}
		// Fall through to the staged-replace path, matching the source's
		// "trying to replace" fallback when the direct create races.
	}

	staging := slink + ".tmp-" + dev.DeviceID()
	_ = unix.Unlink(staging)
	if err := w.createWithParents(relTarget, staging); err != nil {
		return Unchanged, linkerrors.Wrap(err, linkerrors.ErrIO, "symlink.WriteSymlink")
	}
	if err := unix.Rename(staging, slink); err != nil {
		_ = unix.Unlink(staging)
		return Unchanged, linkerrors.Wrap(err, linkerrors.ErrIO, "symlink.WriteSymlink")
	}
	return Replaced, nil
}

// createWithParents attempts symlink(relTarget, path), creating missing
// parent directories (one retry per ENOENT, matching the source's
// mkdir_parents loop) and bracketing the syscall with the creation-label
// hooks.
func (w *Writer) createWithParents(relTarget, path string) error {
	for {
		w.prepareLabel(path)
		err := unix.Symlink(relTarget, path)
		w.clearLabel()
		if err == nil {
			return nil
		}
		if err != unix.ENOENT {
			return err
		}
		if mkErr := os.MkdirAll(filepath.Dir(path), 0755); mkErr != nil {
			return mkErr
		}
	}
}

func (w *Writer) prepareLabel(path string) {
	if w.Labels == nil {
		return
	}
	for _, b := range w.Labels.Backends() {
		if hooks, ok := b.(seclabel.CreationHooks); ok {
			_ = hooks.PrepareLabelForCreation(path, unix.S_IFLNK)
		}
	}
}

func (w *Writer) clearLabel() {
	if w.Labels == nil {
		return
	}
	for _, b := range w.Labels.Backends() {
		if hooks, ok := b.(seclabel.CreationHooks); ok {
			hooks.ClearLabelForCreation()
		}
	}
}

func (w *Writer) fixLabel(path string) {
	if w.Labels == nil {
		return
	}
	if b, ok := w.Labels.Lookup("selinux"); ok {
		if se, ok := b.(*seclabel.SELinux); ok {
			_ = se.FixLabelByPath(path, true)
		}
	}
}

// touchNoFollow updates slink's own timestamps (not the target's), matching
// utimensat(AT_FDCWD, slink, NULL, AT_SYMLINK_NOFOLLOW).
func touchNoFollow(slink string) error {
	now := time.Now()
	ts := []unix.Timespec{unix.NsecToTimespec(now.UnixNano()), unix.NsecToTimespec(now.UnixNano())}
	return unix.UtimesNanoAt(unix.AT_FDCWD, slink, ts, unix.AT_SYMLINK_NOFOLLOW)
}
