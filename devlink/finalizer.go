package devlink

import (
	"fmt"

	"golang.org/x/sys/unix"

	"devlinkd/device"
	"devlinkd/linkerrors"
	"devlinkd/logging"
	"devlinkd/seclabel"
)

// Sentinels meaning "preserve the current value" for PermissionOptions.
const (
	ModeInvalid = ^uint32(0)
	UIDInvalid  = -1
	GIDInvalid  = -1
)

// SecurityLabel is a single module/label assignment taken from a device's
// SECLABEL={module}=value declarations.
type SecurityLabel struct {
	Module string
	Value  string
}

// PermissionOptions bundles the ownership/mode/label state ApplyPermissions
// reconciles onto a device node.
type PermissionOptions struct {
	Mode     uint32
	UID      int
	GID      int
	ApplyMAC bool
	Labels   []SecurityLabel
}

// Finalizer opens a device's node, verifies it still belongs to that
// device, and brings its permissions, ownership, and security labels in
// line with opts.
type Finalizer struct {
	Labels *seclabel.Registry
}

// NewFinalizer builds a Finalizer backed by the standard label registry.
func NewFinalizer() *Finalizer {
	return &Finalizer{Labels: seclabel.NewRegistry()}
}

// ApplyPermissions reconciles dev's on-disk node against opts. A node that
// has vanished, or that now belongs to a different device (mismatched type
// bits or rdev), is treated as a benign race and skipped, not an error.
func (f *Finalizer) ApplyPermissions(dev device.Device, opts PermissionOptions) error {
	devname := dev.DevName()
	major, minor := dev.DevNum()
	devnum := unix.Mkdev(major, minor)

	wantType := uint32(unix.S_IFCHR)
	if device.IsBlock(dev) {
		wantType = unix.S_IFBLK
	}
	mode := opts.Mode
	if mode != ModeInvalid {
		mode |= wantType
	}

	fd, err := unix.Open(devname, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT {
			logging.Debug("devlink: device node missing, skipping permission handling", "devname", devname)
			return nil
		}
		return linkerrors.Wrap(err, linkerrors.ErrIO, "devlink.Finalizer.ApplyPermissions")
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return linkerrors.Wrap(err, linkerrors.ErrIO, "devlink.Finalizer.ApplyPermissions")
	}

	if (mode != ModeInvalid && (st.Mode&unix.S_IFMT) != (mode&unix.S_IFMT)) || st.Rdev != devnum {
		logging.Debug("devlink: node no longer matches device, skipping", "devname", devname, "device_id", dev.DeviceID())
		return nil
	}

	applyMode := mode != ModeInvalid && (st.Mode&0777) != (mode&0777)
	applyUID := opts.UID != UIDInvalid && st.Uid != uint32(opts.UID)
	applyGID := opts.GID != GIDInvalid && st.Gid != uint32(opts.GID)

	if applyMode || applyUID || applyGID || opts.ApplyMAC {
		if applyMode || applyUID || applyGID {
			uid := int(st.Uid)
			if opts.UID != UIDInvalid {
				uid = opts.UID
			}
			gid := int(st.Gid)
			if opts.GID != GIDInvalid {
				gid = opts.GID
			}
			logging.Debug("devlink: setting permissions", "devname", devname, "uid", uid, "gid", gid, "mode", mode&0777)

			if applyMode {
				if err := unix.Chmod(procFdPath(fd), mode&07777); err != nil {
					logging.Error("devlink: failed to chmod device node", "devname", devname, "err", err)
				}
			}
			if applyUID || applyGID {
				if err := unix.Chown(procFdPath(fd), uid, gid); err != nil {
					logging.Error("devlink: failed to chown device node", "devname", devname, "err", err)
				}
			}
		}

		f.applyLabels(fd, devname, opts)
	}

	// Always refresh the timestamp so consumers watching for e.g. media
	// changes observe an mtime bump when the node is re-processed.
	ts := []unix.Timespec{{Sec: unix.UTIME_NOW, Nsec: unix.UTIME_NOW}, {Sec: unix.UTIME_NOW, Nsec: unix.UTIME_NOW}}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, procFdPath(fd), ts, 0); err != nil {
		logging.Debug("devlink: failed to adjust node timestamp", "devname", devname, "err", err)
	}

	return nil
}

// procFdPath resolves an O_PATH file descriptor to a path mutating syscalls
// can act on. O_PATH fds reject fchmod/fchown/utimensat(fd, NULL, ...)
// directly with EBADF; routing through /proc/self/fd/<fd>, the same
// indirection the source's fchmod_and_chown()/futimens_opath() use, reaches
// the referenced file instead of the fd itself.
func procFdPath(fd int) string {
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}

func (f *Finalizer) applyLabels(fd int, devname string, opts PermissionOptions) {
	if f.Labels == nil {
		return
	}
	labels := make([]seclabel.Label, 0, len(opts.Labels))
	for _, l := range opts.Labels {
		labels = append(labels, seclabel.Label{Module: l.Module, Value: l.Value})
	}
	f.Labels.ApplyAll(fd, devname, labels)
}
