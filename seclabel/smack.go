package seclabel

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"devlinkd/linkerrors"
)

// smackXattr is the extended attribute SMACK64 labels device nodes with.
const smackXattr = "security.SMACK64"

// Smack backs the "smack" SECLABEL module directly on the xattr syscalls,
// since no ecosystem Go client for SMACK exists in the retrieved corpus
// the way opencontainers/selinux exists for SELinux.
type Smack struct{}

var _ Backend = (*Smack)(nil)

func (s *Smack) Module() string { return "smack" }

// ApplyLabelToFd sets the SMACK64 xattr on fd to label. fd is expected to be
// an O_PATH descriptor, which rejects Fsetxattr directly with EBADF, so the
// xattr is set through /proc/self/fd/<fd> instead, the same indirection
// selinux.go's fdPath uses for SELinux.
func (s *Smack) ApplyLabelToFd(fd int, path, label string) error {
	if err := unix.Setxattr(fdPath(fd), smackXattr, []byte(label), 0); err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return nil
		}
		return linkerrors.Wrap(err, linkerrors.ErrIO, "smack.ApplyLabelToFd")
	}
	return nil
}

// FixLabelToFd restores the default SMACK64 label on fd by removing the
// xattr, matching the source's label_fix() passing NULL (fremovexattr)
// rather than writing an explicit default value.
func (s *Smack) FixLabelToFd(fd int, path string, ignoreENOENT bool) error {
	if err := unix.Removexattr(fdPath(fd), smackXattr); err != nil {
		switch {
		case err == unix.ENOTSUP || err == unix.EOPNOTSUPP || err == unix.ENODATA:
			return nil
		case ignoreENOENT && os.IsNotExist(err):
			return nil
		default:
			return linkerrors.Wrap(err, linkerrors.ErrIO, "smack.FixLabelToFd")
		}
	}
	return nil
}

// readSmackLabel reads back the SMACK64 xattr on fd, for tests and
// diagnostics; not part of the Backend interface.
func readSmackLabel(fd int) (string, error) {
	buf := make([]byte, 256)
	n, err := unix.Getxattr(fdPath(fd), smackXattr, buf)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf[:n]), "\x00"), nil
}
