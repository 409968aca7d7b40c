package seclabel

import (
	"fmt"
	"os"

	"github.com/opencontainers/selinux/go-selinux"

	"devlinkd/linkerrors"
)

// SELinux backs the "selinux" SECLABEL module via opencontainers/selinux.
// That library's API is path-based rather than fd-based, so the methods
// here that write a label to fd resolve it back to a path through
// /proc/self/fd/<fd> — the same
// indirection the kernel itself uses for O_PATH descriptors that can't be
// read or written directly.
type SELinux struct{}

var _ Backend = (*SELinux)(nil)
var _ CreationHooks = (*SELinux)(nil)

func (s *SELinux) Module() string { return "selinux" }

func fdPath(fd int) string {
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}

// ApplyLabelToFd sets an explicit SELinux context on fd.
func (s *SELinux) ApplyLabelToFd(fd int, path, label string) error {
	if !selinux.GetEnabled() {
		return nil
	}
	if err := selinux.SetFileLabel(fdPath(fd), label); err != nil {
		return linkerrors.Wrap(err, linkerrors.ErrIO, "selinux.ApplyLabelToFd")
	}
	return nil
}

// FixLabelToFd reads path's current SELinux context and writes it to fd.
// No policy database is consulted, so a node whose current context differs
// from the policy default is not restored to that default. An empty
// context is left as it is.
func (s *SELinux) FixLabelToFd(fd int, path string, ignoreENOENT bool) error {
	if !selinux.GetEnabled() {
		return nil
	}
	label, err := selinux.FileLabel(path)
	if err != nil {
		if ignoreENOENT && os.IsNotExist(err) {
			return nil
		}
		return linkerrors.Wrap(err, linkerrors.ErrIO, "selinux.FixLabelToFd")
	}
	if label == "" {
		return nil
	}
	if err := selinux.SetFileLabel(fdPath(fd), label); err != nil {
		return linkerrors.Wrap(err, linkerrors.ErrIO, "selinux.FixLabelToFd")
	}
	return nil
}

// PrepareLabelForCreation sets the fscreate context to path's current
// SELinux context when path already exists and has one, in the place of the
// source's udev_selabel_lookup/setfscreatecon bracket around symlink() and
// mkdir(). No policy lookup is made: mode is not consulted, and for a path
// that does not exist yet the fscreate context is left unchanged.
func (s *SELinux) PrepareLabelForCreation(path string, mode uint32) error {
	if !selinux.GetEnabled() {
		return nil
	}
	label, err := selinux.FileLabel(path)
	if err != nil || label == "" {
		return nil
	}
	if err := selinux.SetFSCreateLabel(label); err != nil {
		return linkerrors.Wrap(err, linkerrors.ErrIO, "selinux.PrepareLabelForCreation")
	}
	return nil
}

// ClearLabelForCreation clears the fscreate context set by
// PrepareLabelForCreation, whether or not creation succeeded.
func (s *SELinux) ClearLabelForCreation() {
	if !selinux.GetEnabled() {
		return
	}
	_ = selinux.SetFSCreateLabel("")
}

// FixLabelByPath restores path's default SELinux context directly, for
// callers (symlink preservation) that have no open fd to work from, matching
// the source's label_fix(path, LABEL_IGNORE_ENOENT).
func (s *SELinux) FixLabelByPath(path string, ignoreENOENT bool) error {
	if !selinux.GetEnabled() {
		return nil
	}
	if err := selinux.SetFileLabel(path, ""); err != nil {
		if ignoreENOENT && os.IsNotExist(err) {
			return nil
		}
		return linkerrors.Wrap(err, linkerrors.ErrIO, "selinux.FixLabelByPath")
	}
	return nil
}
