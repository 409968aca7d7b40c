// Package seclabel bridges the device-node linker to the security-label
// backends ("selinux", "smack") that may be attached to a device's udev
// database entry. The linker never implements label *policy* — it only
// invokes each backend's "apply to fd" operation, per the SECLABEL={module}
// entries a device declares and, failing that, each backend's own default.
package seclabel

import "devlinkd/logging"

// CreationHooks brackets a symlink() call so a backend can stamp the
// filesystem-create label the kernel will apply to the new inode. Prepare
// is called with the path and S_IFLNK-tagged mode just before the
// symlink() syscall, Clear (which takes no arguments) immediately after,
// success or not.
type CreationHooks interface {
	PrepareLabelForCreation(path string, mode uint32) error
	ClearLabelForCreation()
}

// Backend applies and fixes security labels on an already-open file
// descriptor. Fd is expected to be an O_PATH descriptor on the device node;
// path is the node's path, which a backend may also read from (the SELinux
// backend's FixLabelToFd reads the current label from it).
type Backend interface {
	// Module is the SECLABEL={module} name this backend answers to.
	Module() string
	// ApplyLabelToFd sets an explicit label on fd.
	ApplyLabelToFd(fd int, path, label string) error
	// FixLabelToFd restores this backend's default label on fd. When
	// ignoreENOENT is set, a vanished path is not treated as an error.
	FixLabelToFd(fd int, path string, ignoreENOENT bool) error
}

// Registry resolves a SECLABEL module name to its Backend.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds a Registry with the standard selinux and smack
// backends plus any extras supplied by the caller.
func NewRegistry(extra ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	r.Register(&SELinux{})
	r.Register(&Smack{})
	for _, b := range extra {
		r.Register(b)
	}
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.backends[b.Module()] = b
}

// Lookup returns the backend for module, or false if none is registered.
func (r *Registry) Lookup(module string) (Backend, bool) {
	b, ok := r.backends[module]
	return b, ok
}

// Backends returns every registered backend, for applying defaults to
// modules a device's label list did not address explicitly.
func (r *Registry) Backends() []Backend {
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	return out
}

// Label is a single SECLABEL={module}=label assignment from a device's
// udev database entry.
type Label struct {
	Module string
	Value  string
}

// ApplyAll applies every label in labels via the matching registered
// backend, then runs FixLabelToFd's default for every backend that wasn't
// addressed by name. Unknown modules are logged and otherwise ignored,
// matching the source's "unknown subsystem" behavior.
func (r *Registry) ApplyAll(fd int, path string, labels []Label) {
	addressed := make(map[string]bool, len(labels))
	for _, l := range labels {
		backend, ok := r.Lookup(l.Module)
		if !ok {
			logging.Warn("SECLABEL: unknown subsystem, ignoring", "module", l.Module, "label", l.Value)
			continue
		}
		addressed[l.Module] = true
		if err := backend.ApplyLabelToFd(fd, path, l.Value); err != nil {
			logging.Warn("SECLABEL: failed to set label", "module", l.Module, "label", l.Value, "path", path, "err", err)
		} else {
			logging.Debug("SECLABEL: set label", "module", l.Module, "label", l.Value)
		}
	}

	for _, backend := range r.Backends() {
		if addressed[backend.Module()] {
			continue
		}
		if err := backend.FixLabelToFd(fd, path, true); err != nil {
			logging.Debug("SECLABEL: failed to fix default label", "module", backend.Module(), "path", path, "err", err)
		}
	}
}
