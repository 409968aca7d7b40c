package devlink

import (
	securejoin "github.com/cyphar/filepath-securejoin"

	"devlinkd/device"
)

// rootedDevice rewrites a device.Device's DevName and Devlinks to be
// resolved under an alternate filesystem root, for device managers that
// operate against a chroot or a bind-mounted /dev (most commonly a test
// harness exercising the linker without the real /dev). Path resolution
// goes through securejoin so a devlink that would escape root via a
// symlink or ".." component is instead clamped to stay within it, the way
// the teacher's container rootfs handling never lets a container-supplied
// path walk outside its own root.
type rootedDevice struct {
	device.Device
	root string
}

// withRoot wraps dev so its paths resolve under root. If root is empty, dev
// is returned unwrapped.
func withRoot(dev device.Device, root string) device.Device {
	if root == "" {
		return dev
	}
	return &rootedDevice{Device: dev, root: root}
}

func (r *rootedDevice) DevName() string {
	return joinRoot(r.root, r.Device.DevName())
}

func (r *rootedDevice) Devlinks() []string {
	links := r.Device.Devlinks()
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = joinRoot(r.root, l)
	}
	return out
}

// joinRoot resolves unsafePath under root via securejoin, falling back to
// plain concatenation if securejoin returns an error. Components that do
// not (yet) exist on disk — the common case in tests that build up /dev
// incrementally — are joined lexically by securejoin and are not an error.
func joinRoot(root, unsafePath string) string {
	joined, err := securejoin.SecureJoin(root, unsafePath)
	if err != nil {
		return root + unsafePath
	}
	return joined
}

// EffectiveDevRoot returns the "/dev" equivalent a Linker confined to root
// publishes under: "/dev" itself when root is empty, or root's own "/dev"
// subdirectory otherwise. Callers that construct a Linker with a non-empty
// RootDir pass this as NewLinker's devRoot so the claim index keys match the
// paths withRoot actually produces.
func EffectiveDevRoot(root string) string {
	if root == "" {
		return "/dev"
	}
	return joinRoot(root, "/dev")
}
