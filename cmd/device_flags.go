package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"devlinkd/device"
	"devlinkd/devlink"
)

// deviceFlags holds the command-line-bindable fields of a device.Record,
// used by every subcommand that needs to describe a device.
type deviceFlags struct {
	id          string
	devname     string
	major       int32
	minor       int32
	subsystem   string
	priority    int
	initialized bool
	devlinks    string
}

// register binds this deviceFlags to cmd's flag set, each flag named
// "<prefix>device-id" etc. An empty prefix yields the unprefixed names.
func (f *deviceFlags) register(cmd *cobra.Command, prefix string) {
	cmd.Flags().StringVar(&f.id, prefix+"device-id", "", "opaque device identifier (required)")
	cmd.Flags().StringVar(&f.devname, prefix+"devname", "", "absolute device node path, e.g. /dev/sda (required)")
	cmd.Flags().Int32Var(&f.major, prefix+"major", 0, "device major number")
	cmd.Flags().Int32Var(&f.minor, prefix+"minor", 0, "device minor number")
	cmd.Flags().StringVar(&f.subsystem, prefix+"subsystem", "block", `device subsystem ("block" or anything else, treated as char)`)
	cmd.Flags().IntVar(&f.priority, prefix+"priority", 0, "devlink priority; higher wins, a tie keeps the current owner")
	cmd.Flags().BoolVar(&f.initialized, prefix+"initialized", true, "whether the device database record is durable")
	cmd.Flags().StringVar(&f.devlinks, prefix+"devlinks", "", "comma-separated list of absolute stable-link paths")
	_ = cmd.MarkFlagRequired(prefix + "device-id")
	_ = cmd.MarkFlagRequired(prefix + "devname")
}

func (f *deviceFlags) record() *device.Record {
	var links []string
	for _, l := range strings.Split(f.devlinks, ",") {
		if l = strings.TrimSpace(l); l != "" {
			links = append(links, l)
		}
	}
	return &device.Record{
		ID:          f.id,
		Name:        f.devname,
		Major:       uint32(f.major),
		Minor:       uint32(f.minor),
		Sys:         f.subsystem,
		Priority:    f.priority,
		Initialized: f.initialized,
		Links:       links,
	}
}

// permFlags holds the command-line-bindable fields of a devlink.PermissionOptions.
type permFlags struct {
	mode     uint32
	hasMode  bool
	uid      int
	gid      int
	applyMAC bool
}

func (f *permFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&f.mode, "mode", 0, "permission bits to apply with --set-mode (octal, e.g. 0660); ignored without --set-mode")
	cmd.Flags().BoolVar(&f.hasMode, "set-mode", false, "apply --mode instead of preserving the node's current permission bits")
	cmd.Flags().IntVar(&f.uid, "uid", devlink.UIDInvalid, "owning uid to apply; omit to preserve")
	cmd.Flags().IntVar(&f.gid, "gid", devlink.GIDInvalid, "owning gid to apply; omit to preserve")
	cmd.Flags().BoolVar(&f.applyMAC, "apply-mac", false, "apply security-label defaults even if no explicit label is given")
}

func (f *permFlags) options() devlink.PermissionOptions {
	mode := uint32(devlink.ModeInvalid)
	if f.hasMode {
		mode = f.mode
	}
	return devlink.PermissionOptions{
		Mode:     mode,
		UID:      f.uid,
		GID:      f.gid,
		ApplyMAC: f.applyMAC,
	}
}
