package devlink

import (
	"context"

	"devlinkd/device"
	"devlinkd/logging"
	"devlinkd/symlink"
)

// Linker composes the Finalizer and Updater into the three operations a
// device-manager daemon drives per device event.
type Linker struct {
	Finalizer *Finalizer
	Updater   *Updater
	Writer    *symlink.Writer

	// RootDir, if set, confines every device path this Linker touches to
	// that filesystem root (via securejoin), for daemons operating against
	// a chroot or bind-mounted /dev instead of the host's.
	RootDir string
}

// NewLinker builds a Linker whose claim index lives under runRoot and whose
// arbitration resolves claimants against db. devRoot is the stable-link
// path's "/dev" equivalent for claim-index bookkeeping; pass "" for the real
// "/dev" (the common case when RootDir is also left unset).
func NewLinker(runRoot, devRoot string, db device.Database) *Linker {
	return &Linker{
		Finalizer: NewFinalizer(),
		Updater:   NewUpdater(runRoot, devRoot, db),
		Writer:    symlink.NewWriter(),
	}
}

// AddNode applies dev's permissions/labels, publishes the canonical
// /dev/{block,char}/<major>:<minor> link, then republishes every stable
// link dev declares. A failure on one stable link is logged and does not
// prevent the others from being processed.
func (l *Linker) AddNode(ctx context.Context, dev device.Device, opts PermissionOptions) error {
	dev = withRoot(dev, l.RootDir)

	if err := l.Finalizer.ApplyPermissions(dev, opts); err != nil {
		return err
	}

	if _, err := l.Writer.WriteSymlink(dev, dev.DevName(), l.canonicalNumPath(dev)); err != nil {
		logging.WithDevice(logging.FromContext(ctx), dev.DeviceID()).Warn("devlink: failed to write canonical devnum link", "err", err)
	}

	for _, link := range dev.Devlinks() {
		if err := l.Updater.Update(ctx, dev, link, true); err != nil {
			logging.WithLink(logging.WithDevice(logging.FromContext(ctx), dev.DeviceID()), link).Warn("devlink: failed to update stable link", "err", err)
		}
	}
	return nil
}

// RemoveNode retracts dev's claim on every stable link it declares, then
// removes the canonical devnum link.
func (l *Linker) RemoveNode(ctx context.Context, dev device.Device) error {
	dev = withRoot(dev, l.RootDir)

	for _, link := range dev.Devlinks() {
		if err := l.Updater.Update(ctx, dev, link, false); err != nil {
			logging.WithLink(logging.WithDevice(logging.FromContext(ctx), dev.DeviceID()), link).Warn("devlink: failed to update stable link", "err", err)
		}
	}

	canonical := l.canonicalNumPath(dev)
	if err := removeCanonicalLink(canonical); err != nil {
		logging.WithDevice(logging.FromContext(ctx), dev.DeviceID()).Debug("devlink: failed to remove canonical devnum link", "link", canonical, "err", err)
	}
	return nil
}

// ReconcileOldLinks retracts devNew's claim on every stable link devOld
// declared that devNew no longer declares — used when a device's rule
// evaluation produces a different devlink set than its previous revision.
func (l *Linker) ReconcileOldLinks(ctx context.Context, devNew, devOld device.Device) error {
	devNew = withRoot(devNew, l.RootDir)
	devOld = withRoot(devOld, l.RootDir)

	current := make(map[string]bool, len(devNew.Devlinks()))
	for _, link := range devNew.Devlinks() {
		current[link] = true
	}

	for _, link := range devOld.Devlinks() {
		if current[link] {
			continue
		}
		logging.WithDevice(logging.FromContext(ctx), devNew.DeviceID()).Debug("devlink: retiring stale stable link", "link", link)
		if err := l.Updater.Update(ctx, devNew, link, false); err != nil {
			logging.WithLink(logging.WithDevice(logging.FromContext(ctx), devNew.DeviceID()), link).Warn("devlink: failed to retract stale link", "err", err)
		}
	}
	return nil
}

// canonicalNumPath returns the canonical /dev/{block,char}/<major>:<minor>
// path for dev, rooted under l.RootDir when the Linker is confined to an
// alternate filesystem root (dev.DevName() has already been rewritten by
// withRoot, and this link must resolve under the same root).
func (l *Linker) canonicalNumPath(dev device.Device) string {
	kind := "char"
	if device.IsBlock(dev) {
		kind = "block"
	}
	devRoot := EffectiveDevRoot(l.RootDir)
	return devRoot + "/" + kind + "/" + device.NumPathComponent(dev)
}
