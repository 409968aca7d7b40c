package devlink

import (
	"context"
	"os"

	"golang.org/x/sys/unix"

	"devlinkd/device"
	"devlinkd/linkerrors"
	"devlinkd/logging"
	"devlinkd/symlink"
)

// linkUpdateMaxRetries bounds the fixpoint loop for an initialized device,
// matching the source's LINK_UPDATE_MAX_RETRIES.
const linkUpdateMaxRetries = 128

// Updater runs the claim/arbitrate/publish fixpoint loop for a single
// stable link.
type Updater struct {
	Claims *ClaimIndex
	Writer *symlink.Writer
	DB     device.Database
}

// NewUpdater builds an Updater rooted at runRoot, resolving winners against
// db. devRoot is the stable-link path's "/dev" equivalent, passed through to
// the ClaimIndex; an empty devRoot means the real "/dev".
func NewUpdater(runRoot, devRoot string, db device.Database) *Updater {
	return &Updater{
		Claims: NewClaimIndex(runRoot, devRoot),
		Writer: symlink.NewWriter(),
		DB:     db,
	}
}

// Update adds or removes dev's claim on slink, then repeatedly re-derives
// and republishes the winning symlink until the claim-index directory is
// observed unchanged across a publish, or the retry budget is exhausted.
func (u *Updater) Update(ctx context.Context, dev device.Device, slink string, add bool) error {
	log := logging.WithLink(logging.WithDevice(logging.FromContext(ctx), dev.DeviceID()), slink)

	if add {
		if err := u.Claims.AddClaim(dev, slink); err != nil {
			return err
		}
	} else {
		if err := u.Claims.RemoveClaim(dev, slink); err != nil {
			return err
		}
	}

	dir, err := u.Claims.Dir(slink)
	if err != nil {
		return err
	}

	maxRetries := 1
	if dev.IsInitialized() {
		maxRetries = linkUpdateMaxRetries
	}

	var self *Candidate
	if add {
		self = &Candidate{DeviceID: dev.DeviceID(), DevName: dev.DevName(), Priority: dev.DevlinkPriority()}
	}

	i := 0
	for ; i < maxRetries; i++ {
		st1, st1Valid, err := statIfExists(dir)
		if err != nil {
			return linkerrors.Wrap(err, linkerrors.ErrIO, "devlink.Updater.Update")
		}

		winner, err := FindWinner(dir, self, u.DB)
		if linkerrors.IsKind(err, linkerrors.ErrNotFound) {
			log.Debug("no claimants remain, removing link")
			u.unpublish(slink)
			return nil
		}
		if err != nil {
			return err
		}

		outcome, err := u.Writer.WriteSymlink(dev, winner, slink)
		if err != nil {
			if add {
				_ = u.Claims.RemoveClaim(dev, slink)
			}
			return err
		}

		if outcome == symlink.Replaced {
			// Another device may have raced us; give it one more chance to
			// reassert before declaring quiescence.
			continue
		}

		st2, st2Valid, err := statIfExists(dir)
		if err != nil {
			return linkerrors.Wrap(err, linkerrors.ErrIO, "devlink.Updater.Update")
		}
		if st1Valid && st2Valid && inodeUnmodified(st1, st2) {
			return nil
		}
	}

	if i >= linkUpdateMaxRetries {
		return linkerrors.WrapWithLink(linkerrors.ErrFixpointDidNotConverge, linkerrors.ErrTooManyRetries, "devlink.Updater.Update", slink)
	}
	return nil
}

// unpublish removes slink and best-effort prunes now-empty parent
// directories up to the claim index's devRoot.
func (u *Updater) unpublish(slink string) {
	if err := unix.Unlink(slink); err != nil {
		return
	}
	devRoot := u.Claims.DevRoot
	if devRoot == "" {
		devRoot = "/dev"
	}
	removeEmptyParents(slink, devRoot)
}

func removeEmptyParents(path, stop string) {
	dir := parentDir(path)
	for dir != stop && dir != "/" && dir != "." {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = parentDir(dir)
	}
}

func parentDir(path string) string {
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return path[:i]
}

func statIfExists(path string) (unix.Stat_t, bool, error) {
	var st unix.Stat_t
	err := unix.Stat(path, &st)
	if err == nil {
		return st, true, nil
	}
	if err == unix.ENOENT {
		return unix.Stat_t{}, false, nil
	}
	return unix.Stat_t{}, false, err
}

// inodeUnmodified reports whether st2 refers to the same filesystem object,
// at the same mtime and size, as st1 — the quiescence predicate the fixpoint
// loop uses to detect whether a concurrent worker raced it.
func inodeUnmodified(st1, st2 unix.Stat_t) bool {
	return st1.Dev == st2.Dev &&
		st1.Ino == st2.Ino &&
		st1.Size == st2.Size &&
		st1.Mtim == st2.Mtim
}
