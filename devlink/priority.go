package devlink

import (
	"os"
	"strings"

	"devlinkd/device"
	"devlinkd/linkerrors"
	"devlinkd/logging"
)

// Candidate is the adding device's own entry when it competes for a link it
// is not yet indexed under (it has not written its claim file yet, or is
// being considered before doing so).
type Candidate struct {
	DeviceID string
	DevName  string
	Priority int
}

// FindWinner scans the claim-index directory dir and returns the devname of
// the highest-priority current claimant. If self is non-nil, it seeds the
// contest with the adding device's own devname/priority without requiring a
// claim file to already exist for it.
//
// If dir does not exist: with a seed, the seed wins unconditionally; without
// one, ErrIndexEmpty is returned.
func FindWinner(dir string, self *Candidate, db device.Database) (string, error) {
	var (
		target   string
		priority int
		have     bool
	)
	if self != nil {
		target = self.DevName
		priority = self.Priority
		have = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if have {
				return target, nil
			}
			return "", linkerrors.ErrIndexEmpty
		}
		return "", linkerrors.Wrap(err, linkerrors.ErrIO, "devlink.FindWinner")
	}

	for _, ent := range entries {
		name := ent.Name()
		if name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		if self != nil && name == self.DeviceID {
			continue
		}

		dev, err := db.Lookup(name)
		if err != nil {
			logging.Debug("devlink: claim file has no matching device record, skipping", "claim", name, "err", err)
			continue
		}

		candidatePriority := dev.DevlinkPriority()
		if have && candidatePriority <= priority {
			continue
		}

		target = dev.DevName()
		priority = candidatePriority
		have = true
	}

	if !have {
		return "", linkerrors.ErrIndexEmpty
	}
	return target, nil
}
