package devlink

import "golang.org/x/sys/unix"

// removeCanonicalLink unlinks path, treating a missing entry as success.
func removeCanonicalLink(path string) error {
	err := unix.Unlink(path)
	if err == nil || err == unix.ENOENT {
		return nil
	}
	return err
}
