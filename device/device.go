// Package device defines the external collaborator types the device-node
// linker consumes: the device handle produced by device enumeration and the
// database that resolves a device identifier back to one.
//
// Device enumeration, hotplug delivery, and device-database persistence are
// implemented elsewhere in a full device manager; this package only pins down
// the shapes the linker needs from them.
package device

import "fmt"

// Device is a read-only handle on a single enumerated device, as produced by
// the (external) device enumerator and device database.
type Device interface {
	// DevName is the absolute path of the device node, e.g. "/dev/sda".
	DevName() string
	// DevNum returns the device's major and minor numbers.
	DevNum() (major, minor uint32)
	// Subsystem is "block" for block devices; anything else is treated as char.
	Subsystem() string
	// DevPath is the kernel devpath, used only for diagnostics.
	DevPath() string
	// DeviceID is an opaque string uniquely identifying this device.
	DeviceID() string
	// DevlinkPriority is this device's priority when contending for a stable
	// link; higher wins. Default is 0.
	DevlinkPriority() int
	// IsInitialized reports whether this device's database record is durable.
	IsInitialized() bool
	// Devlinks lists the absolute stable-link paths this device declares,
	// each of which must live under /dev/.
	Devlinks() []string
}

// Record is a concrete, immutable Device implementation.
type Record struct {
	Name        string
	Major       uint32
	Minor       uint32
	Sys         string
	Path        string
	ID          string
	Priority    int
	Initialized bool
	Links       []string
}

var _ Device = (*Record)(nil)

func (r *Record) DevName() string { return r.Name }

func (r *Record) DevNum() (uint32, uint32) { return r.Major, r.Minor }

func (r *Record) Subsystem() string { return r.Sys }

func (r *Record) DevPath() string { return r.Path }

func (r *Record) DeviceID() string { return r.ID }

func (r *Record) DevlinkPriority() int { return r.Priority }

func (r *Record) IsInitialized() bool { return r.Initialized }

func (r *Record) Devlinks() []string { return r.Links }

// IsBlock reports whether the device's subsystem is "block".
func IsBlock(dev Device) bool {
	return dev.Subsystem() == "block"
}

// NumPathComponent formats a device's major:minor pair for use in the
// canonical /dev/{block,char}/<major>:<minor> symlink name.
func NumPathComponent(dev Device) string {
	major, minor := dev.DevNum()
	return fmt.Sprintf("%d:%d", major, minor)
}

// Database resolves a device identifier to the Device record currently held
// for it. Implementations are backed by the device manager's own database;
// Lookup returning an error means the record is not yet written, or has
// since been removed — both are treated as "skip this candidate" by callers.
type Database interface {
	Lookup(deviceID string) (Device, error)
}

// MapDatabase is an in-memory Database, useful for tests and for the CLI
// subcommands.
type MapDatabase map[string]Device

var _ Database = MapDatabase(nil)

// Lookup implements Database.
func (m MapDatabase) Lookup(deviceID string) (Device, error) {
	dev, ok := m[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %q not found in database", deviceID)
	}
	return dev, nil
}

// Put adds or replaces a device's record, keyed by its DeviceID.
func (m MapDatabase) Put(dev Device) {
	m[dev.DeviceID()] = dev
}

// Delete removes a device's record.
func (m MapDatabase) Delete(deviceID string) {
	delete(m, deviceID)
}
