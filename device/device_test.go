package device

import "testing"

func TestRecord_ImplementsDevice(t *testing.T) {
	r := &Record{
		Name:        "/dev/sda",
		Major:       8,
		Minor:       0,
		Sys:         "block",
		Path:        "/devices/pci0000:00/sda",
		ID:          "b8:0",
		Priority:    0,
		Initialized: true,
		Links:       []string{"/dev/disk/by-label/ROOT"},
	}

	if r.DevName() != "/dev/sda" {
		t.Errorf("DevName() = %q, want /dev/sda", r.DevName())
	}
	major, minor := r.DevNum()
	if major != 8 || minor != 0 {
		t.Errorf("DevNum() = (%d, %d), want (8, 0)", major, minor)
	}
	if r.Subsystem() != "block" {
		t.Errorf("Subsystem() = %q, want block", r.Subsystem())
	}
	if r.DeviceID() != "b8:0" {
		t.Errorf("DeviceID() = %q, want b8:0", r.DeviceID())
	}
	if r.DevlinkPriority() != 0 {
		t.Errorf("DevlinkPriority() = %d, want 0", r.DevlinkPriority())
	}
	if !r.IsInitialized() {
		t.Error("IsInitialized() = false, want true")
	}
	if len(r.Devlinks()) != 1 || r.Devlinks()[0] != "/dev/disk/by-label/ROOT" {
		t.Errorf("Devlinks() = %v, want [/dev/disk/by-label/ROOT]", r.Devlinks())
	}
}

func TestIsBlock(t *testing.T) {
	tests := []struct {
		subsystem string
		want      bool
	}{
		{"block", true},
		{"char", false},
		{"tty", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.subsystem, func(t *testing.T) {
			dev := &Record{Sys: tt.subsystem}
			if got := IsBlock(dev); got != tt.want {
				t.Errorf("IsBlock(%q) = %v, want %v", tt.subsystem, got, tt.want)
			}
		})
	}
}

func TestNumPathComponent(t *testing.T) {
	dev := &Record{Major: 8, Minor: 16}
	if got := NumPathComponent(dev); got != "8:16" {
		t.Errorf("NumPathComponent() = %q, want 8:16", got)
	}
}

func TestMapDatabase(t *testing.T) {
	db := make(MapDatabase)

	a := &Record{ID: "b8:0", Name: "/dev/sda"}
	db.Put(a)

	got, err := db.Lookup("b8:0")
	if err != nil {
		t.Fatalf("Lookup(b8:0) error = %v", err)
	}
	if got.DevName() != "/dev/sda" {
		t.Errorf("Lookup(b8:0).DevName() = %q, want /dev/sda", got.DevName())
	}

	if _, err := db.Lookup("missing"); err == nil {
		t.Error("Lookup(missing) should return an error")
	}

	db.Delete("b8:0")
	if _, err := db.Lookup("b8:0"); err == nil {
		t.Error("Lookup(b8:0) after Delete should return an error")
	}
}
