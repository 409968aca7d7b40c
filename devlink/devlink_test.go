package devlink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"devlinkd/device"
)

func newTestLinker(t *testing.T, db device.MapDatabase) (*Linker, string, string) {
	t.Helper()
	runRoot := t.TempDir()
	devRoot := t.TempDir()
	l := NewLinker(runRoot, devRoot, db)
	return l, runRoot, devRoot
}

// deviceAt returns a Record whose Devlinks/DevName are rooted under devRoot
// instead of the real /dev, so tests don't need root privileges.
func deviceAt(devRoot, id, name string, major, minor uint32, priority int, links ...string) *device.Record {
	rooted := make([]string, len(links))
	for i, l := range links {
		rooted[i] = filepath.Join(devRoot, l)
	}
	return &device.Record{
		ID:          id,
		Name:        filepath.Join(devRoot, name),
		Major:       major,
		Minor:       minor,
		Sys:         "block",
		Priority:    priority,
		Initialized: true,
		Links:       rooted,
	}
}

func TestScenario_S1_SingleClaimantAdd(t *testing.T) {
	db := make(device.MapDatabase)
	l, runRoot, devRoot := newTestLinker(t, db)

	a := deviceAt(devRoot, "b8:0", "sda", 8, 0, 0, "disk/by-label/ROOT")
	os.MkdirAll(filepath.Dir(a.DevName()), 0755)
	os.WriteFile(a.DevName(), nil, 0644)
	db.Put(a)

	updater := NewUpdater(runRoot, devRoot, db)
	if err := updater.Update(context.Background(), a, a.Devlinks()[0], true); err != nil {
		t.Fatalf("Update error = %v", err)
	}

	resolved, err := filepath.EvalSymlinks(a.Devlinks()[0])
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	if resolved != a.DevName() {
		t.Errorf("link resolves to %q, want %q", resolved, a.DevName())
	}

	claimDir, _ := updater.Claims.Dir(a.Devlinks()[0])
	if _, err := os.Stat(filepath.Join(claimDir, "b8:0")); err != nil {
		t.Errorf("expected claim file for b8:0: %v", err)
	}
	_ = l
}

func TestScenario_S2_S3_S4_PriorityAndRemoval(t *testing.T) {
	db := make(device.MapDatabase)
	runRoot := t.TempDir()
	devRoot := t.TempDir()

	a := deviceAt(devRoot, "b8:0", "sda", 8, 0, 0, "disk/by-label/ROOT")
	b := deviceAt(devRoot, "b8:16", "sdb", 8, 16, 10, "disk/by-label/ROOT")
	os.MkdirAll(filepath.Dir(a.DevName()), 0755)
	os.WriteFile(a.DevName(), nil, 0644)
	os.WriteFile(b.DevName(), nil, 0644)
	db.Put(a)
	db.Put(b)

	updater := NewUpdater(runRoot, devRoot, db)
	link := a.Devlinks()[0]

	// S2: A claims first, then higher-priority B claims; B should win.
	if err := updater.Update(context.Background(), a, link, true); err != nil {
		t.Fatalf("A Update error = %v", err)
	}
	if err := updater.Update(context.Background(), b, link, true); err != nil {
		t.Fatalf("B Update error = %v", err)
	}
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != b.DevName() {
		t.Fatalf("after S2, link resolves to %q, want %q (B, higher priority)", resolved, b.DevName())
	}

	// S3: removal of winner B reverts link to A.
	if err := updater.Update(context.Background(), b, link, false); err != nil {
		t.Fatalf("B removal error = %v", err)
	}
	resolved, err = filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != a.DevName() {
		t.Fatalf("after S3, link resolves to %q, want %q (A, sole claimant)", resolved, a.DevName())
	}
	claimDir, _ := updater.Claims.Dir(link)
	if _, err := os.Stat(filepath.Join(claimDir, "b8:16")); !os.IsNotExist(err) {
		t.Errorf("B's claim file should be gone after removal")
	}

	// S4: removal of the last claimant removes the link and its index dir.
	if err := updater.Update(context.Background(), a, link, false); err != nil {
		t.Fatalf("A removal error = %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Errorf("link should be absent after last claimant removed")
	}
	if _, err := os.Stat(claimDir); !os.IsNotExist(err) {
		t.Errorf("claim-index directory should be absent after last claimant removed")
	}
}

func TestScenario_S5_PlainFileIsNotAConflict(t *testing.T) {
	db := make(device.MapDatabase)
	runRoot := t.TempDir()
	devRoot := t.TempDir()

	a := deviceAt(devRoot, "b8:0", "sda", 8, 0, 0, "disk/by-label/ROOT")
	os.MkdirAll(filepath.Dir(a.DevName()), 0755)
	os.WriteFile(a.DevName(), nil, 0644)
	db.Put(a)

	link := a.Devlinks()[0]
	os.MkdirAll(filepath.Dir(link), 0755)
	// A regular file occupies the link path in this unprivileged test; no
	// test here creates an actual block/char node at the link path.
	os.WriteFile(link, nil, 0644)

	updater := NewUpdater(runRoot, devRoot, db)
	err := updater.Update(context.Background(), a, link, true)
	// A plain regular file is not a conflict per the spec (only S_IFBLK/
	// S_IFCHR are refused); WriteSymlink will instead stage-replace it.
	if err != nil {
		t.Fatalf("unexpected error replacing a plain file at the link path: %v", err)
	}
}

func TestScenario_S6_ReconcileOldLinks(t *testing.T) {
	db := make(device.MapDatabase)
	l, runRoot, devRoot := newTestLinker(t, db)
	_ = runRoot

	devNew := deviceAt(devRoot, "b8:0", "sda", 8, 0, 0, "disk/by-label/L1", "disk/by-label/L3")
	devOld := deviceAt(devRoot, "b8:0", "sda", 8, 0, 0, "disk/by-label/L1", "disk/by-label/L2")
	os.MkdirAll(filepath.Dir(devNew.DevName()), 0755)
	os.WriteFile(devNew.DevName(), nil, 0644)
	db.Put(devNew)

	l1, l2, l3 := devOld.Devlinks()[0], devOld.Devlinks()[1], devNew.Devlinks()[1]

	if err := l.Updater.Update(context.Background(), devNew, l1, true); err != nil {
		t.Fatalf("seed L1 claim: %v", err)
	}
	if err := l.Updater.Update(context.Background(), devNew, l2, true); err != nil {
		t.Fatalf("seed L2 claim: %v", err)
	}

	if err := l.ReconcileOldLinks(context.Background(), devNew, devOld); err != nil {
		t.Fatalf("ReconcileOldLinks error = %v", err)
	}

	if _, err := os.Lstat(l2); !os.IsNotExist(err) {
		t.Errorf("L2 should have been retracted by ReconcileOldLinks")
	}
	if _, err := os.Lstat(l1); err != nil {
		t.Errorf("L1 should be untouched by ReconcileOldLinks: %v", err)
	}
	if _, err := os.Lstat(l3); err == nil || !os.IsNotExist(err) {
		// L3 was never claimed in this test, it must remain untouched/absent.
		t.Errorf("L3 should remain absent after ReconcileOldLinks: %v", err)
	}
}

func TestLinker_AddNode_RemoveNode_CanonicalAndStableLinks(t *testing.T) {
	db := make(device.MapDatabase)
	runRoot := t.TempDir()
	rootDir := t.TempDir()

	a := &device.Record{
		ID:          "b8:0",
		Name:        "/dev/sda",
		Major:       8,
		Minor:       0,
		Sys:         "block",
		Initialized: true,
		Links:       []string{"/dev/disk/by-label/ROOT"},
	}
	db.Put(a)

	l := NewLinker(runRoot, EffectiveDevRoot(rootDir), db)
	l.RootDir = rootDir

	// Stand in for the real device node so filepath.EvalSymlinks below can
	// resolve through it (ApplyPermissions treats a plain file here as
	// belonging to a different device and benignly skips it, same as any
	// other node-identity mismatch).
	rootedName := joinRoot(rootDir, a.DevName())
	if err := os.MkdirAll(filepath.Dir(rootedName), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(rootedName, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	opts := PermissionOptions{Mode: ModeInvalid, UID: UIDInvalid, GID: GIDInvalid}
	if err := l.AddNode(context.Background(), a, opts); err != nil {
		t.Fatalf("AddNode error = %v", err)
	}

	canonical := filepath.Join(EffectiveDevRoot(rootDir), "block", "8:0")
	resolvedCanonical, err := filepath.EvalSymlinks(canonical)
	if err != nil {
		t.Fatalf("EvalSymlinks(canonical): %v", err)
	}
	if resolvedCanonical != rootedName {
		t.Errorf("canonical link resolves to %q, want %q", resolvedCanonical, rootedName)
	}

	rootedLink := joinRoot(rootDir, a.Links[0])
	resolvedLink, err := filepath.EvalSymlinks(rootedLink)
	if err != nil {
		t.Fatalf("EvalSymlinks(devlink): %v", err)
	}
	if resolvedLink != rootedName {
		t.Errorf("stable link resolves to %q, want %q", resolvedLink, rootedName)
	}

	if err := l.RemoveNode(context.Background(), a); err != nil {
		t.Fatalf("RemoveNode error = %v", err)
	}
	if _, err := os.Lstat(canonical); !os.IsNotExist(err) {
		t.Errorf("canonical devnum link should be removed after RemoveNode")
	}
	if _, err := os.Lstat(rootedLink); !os.IsNotExist(err) {
		t.Errorf("stable link should be removed after RemoveNode")
	}
}

func TestFindWinner_EmptyIndexReturnsNotFound(t *testing.T) {
	db := make(device.MapDatabase)
	dir := filepath.Join(t.TempDir(), "missing")

	_, err := FindWinner(dir, nil, db)
	if err == nil {
		t.Fatal("expected an error for a missing index directory with no seed")
	}
}

func TestFindWinner_SeedWinsWhenIndexMissing(t *testing.T) {
	db := make(device.MapDatabase)
	dir := filepath.Join(t.TempDir(), "missing")

	self := &Candidate{DeviceID: "b8:0", DevName: "/dev/sda", Priority: 5}
	got, err := FindWinner(dir, self, db)
	if err != nil {
		t.Fatalf("FindWinner error = %v", err)
	}
	if got != "/dev/sda" {
		t.Errorf("FindWinner() = %q, want /dev/sda", got)
	}
}
