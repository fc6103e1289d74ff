package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	data   []byte
	calls  int
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) SnapshotTo(dstPath string) error {
	f.calls++
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(dstPath, f.data, 0644)
}

func TestNewManager_Disabled(t *testing.T) {
	t.Parallel()

	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/journalscope.duckdb"}, Config{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil manager when disabled")
	}
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewManager(&fakeSnapshotter{}, Config{Enabled: true, LocalDir: t.TempDir()}); err == nil {
		t.Error("expected error for in-memory store")
	}
	if _, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/x.duckdb"}, Config{Enabled: true}); err == nil {
		t.Error("expected error for missing backup dir")
	}
	if _, err := NewManager(nil, Config{Enabled: true, LocalDir: t.TempDir()}); err == nil {
		t.Error("expected error for nil snapshotter")
	}
}

func TestNewManager_StartupSnapshot(t *testing.T) {
	t.Parallel()

	store := &fakeSnapshotter{dbPath: "/tmp/journalscope.duckdb", data: []byte("x")}
	m, err := NewManager(store, Config{Enabled: true, LocalDir: t.TempDir(), Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Stop()
	m.Stop()
	if store.calls != 1 {
		t.Fatalf("snapshots = %d, want 1", store.calls)
	}
}

func TestRunOnce_CreatesAndPrunes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Manager{
		store: &fakeSnapshotter{dbPath: "/tmp/journalscope.duckdb", data: []byte("snapshot")},
		cfg:   Config{Enabled: true, LocalDir: dir, KeepLast: 2},
		now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
	}

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := m.RunOnce()
		if err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
		if !strings.HasSuffix(p, fileSuffix) {
			t.Fatalf("snapshot path %s lacks %s", p, fileSuffix)
		}
		paths = append(paths, p)
	}

	files, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("snapshot files = %d, want 2", len(files))
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Errorf("oldest snapshot not pruned: %v", err)
	}
}
