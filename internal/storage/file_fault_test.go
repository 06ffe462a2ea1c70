package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

var errDiskFull = errors.New("no space left on device")

// faultFs fails the next journal operation of each armed kind once.
type faultFs struct {
	afero.Fs

	mu            sync.Mutex
	tornWrite     bool // write half the record, then fail
	failSync      bool
	failTruncate  bool
	failTruncOpen bool // reopening the journal with O_TRUNC fails
}

func newFaultFs() *faultFs { return &faultFs{Fs: afero.NewOsFs()} }

func (fs *faultFs) take(flag *bool) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v := *flag
	*flag = false
	return v
}

func (fs *faultFs) arm(flag *bool) {
	fs.mu.Lock()
	*flag = true
	fs.mu.Unlock()
}

func (fs *faultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	journal := strings.HasSuffix(name, ".journal.jsonl")
	if journal && flag&os.O_TRUNC != 0 && fs.take(&fs.failTruncOpen) {
		return nil, errDiskFull
	}
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil || !journal {
		return f, err
	}
	return &faultFile{File: f, fs: fs}, nil
}

type faultFile struct {
	afero.File
	fs *faultFs
}

func (f *faultFile) Write(p []byte) (int, error) {
	if f.fs.take(&f.fs.tornWrite) {
		n, _ := f.File.Write(p[:len(p)/2])
		return n, errDiskFull
	}
	return f.File.Write(p)
}

func (f *faultFile) Sync() error {
	if f.fs.take(&f.fs.failSync) {
		return errDiskFull
	}
	return f.File.Sync()
}

func (f *faultFile) Truncate(size int64) error {
	if f.fs.take(&f.fs.failTruncate) {
		return errDiskFull
	}
	return f.File.Truncate(size)
}

func reopenIDs(t *testing.T, path string) []string {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	all, err := st.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	return idsOf(all)
}

func TestFileStoreRollsBackFailedAppends(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		arm  func(fs *faultFs)
	}{
		{"torn write", func(fs *faultFs) { fs.arm(&fs.tornWrite) }},
		{"sync failure", func(fs *faultFs) { fs.arm(&fs.failSync) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "jobs.json")
			fs := newFaultFs()
			ctx := context.Background()
			runAt := time.Now().Add(time.Hour).UTC()

			st, err := Open(Config{Driver: "file", Path: path, Fs: fs}, logxNop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := st.Insert(ctx, testJob("kept", runAt)); err != nil {
				t.Fatalf("Insert(kept): %v", err)
			}

			tc.arm(fs)
			if err := st.Insert(ctx, testJob("failed", runAt)); !errors.Is(err, errDiskFull) {
				t.Fatalf("Insert(failed) err = %v, want %v", err, errDiskFull)
			}
			if _, ok, _ := st.Get(ctx, "failed"); ok {
				t.Fatal("failed Insert is visible")
			}
			if err := st.Insert(ctx, testJob("later", runAt)); err != nil {
				t.Fatalf("Insert(later): %v", err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			if ids := reopenIDs(t, path); len(ids) != 2 || ids[0] != "kept" || ids[1] != "later" {
				t.Fatalf("ids after reopen = %v, want [kept later]", ids)
			}
		})
	}
}

func TestFileStoreRefusesWritesWhenRollbackFails(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	fs := newFaultFs()
	ctx := context.Background()
	runAt := time.Now().Add(time.Hour).UTC()

	st, err := Open(Config{Driver: "file", Path: path, Fs: fs}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Insert(ctx, testJob("kept", runAt)); err != nil {
		t.Fatalf("Insert(kept): %v", err)
	}

	fs.arm(&fs.tornWrite)
	fs.arm(&fs.failTruncate)
	if err := st.Insert(ctx, testJob("failed", runAt)); err == nil {
		t.Fatal("Insert(failed) succeeded")
	}
	if err := st.Insert(ctx, testJob("later", runAt)); err == nil {
		t.Fatal("Insert after failed rollback succeeded")
	}
	if err := st.Delete(ctx, "kept"); err == nil {
		t.Fatal("Delete after failed rollback succeeded")
	}
	if _, ok, err := st.Get(ctx, "kept"); err != nil || !ok {
		t.Fatalf("Get(kept) = %v, %v", ok, err)
	}
	_ = st.Close()

	if ids := reopenIDs(t, path); len(ids) != 1 || ids[0] != "kept" {
		t.Fatalf("ids after reopen = %v, want [kept]", ids)
	}
}

func TestFileStoreKeepsWritingWhenCompactionCannotTruncate(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	fs := newFaultFs()
	ctx := context.Background()
	runAt := time.Now().Add(time.Hour).UTC()

	st, err := Open(Config{Driver: "file", Path: path, CompactEvery: 2, Fs: fs}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs.arm(&fs.failTruncOpen)
	for _, id := range []string{"j1", "j2", "j3"} {
		if err := st.Insert(ctx, testJob(id, runAt)); err != nil {
			t.Fatalf("Insert(%s): %v", id, err)
		}
	}
	if err := st.Delete(ctx, "j1"); err != nil {
		t.Fatalf("Delete(j1): %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if ids := reopenIDs(t, path); len(ids) != 2 || ids[0] != "j2" || ids[1] != "j3" {
		t.Fatalf("ids after reopen = %v, want [j2 j3]", ids)
	}
}
