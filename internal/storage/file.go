package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"delaybot/internal/job"
	logx "delaybot/pkg/logx"
)

// fileStore keeps all pending jobs in memory and makes every change durable
// through an append-only journal.
//
// Files (prefix is Path without extension, plus the namespace when set):
//   - <prefix>.jobs.snapshot.json (compacted state)
//   - <prefix>.jobs.journal.jsonl (one record per Insert/Delete, fsynced)
type fileStore struct {
	log logx.Logger
	fs  afero.Fs

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	journal      afero.File
	// journalSize is the length of the journal's complete records; a failed
	// append is cut back to it.
	journalSize int64
	// broken is set when a failed append could not be cut back. Writes then
	// fail until the process restarts and replay heals the journal.
	broken error
	closed bool

	jobs map[string]job.Job

	writes       int
	compactEvery int
}

const (
	opPut = "put"
	opDel = "del"
)

type journalRecord struct {
	Op  string   `json:"op"`
	ID  string   `json:"id"`
	Job *job.Job `json:"job,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		base += "." + ns
	}
	prefix := filepath.Join(dir, base)

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 500
	}
	s := &fileStore{
		log:          log,
		fs:           fs,
		snapshotPath: prefix + ".jobs.snapshot.json",
		journalPath:  prefix + ".jobs.journal.jsonl",
		jobs:         map[string]job.Job{},
		compactEvery: every,
	}

	if err := s.loadSnapshot(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	replayed, torn, err := s.replayJournal()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := fs.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf
	fi, err := jf.Stat()
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	s.journalSize = fi.Size()

	// Fold a non-empty journal into the snapshot so restarts stay cheap. An
	// unreadable line may lack its newline, and appending after it would glue
	// the next record onto the torn bytes, so that case must truncate.
	if replayed > 0 || torn > 0 {
		if err := s.compactLocked(); err != nil {
			if torn > 0 || s.broken != nil {
				if s.journal != nil {
					_ = s.journal.Close()
				}
				return nil, fmt.Errorf("storage: rewrite torn journal %s: %w", s.journalPath, err)
			}
			log.Warn("journal compaction on open failed", logx.Err(err))
		}
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("jobs", len(s.jobs)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Insert(ctx context.Context, j job.Job) error {
	_ = ctx
	if err := j.Validate(); err != nil {
		return err
	}
	j = j.Clone()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.jobs[j.ID]; ok {
		return ErrDuplicateID
	}
	if err := s.appendLocked(journalRecord{Op: opPut, ID: j.ID, Job: &j}); err != nil {
		return err
	}
	s.jobs[j.ID] = j
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.jobs[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: opDel, ID: id}); err != nil {
		return err
	}
	delete(s.jobs, id)
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) Get(ctx context.Context, id string) (job.Job, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return job.Job{}, false, ErrClosed
	}
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, false, nil
	}
	return j.Clone(), true, nil
}

func (s *fileStore) ListPending(ctx context.Context, asOf time.Time) ([]job.Job, error) {
	return s.list(func(j job.Job) bool { return j.RunAt.After(asOf) })
}

func (s *fileStore) ListAll(ctx context.Context) ([]job.Job, error) {
	return s.list(func(job.Job) bool { return true })
}

func (s *fileStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.jobs), nil
}

func (s *fileStore) list(keep func(job.Job) bool) ([]job.Job, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	s.mu.Unlock()
	sortByRunAt(out)
	return out, nil
}

// appendLocked writes one journal line and fsyncs it. Call with s.mu held.
//
// On failure the journal is cut back to its last complete record, so neither
// the failed record nor a torn prefix of it survives to be replayed or to
// swallow the next append.
func (s *fileStore) appendLocked(r journalRecord) error {
	if s.broken != nil {
		return s.broken
	}
	if s.journal == nil {
		return errors.New("storage: journal unavailable")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = s.journal.Write(b)
	if err == nil {
		err = s.journal.Sync()
	}
	if err != nil {
		if rerr := s.rewindLocked(); rerr != nil {
			s.broken = fmt.Errorf("storage: journal %s left inconsistent: %w", s.journalPath, rerr)
			s.log.Error("journal rollback failed, refusing further writes",
				logx.String("journal", s.journalPath), logx.Err(rerr))
		}
		return err
	}
	s.journalSize += int64(len(b))
	return nil
}

// rewindLocked truncates the journal to journalSize and makes that durable.
func (s *fileStore) rewindLocked() error {
	if err := s.journal.Truncate(s.journalSize); err != nil {
		return err
	}
	// O_APPEND ignores the offset, but not every afero.Fs honours O_APPEND.
	if _, err := s.journal.Seek(s.journalSize, io.SeekStart); err != nil {
		return err
	}
	return s.journal.Sync()
}

func (s *fileStore) afterWriteLocked() {
	s.writes++
	if s.writes%s.compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		// The journal still holds every change; compaction is retried later.
		s.log.Warn("journal compaction failed", logx.Err(err))
	}
}

// compactLocked writes the current state to the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	list := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	sortByRunAt(list)

	tmp := s.snapshotPath + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(list); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	// Replaying the old journal on top of the new snapshot is harmless, so a
	// crash between rename and truncate loses nothing.
	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
	}
	jf, err := s.fs.OpenFile(s.journalPath, os.O_CREATE|os.O_TRUNC|os.O_APPEND|os.O_WRONLY, 0o600)
	if err == nil {
		s.journal = jf
		s.journalSize = 0
		return nil
	}

	// Keep appending to the old journal; it ends on a complete record and
	// replays cleanly on top of the new snapshot.
	jf, aerr := s.fs.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if aerr != nil {
		s.broken = fmt.Errorf("storage: reopen journal %s: %w", s.journalPath, aerr)
		return errors.Join(err, aerr)
	}
	fi, serr := jf.Stat()
	if serr != nil {
		_ = jf.Close()
		s.broken = fmt.Errorf("storage: stat journal %s: %w", s.journalPath, serr)
		return errors.Join(err, serr)
	}
	s.journal = jf
	s.journalSize = fi.Size()
	return err
}

func (s *fileStore) loadSnapshot() error {
	f, err := s.fs.Open(s.snapshotPath)
	if err != nil {
		return err
	}
	defer f.Close()
	var list []job.Job
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return err
	}
	for _, j := range list {
		if j.ID == "" {
			continue
		}
		s.jobs[j.ID] = j
	}
	return nil
}

// replayJournal applies the journal on top of the snapshot. It reports how many
// records were applied and how many lines could not be parsed.
func (s *fileStore) replayJournal() (applied, torn int, err error) {
	f, err := s.fs.Open(s.journalPath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// A torn final line after a crash; the write never returned success.
			s.log.Warn("skipping unreadable journal line", logx.Err(err))
			torn++
			continue
		}
		switch r.Op {
		case opPut:
			if r.Job != nil && r.Job.ID != "" {
				s.jobs[r.Job.ID] = *r.Job
			}
		case opDel:
			delete(s.jobs, r.ID)
		default:
			continue
		}
		applied++
	}
	return applied, torn, sc.Err()
}
