package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/jmgilman/oceanctl/internal/model"
)

const (
	lockTimeout = 5 * time.Second
	fileMode    = 0600
	dirMode     = 0750
)

// ErrLockTimeout is returned when the journal file stays locked by another
// process.
var ErrLockTimeout = errors.New("timed out waiting for journal lock")

// Journal persists the tracker's local job records between processes.
//
//go:generate go run github.com/matryer/moq@latest -pkg mocks -out mocks/journal.go . Journal
type Journal interface {
	// Load returns every recorded job.
	Load(ctx context.Context) ([]model.Job, error)

	// Put inserts or replaces the record of job.ID.
	Put(ctx context.Context, job model.Job) error

	// Remove deletes the record of id. Removing an absent record is not an
	// error.
	Remove(ctx context.Context, id string) error
}

// journalFile is the on-disk journal format.
type journalFile struct {
	Version int         `json:"version"`
	Jobs    []model.Job `json:"jobs"`
}

// FileJournal is a Journal backed by a JSON file guarded by flock.
type FileJournal struct {
	path string
	mu   sync.RWMutex
}

// NewFileJournal creates a journal stored at path.
func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

// Path returns the journal file path.
func (s *FileJournal) Path() string {
	return s.path
}

// Load returns every recorded job ordered by id.
func (s *FileJournal) Load(ctx context.Context) ([]model.Job, error) {
	var out []model.Job
	err := s.withSharedLock(ctx, func(jf *journalFile) error {
		out = append(out, jf.Jobs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put inserts or replaces the record of job.ID.
func (s *FileJournal) Put(ctx context.Context, job model.Job) error {
	return s.withExclusiveLock(ctx, func(jf *journalFile) bool {
		for i := range jf.Jobs {
			if jf.Jobs[i].ID == job.ID {
				jf.Jobs[i] = job
				return true
			}
		}
		jf.Jobs = append(jf.Jobs, job)
		return true
	})
}

// Remove deletes the record of id.
func (s *FileJournal) Remove(ctx context.Context, id string) error {
	return s.withExclusiveLock(ctx, func(jf *journalFile) bool {
		for i := range jf.Jobs {
			if jf.Jobs[i].ID == id {
				jf.Jobs = append(jf.Jobs[:i], jf.Jobs[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *FileJournal) withSharedLock(ctx context.Context, fn func(*journalFile) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jf, file, err := s.openAndLock(ctx, false)
	if err != nil {
		return err
	}
	defer s.unlockAndClose(file)

	return fn(jf)
}

// withExclusiveLock runs fn under a write lock and saves the file when fn
// reports a change.
func (s *FileJournal) withExclusiveLock(ctx context.Context, fn func(*journalFile) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jf, file, err := s.openAndLock(ctx, true)
	if err != nil {
		return err
	}
	defer s.unlockAndClose(file)

	if !fn(jf) {
		return nil
	}
	return s.save(jf)
}

func (s *FileJournal) openAndLock(ctx context.Context, exclusive bool) (*journalFile, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return nil, nil, fmt.Errorf("create journal directory: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal file: %w", err)
	}

	lockType := syscall.LOCK_SH
	if exclusive {
		lockType = syscall.LOCK_EX
	}
	if err := acquireLock(ctx, file, lockType); err != nil {
		file.Close()
		return nil, nil, err
	}

	jf, err := load(file)
	if err != nil {
		s.unlockAndClose(file)
		return nil, nil, err
	}
	return jf, file, nil
}

// acquireLock polls for a file lock until lockTimeout.
func acquireLock(ctx context.Context, file *os.File, lockType int) error {
	deadline := time.Now().Add(lockTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := syscall.Flock(int(file.Fd()), lockType|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("acquire file lock: %w", err)
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *FileJournal) unlockAndClose(file *os.File) {
	syscall.Flock(int(file.Fd()), syscall.LOCK_UN) //nolint:errcheck // closing releases the lock anyway
	file.Close()
}

func load(file *os.File) (*journalFile, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat journal file: %w", err)
	}
	if info.Size() == 0 {
		return &journalFile{Version: 1, Jobs: []model.Job{}}, nil
	}

	if _, err := file.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("seek journal file: %w", err)
	}

	var jf journalFile
	if err := json.NewDecoder(file).Decode(&jf); err != nil {
		return nil, fmt.Errorf("decode journal file: %w", err)
	}
	return &jf, nil
}

// save writes the journal atomically through a temp file and rename.
func (s *FileJournal) save(jf *journalFile) error {
	jf.Version = 1

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "jobs-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jf); err != nil {
		tmp.Close()
		return fmt.Errorf("encode journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename journal file: %w", err)
	}

	tmpPath = ""
	return nil
}
