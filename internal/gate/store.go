package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the allow-list and deny-list. Entries are append-only.
type Store interface {
	AllowEntries(ctx context.Context) ([]AllowEntry, error)
	DenyEntries(ctx context.Context) ([]DenyEntry, error)
	AppendAllow(ctx context.Context, e AllowEntry) error
	AppendDeny(ctx context.Context, e DenyEntry) error
	Close() error
}

// FileStore keeps each list in a line-oriented text file
type FileStore struct {
	allow *listFile
	deny  *listFile
}

// NewFileStore creates a store over the two list files. Files are created on first append.
func NewFileStore(allowPath, denyPath string) *FileStore {
	return &FileStore{
		allow: &listFile{path: allowPath, header: allowHeader},
		deny:  &listFile{path: denyPath, header: denyHeader},
	}
}

func (s *FileStore) AllowEntries(ctx context.Context) ([]AllowEntry, error) {
	var out []AllowEntry
	err := s.allow.scan(func(line string) {
		if e, ok := parseAllowLine(line); ok {
			out = append(out, e)
		}
	})
	return out, err
}

func (s *FileStore) DenyEntries(ctx context.Context) ([]DenyEntry, error) {
	var out []DenyEntry
	err := s.deny.scan(func(line string) {
		if e, ok := parseDenyLine(line); ok {
			out = append(out, e)
		}
	})
	return out, err
}

func (s *FileStore) AppendAllow(ctx context.Context, e AllowEntry) error {
	return s.allow.append(e.Line())
}

func (s *FileStore) AppendDeny(ctx context.Context, e DenyEntry) error {
	return s.deny.append(e.Line())
}

// Close is a no-op; files are opened per operation
func (s *FileStore) Close() error {
	return nil
}

// listFile serializes access to one list file
type listFile struct {
	mu     sync.RWMutex
	path   string
	header string
}

func (f *listFile) scan(fn func(line string)) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return nil
}

// append writes one full line under the write lock so concurrent appends never interleave
func (f *listFile) append(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.path, err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", f.path, err)
	}

	buf := make([]byte, 0, len(f.header)+len(line)+2)
	if info.Size() == 0 {
		buf = append(buf, f.header...)
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')

	if _, err := file.Write(buf); err != nil {
		return fmt.Errorf("failed to append to %s: %w", f.path, err)
	}
	return nil
}
