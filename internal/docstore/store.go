// Package docstore keeps document templates in a flat directory. Each stored file
// is named "<8 hex chars>_<original name>" so uploads never collide.
package docstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const prefixLen = 8

var (
	ErrNotFound       = errors.New("template not found")
	ErrInvalidName    = errors.New("invalid template name")
	ErrTooLarge       = errors.New("template too large")
	ErrUnsupportedExt = errors.New("unsupported template type")
)

// DefaultExtensions are the accepted template file types
var DefaultExtensions = []string{".odt", ".ott"}

// Template describes one stored file
type Template struct {
	// Name is the stored file name, unique within the directory
	Name     string    `json:"name"`
	Original string    `json:"original"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Store manages the template directory
type Store struct {
	dir        string
	extensions []string
	logger     *slog.Logger
}

// New creates a store rooted at dir. The directory is created if missing.
func New(dir string, extensions []string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("template directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create template directory: %w", err)
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Store{dir: dir, extensions: extensions, logger: logger}, nil
}

// Dir returns the template directory
func (s *Store) Dir() string {
	return s.dir
}

// SanitizeName reduces an uploaded file name to a safe base name
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return -1
		case unicode.IsControl(r):
			return -1
		case unicode.IsSpace(r):
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "." {
		return ""
	}
	return name
}

// OriginalName strips the random prefix from a stored name
func OriginalName(stored string) string {
	if len(stored) > prefixLen+1 && stored[prefixLen] == '_' && isHex(stored[:prefixLen]) {
		return stored[prefixLen+1:]
	}
	return stored
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func (s *Store) allowedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Save stores r under a fresh prefixed name. At most maxBytes are accepted
// (0 means unlimited).
func (s *Store) Save(original string, r io.Reader, maxBytes int64) (*Template, error) {
	base := SanitizeName(original)
	if base == "" {
		return nil, ErrInvalidName
	}
	if !s.allowedExt(base) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExt, filepath.Ext(base))
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	stored := uuid.New().String()[:prefixLen] + "_" + base
	dst := filepath.Join(s.dir, stored)
	if err := os.Rename(tmpName, dst); err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}
	if err := os.Chmod(dst, 0o640); err != nil {
		s.logger.Warn("failed to set template permissions", "name", stored, "error", err)
	}

	s.logger.Info("template stored", "name", stored, "size", n)
	return &Template{Name: stored, Original: base, Size: n, ModTime: time.Now()}, nil
}

// Import copies the file at path into the store
func (s *Store) Import(path string, maxBytes int64) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Save(filepath.Base(path), f, maxBytes)
}

// List returns the stored templates sorted by original name
func (s *Store) List() ([]Template, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}

	var out []Template
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), ".") || !s.allowedExt(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Template{
			Name:     de.Name(),
			Original: OriginalName(de.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Original != out[j].Original {
			return out[i].Original < out[j].Original
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Path resolves a stored name to its file, refusing anything outside the directory
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	p := filepath.Join(s.dir, name)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// Get returns metadata for a stored template
func (s *Store) Get(name string) (*Template, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, Original: OriginalName(name), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Open opens a stored template for reading
func (s *Store) Open(name string) (*os.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Delete removes a stored template
func (s *Store) Delete(name string) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	s.logger.Info("template deleted", "name", name)
	return nil
}
