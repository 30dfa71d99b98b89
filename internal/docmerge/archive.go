package docmerge

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const mimetypeEntry = "mimetype"

// Limits bounds the work done for a single template
type Limits struct {
	MaxArchiveBytes  int64
	MaxUnpackedBytes int64
	MaxEntries       int
}

// DefaultLimits are applied to zero fields
var DefaultLimits = Limits{
	MaxArchiveBytes:  20 << 20,
	MaxUnpackedBytes: 100 << 20,
	MaxEntries:       2000,
}

func (l Limits) withDefaults() Limits {
	if l.MaxArchiveBytes <= 0 {
		l.MaxArchiveBytes = DefaultLimits.MaxArchiveBytes
	}
	if l.MaxUnpackedBytes <= 0 {
		l.MaxUnpackedBytes = DefaultLimits.MaxUnpackedBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultLimits.MaxEntries
	}
	return l
}

// entry remembers how a file was stored so it can be written back the same way
type entry struct {
	name     string
	method   uint16
	modified time.Time
	dir      bool
}

// checkArchiveSize rejects templates larger than the limit before opening them
func checkArchiveSize(path string, limits Limits) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > limits.MaxArchiveBytes {
		return fmt.Errorf("%w: %d bytes", ErrArchiveTooLarge, info.Size())
	}
	return nil
}

// unpack extracts the archive at src into dst and returns its entries in archive order
func unpack(ctx context.Context, src, dst string, limits Limits) ([]entry, error) {
	if err := checkArchiveSize(src, limits); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	if len(zr.File) > limits.MaxEntries {
		return nil, fmt.Errorf("%w: %d", ErrTooManyEntries, len(zr.File))
	}

	remaining := limits.MaxUnpackedBytes
	entries := make([]entry, 0, len(zr.File))
	seen := make(map[string]bool, len(zr.File))

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(f.Name, "/")
		if name == "" {
			continue
		}
		local := filepath.FromSlash(name)
		if !filepath.IsLocal(local) || strings.Contains(f.Name, `\`) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
		}
		target := filepath.Join(dst, local)

		isDir := f.FileInfo().IsDir()
		if !isDir && !f.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, f.Name)
		}

		if isDir {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return nil, err
			}
		} else {
			n, err := extractFile(f, target, remaining)
			if err != nil {
				return nil, err
			}
			remaining -= n
		}

		if !seen[name] {
			seen[name] = true
			entries = append(entries, entry{
				name:     name,
				method:   f.Method,
				modified: f.Modified,
				dir:      isDir,
			})
		}
	}

	return entries, nil
}

func extractFile(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}

	// declared sizes are not trusted; count what is actually inflated
	n, err := io.Copy(out, io.LimitReader(rc, remaining+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if n > remaining {
		return n, fmt.Errorf("%w: unpacked content over %d bytes", ErrArchiveTooLarge, remaining)
	}
	return n, nil
}

// pack writes every file under root into a new archive at out. Entries known from
// the template keep their order and compression method; mimetype always goes
// first and uncompressed. out itself is never added.
func pack(ctx context.Context, root, out string, known []entry) error {
	files, err := collect(ctx, root, out)
	if err != nil {
		return err
	}

	ordered := orderEntries(known, files)

	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create output archive: %w", err)
	}

	zw := zip.NewWriter(f)
	for _, e := range ordered {
		if err := ctx.Err(); err != nil {
			zw.Close()
			f.Close()
			return err
		}
		if err := writeEntry(zw, root, e); err != nil {
			zw.Close()
			f.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finish output archive: %w", err)
	}
	return f.Close()
}

// collect walks root and returns slash-separated relative paths of regular files and directories
func collect(ctx context.Context, root, exclude string) (map[string]bool, error) {
	files := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root || path == exclude {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = d.IsDir()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}
	return files, nil
}

func orderEntries(known []entry, files map[string]bool) []entry {
	out := make([]entry, 0, len(files))
	placed := make(map[string]bool, len(files))

	add := func(e entry) {
		if placed[e.name] {
			return
		}
		if _, ok := files[e.name]; !ok {
			return
		}
		placed[e.name] = true
		out = append(out, e)
	}

	for _, e := range known {
		if e.name == mimetypeEntry {
			add(e)
		}
	}
	for _, e := range known {
		add(e)
	}

	var extra []string
	for name := range files {
		if !placed[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		// directories that only exist on disk are implied by their files
		if files[name] {
			continue
		}
		add(entry{name: name, method: zip.Deflate, modified: time.Now()})
	}
	return out
}

func writeEntry(zw *zip.Writer, root string, e entry) error {
	hdr := &zip.FileHeader{
		Name:     e.name,
		Method:   e.method,
		Modified: e.modified,
	}
	if e.name == mimetypeEntry {
		hdr.Method = zip.Store
	}
	if e.dir {
		hdr.Name += "/"
		hdr.Method = zip.Store
		_, err := zw.CreateHeader(hdr)
		return err
	}
	if hdr.Method != zip.Store && hdr.Method != zip.Deflate {
		hdr.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", e.name, err)
	}
	src, err := os.Open(filepath.Join(root, filepath.FromSlash(e.name)))
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to add %s: %w", e.name, err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
