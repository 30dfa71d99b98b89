// Package docmerge fills ODF-style document templates: a zip archive whose
// content entry is XML carrying $key placeholders in its text.
package docmerge

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/beevik/etree"

	"github.com/belkagoyda/orex-workspace/internal/metrics"
)

// DefaultContentEntry is the archive entry holding the document body
const DefaultContentEntry = "content.xml"

// MimeTypeODT is the media type of generated text documents
const MimeTypeODT = "application/vnd.oasis.opendocument.text"

const (
	treeDir    = "tree"
	outputName = "merged.odt"
)

// Options configures an Engine
type Options struct {
	// WorkDir is the parent of per-merge workspaces; empty uses os.TempDir()
	WorkDir      string
	ContentEntry string
	Limits       Limits
}

// Engine merges value maps into document templates. It holds no per-merge
// state and is safe for concurrent use.
type Engine struct {
	workDir      string
	contentEntry string
	limits       Limits
	logger       *slog.Logger
}

// NewEngine creates a merge engine
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if opts.ContentEntry == "" {
		opts.ContentEntry = DefaultContentEntry
	}
	return &Engine{
		workDir:      opts.WorkDir,
		contentEntry: opts.ContentEntry,
		limits:       opts.Limits.withDefaults(),
		logger:       logger,
	}
}

// Result is a merged archive inside its workspace. The caller must Close it once
// the archive has been delivered.
type Result struct {
	Path      string
	Workspace *Workspace
}

// Open opens the merged archive for reading
func (r *Result) Open() (*os.File, error) {
	return os.Open(r.Path)
}

// Close disposes of the workspace, including the merged archive
func (r *Result) Close() error {
	if r == nil || r.Workspace == nil {
		return nil
	}
	return r.Workspace.Close()
}

// Merge fills the template at templatePath with values. On failure the
// workspace is already removed and the error matches ErrTemplate.
func (e *Engine) Merge(ctx context.Context, templatePath string, values map[string]string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveMerge(start, err)
	}()

	ws, err := NewWorkspace(e.workDir)
	if err != nil {
		return nil, wrap("workspace", err)
	}
	defer func() {
		if err != nil {
			if cerr := ws.Close(); cerr != nil {
				e.logger.Warn("failed to remove workspace", "dir", ws.Dir(), "error", cerr)
			}
		}
	}()

	root := ws.Path(treeDir)
	entries, err := unpack(ctx, templatePath, root, e.limits)
	if err != nil {
		return nil, wrap("unpack", err)
	}

	contentPath := filepath.Join(root, filepath.FromSlash(e.contentEntry))
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(contentPath); err != nil {
		if isNotExist(err) {
			return nil, wrap("load", fmt.Errorf("%w: %s", ErrContentMissing, e.contentEntry))
		}
		return nil, wrap("parse", err)
	}

	changed, err := Substitute(ctx, doc, values)
	if err != nil {
		return nil, wrap("substitute", err)
	}

	ensureDeclaration(doc)
	if err := doc.WriteToFile(contentPath); err != nil {
		return nil, wrap("serialize", err)
	}

	out := ws.Path(outputName)
	if err := pack(ctx, root, out, entries); err != nil {
		return nil, wrap("pack", err)
	}

	e.logger.Debug("template merged",
		"template", filepath.Base(templatePath),
		"keys", len(values),
		"text_runs_changed", changed,
		"duration", time.Since(start),
	)

	return &Result{Path: out, Workspace: ws}, nil
}

// WriteTo merges and copies the archive to w, disposing of the workspace afterwards
func (e *Engine) WriteTo(ctx context.Context, w io.Writer, templatePath string, values map[string]string) (int64, error) {
	res, err := e.Merge(ctx, templatePath, values)
	if err != nil {
		return 0, err
	}
	defer res.Close()

	f, err := res.Open()
	if err != nil {
		return 0, wrap("deliver", err)
	}
	defer f.Close()

	return io.Copy(w, f)
}

var placeholderRe = regexp.MustCompile(`\$[\p{L}\p{N}_]+`)

// Placeholders lists the distinct $key tokens (without the prefix) found in the
// text of the template's content entry
func (e *Engine) Placeholders(templatePath string) ([]string, error) {
	if err := checkArchiveSize(templatePath, e.limits); err != nil {
		return nil, wrap("open", err)
	}

	zr, err := zip.OpenReader(templatePath)
	if err != nil {
		return nil, wrap("open", err)
	}
	defer zr.Close()

	var content *zip.File
	for _, f := range zr.File {
		if f.Name == e.contentEntry {
			content = f
			break
		}
	}
	if content == nil {
		return nil, wrap("load", fmt.Errorf("%w: %s", ErrContentMissing, e.contentEntry))
	}

	rc, err := content.Open()
	if err != nil {
		return nil, wrap("load", err)
	}
	defer rc.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(io.LimitReader(rc, e.limits.MaxUnpackedBytes)); err != nil {
		return nil, wrap("parse", err)
	}
	if doc.Root() == nil {
		return nil, wrap("parse", ErrContentMissing)
	}

	found := make(map[string]bool)
	var visit func(el *etree.Element)
	visit = func(el *etree.Element) {
		for _, m := range placeholderRe.FindAllString(el.Text(), -1) {
			found[m[len(TokenPrefix):]] = true
		}
		for _, child := range el.ChildElements() {
			visit(child)
		}
		for _, m := range placeholderRe.FindAllString(el.Tail(), -1) {
			found[m[len(TokenPrefix):]] = true
		}
	}
	visit(doc.Root())

	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
