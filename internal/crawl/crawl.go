// Package crawl walks a module search path and emits candidate module
// files using a two-stage producer/consumer shape: one goroutine
// enumerates paths, a second opens and hashes them, joined over a channel
// terminated by a close rather than a sentinel value.
package crawl

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/codeandkey/mii/internal/milog"
)

// Type distinguishes the modulefile grammars mii recognizes.
type Type int

const (
	// LMOD is a Lua-based Lmod modulefile.
	LMOD Type = iota
	// TCL is a legacy TCL modulefile; enumerated but never parsed.
	TCL
)

func (t Type) String() string {
	if t == LMOD {
		return "lmod"
	}
	return "tcl"
}

// File is a candidate module discovered on disk. Hash is zero until
// Crawl's reader stage has read the file's contents.
type File struct {
	Path string
	Code string
	Type Type
	Hash uint32
}

// candidate is the walker's untyped output, before the reader stage has
// attached a content hash.
type candidate struct {
	path string
	code string
	typ  Type
}

// Crawl walks every root in modulePath (colon-separated, matching
// Lmod's own MODULEPATH convention) and returns every module file it
// could open and hash. Files that fail to open are logged and dropped
// rather than aborting the whole crawl.
func Crawl(modulePath string, log *milog.Loggers) []File {
	roots := strings.Split(modulePath, ":")

	candidates := make(chan candidate)
	go func() {
		defer close(candidates)
		for _, root := range roots {
			if root == "" {
				continue
			}
			walkRoot(root, candidates, log)
		}
	}()

	var out []File
	seen := 0
	for c := range candidates {
		seen++
		data, err := os.ReadFile(c.path)
		if err != nil {
			log.Warnf("reading module file %s: %v", c.path, err)
			continue
		}

		out = append(out, File{
			Path: c.path,
			Code: c.code,
			Type: c.typ,
			Hash: uint32(xxhash.Sum64(data)),
		})
	}

	if seen == 0 {
		log.Warnf("no module files found in MODULEPATH %q, check your configuration", modulePath)
	}

	return out
}

// walkRoot walks a single root directory, skipping dotfiles/dotdirs, and
// sends every regular file it finds to out. Symlinked files are indexed;
// symlinked directories are not descended into (see DESIGN.md).
func walkRoot(root string, out chan<- candidate, log *milog.Loggers) {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtree: skip it, not fatal to the whole crawl.
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		typ, code := classify(rel)
		out <- candidate{path: path, code: code, typ: typ}
		return nil
	})
	if err != nil {
		// The walk function above only returns an error for root itself, so
		// this can only fire if root itself can't be opened.
		log.Warnf("%s", errors.Wrap(err, "walk "+root))
	}
}

// classify derives a module's Type and root-relative code from its
// root-relative path. LMOD files carry a literal ".lua" extension and
// drop it from the code; everything else is TCL and keeps its full
// relative path including basename.
func classify(rel string) (Type, string) {
	rel = filepath.ToSlash(rel)
	if ext := filepath.Ext(rel); ext == ".lua" {
		return LMOD, strings.TrimSuffix(rel, ext)
	}
	return TCL, rel
}
