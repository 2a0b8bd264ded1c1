// Package analyze extracts PATH contributions from LMOD modulefiles and
// enumerates the executables they make available. The extraction regexp
// is compiled once at package init and anchored with ^/$ in MultiLine
// mode to match one prepend_path statement per line.
package analyze

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"github.com/codeandkey/mii/internal/crawl"
)

// lmodPathRegexp matches a single-line `prepend_path("PATH", "<dir>")`
// statement, with an optional trailing `, ":"` separator argument and
// arbitrary horizontal whitespace around tokens.
var lmodPathRegexp = regexp.MustCompile(`(?m)^[ \t]*prepend_path[ \t]*\([ \t]*"PATH"[ \t]*,[ \t]*"([^"]+)"[ \t]*(?:,[ \t]*":"[ \t]*)?\)[ \t]*$`)

// Info is the result of analyzing a single module file: the file itself,
// plus the ordered (possibly duplicate-containing) list of command names
// its PATH contributions expose.
type Info struct {
	File crawl.File
	Bins []string
}

// Analyze reads file.Path once and extracts its bins. LMOD files are
// scanned for prepend_path statements; TCL files always yield an empty
// Bins slice, since mii never interprets TCL modulefile grammar.
func Analyze(file crawl.File) (Info, error) {
	contents, err := os.ReadFile(file.Path)
	if err != nil {
		return Info{}, errors.Wrapf(err, "reading module file %s", file.Path)
	}

	var bins []string
	if file.Type == crawl.LMOD {
		bins = extractBins(contents)
	}

	return Info{File: file, Bins: bins}, nil
}

// extractBins finds every prepend_path("PATH", dir) statement in contents,
// in file order, and appends every executable entry of each contributed
// directory, in the filesystem's reported order. Directories that can't be
// read are skipped silently.
func extractBins(contents []byte) []string {
	var bins []string
	for _, m := range lmodPathRegexp.FindAllSubmatch(contents, -1) {
		bins = append(bins, listExecutables(string(m[1]))...)
	}
	return bins
}

// listExecutables lists the non-recursive contents of dir and returns the
// basenames of every non-directory entry with any execute permission bit
// set, following symlinks (see isExecutable). Whether the invoking process
// itself may execute the entry is not checked. Unreadable directories
// yield no entries rather than an error.
func listExecutables(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if isExecutable(path) {
			out = append(out, e.Name())
		}
	}
	return out
}

// isExecutable reports whether path has any executable bit set. A true
// permission check would need the kernel's own access(2) against the
// real uid/gid; this stat-based approximation stays portable across the
// HPC platforms mii runs on without pulling in golang.org/x/sys/unix.
func isExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	return fi.Mode()&0o111 != 0
}
