// Package engine orchestrates mii's four-phase differential sync
// (crawl -> verify -> analyze -> orphan): a single-threaded crawl, a
// channel-joined fan of per-shard workers for verify and analyze, each
// opening its own database connection, and a final single-threaded
// orphan sweep.
package engine

import (
	"math/rand"
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/codeandkey/mii/internal/analyze"
	"github.com/codeandkey/mii/internal/crawl"
	"github.com/codeandkey/mii/internal/milog"
	"github.com/codeandkey/mii/internal/store"
)

// maxWorkers bounds shard fan-out to the common core count of an HPC
// login node; beyond that, more goroutines just contend harder for the
// same database file.
const maxWorkers = 4

// Engine holds the configuration needed to run a sync: the database path
// (each phase's workers open their own connection to it) and the
// colon-separated module search path to crawl.
type Engine struct {
	DBPath     string
	ModulePath string
	Log        *milog.Loggers
}

// New returns an Engine. It does not open any connection itself; callers
// should call store.Init(dbPath) once before the first sync.
func New(dbPath, modulePath string, log *milog.Loggers) *Engine {
	return &Engine{DBPath: dbPath, ModulePath: modulePath, Log: log}
}

// Sync runs the four-phase differential sync and returns once every phase
// has completed. It is idempotent: running it twice over an unchanged
// filesystem leaves the index unchanged apart from the stamped nonce.
func (e *Engine) Sync() error {
	nonce := rand.Uint32()
	e.Log.Debugf("sync starting with nonce %d", nonce)

	start := time.Now()
	files := crawl.Crawl(e.ModulePath, e.Log)
	e.Log.Debugf("crawl phase: %d files in %s", len(files), time.Since(start))

	start = time.Now()
	toUpdate, err := e.verify(files, nonce)
	if err != nil {
		return errors.Wrap(err, "verify phase")
	}
	e.Log.Debugf("verify phase: %d stale in %s", len(toUpdate), time.Since(start))

	start = time.Now()
	if err := e.analyzeAndUpsert(toUpdate, nonce); err != nil {
		return errors.Wrap(err, "analyze phase")
	}
	e.Log.Debugf("analyze phase done in %s", time.Since(start))

	start = time.Now()
	removed, err := e.orphan(nonce)
	if err != nil {
		return errors.Wrap(err, "orphan phase")
	}
	e.Log.Debugf("orphan phase: removed %d in %s", removed, time.Since(start))

	return nil
}

// Rebuild purges the index and runs a fresh Sync, discarding every
// previously recorded module regardless of whether it still exists.
func (e *Engine) Rebuild() error {
	s, err := store.Open(e.DBPath)
	if err != nil {
		return errors.Wrap(err, "opening index for rebuild")
	}
	defer s.Close()

	if err := s.Purge(); err != nil {
		return errors.Wrap(err, "purging index")
	}

	return e.Sync()
}

// SearchExact forwards to the store's exact search.
func (e *Engine) SearchExact(cmd string) ([]store.BinResult, error) {
	s, err := store.Open(e.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening index")
	}
	defer s.Close()
	return s.SearchExact(cmd)
}

// SearchFuzzy forwards to the store's fuzzy search.
func (e *Engine) SearchFuzzy(cmd string) ([]store.BinResult, error) {
	s, err := store.Open(e.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening index")
	}
	defer s.Close()
	return s.SearchFuzzy(cmd)
}

// workerCount returns the shard count for a batch of n items: at most
// maxWorkers, never more workers than items, and always at least 1.
func workerCount(n int) int {
	w := runtime.NumCPU()
	if w > maxWorkers {
		w = maxWorkers
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// shard splits items into contiguous chunks of ceil(len(items)/n) items
// each; the last chunk is shorter when len(items) doesn't divide evenly,
// and fewer than n chunks result when the items run out early.
func shard[T any](items []T, n int) [][]T {
	if len(items) == 0 || n <= 0 {
		return nil
	}
	size := (len(items) + n - 1) / n
	var shards [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		shards = append(shards, items[i:end])
	}
	return shards
}

// verifyResult is the message a verify worker sends back over its channel:
// either a stale-file list or a fatal error. A worker sends exactly one of
// these, so the engine's receive loop knows exactly how many messages to
// expect and never hangs waiting on a worker that failed to report.
type verifyResult struct {
	stale []crawl.File
	err   error
}

// verify runs the parallel verify phase: each worker opens its own Store
// connection and calls Compare on its shard.
func (e *Engine) verify(files []crawl.File, nonce uint32) ([]crawl.File, error) {
	shards := shard(files, workerCount(len(files)))
	if len(shards) == 0 {
		return nil, nil
	}

	results := make(chan verifyResult, len(shards))
	for _, sh := range shards {
		sh := sh
		go func() {
			s, err := store.Open(e.DBPath)
			if err != nil {
				results <- verifyResult{err: errors.Wrap(err, "opening verify worker connection")}
				return
			}
			defer s.Close()

			stale, err := s.Compare(sh, nonce)
			results <- verifyResult{stale: stale, err: err}
		}()
	}

	var toUpdate []crawl.File
	for range shards {
		r := <-results
		if r.err != nil {
			return nil, r.err
		}
		toUpdate = append(toUpdate, r.stale...)
	}

	return toUpdate, nil
}

// analyzeAndUpsert runs the parallel analyze phase: each worker analyzes
// every module in its shard, dropping per-file analysis errors as warnings
// rather than failing the whole sync, then writes the results back with
// its own Store connection.
func (e *Engine) analyzeAndUpsert(files []crawl.File, nonce uint32) error {
	shards := shard(files, workerCount(len(files)))
	if len(shards) == 0 {
		return nil
	}

	errs := make(chan error, len(shards))
	for _, sh := range shards {
		sh := sh
		go func() {
			var infos []analyze.Info
			for _, f := range sh {
				info, err := analyze.Analyze(f)
				if err != nil {
					e.Log.Warnf("analyzing %s: %v", f.Path, err)
					continue
				}
				infos = append(infos, info)
			}

			s, err := store.Open(e.DBPath)
			if err != nil {
				errs <- errors.Wrap(err, "opening analyze worker connection")
				return
			}
			defer s.Close()

			errs <- s.UpsertBulk(infos, nonce)
		}()
	}

	for range shards {
		if err := <-errs; err != nil {
			return err
		}
	}
	return nil
}

// orphan runs the single-threaded orphan phase on the engine's own
// connection, after every verify/analyze worker has joined.
func (e *Engine) orphan(nonce uint32) (int64, error) {
	s, err := store.Open(e.DBPath)
	if err != nil {
		return 0, errors.Wrap(err, "opening orphan connection")
	}
	defer s.Close()

	return s.FlushOrphans(nonce)
}
