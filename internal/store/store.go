// Package store is mii's embedded index: a single SQL table of known
// modules, backed by modernc.org/sqlite in WAL journaling mode so that
// multiple sync workers can hold their own connection open at once.
// Every exported method here runs its work inside one transaction, so a
// reader never observes a partially written batch.
package store

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/codeandkey/mii/internal/analyze"
	"github.com/codeandkey/mii/internal/crawl"
)

const schema = `CREATE TABLE IF NOT EXISTS modules (
	path TEXT UNIQUE,
	code TEXT,
	nonce INTEGER,
	hash INTEGER,
	bins TEXT
)`

const binSeparator = ":"

// Store wraps one connection to the index database file. Each sync worker
// opens its own Store against the same path; WAL journaling serializes the
// writers at the storage engine rather than requiring a shared connection.
type Store struct {
	db *sql.DB
}

// BinResult is a single (code, command) search hit.
type BinResult struct {
	Code    string
	Command string
}

// Init creates the modules table if it doesn't already exist and enables
// WAL journaling. Call this once before any Store is opened concurrently;
// subsequent Open calls only need to set the journal_mode pragma on their
// own connection, but running the full init is harmless and idempotent.
func Init(path string) error {
	db, err := open(path)
	if err != nil {
		return errors.Wrap(err, "opening index database")
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "creating modules table")
	}
	return nil
}

// Open opens a new connection to the index database at path. Callers must
// Close the returned Store when done; workers in the differential sync each
// hold their own Store for the duration of one shard.
func Open(path string) (*Store, error) {
	db, err := open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening index database")
	}
	return &Store{db: db}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compare is the verify-phase probe: for each module in batch, it attempts
// a conditional update stamping nonce iff a row already exists at that
// path with a matching hash. Modules for which the update touched zero
// rows (no row exists, or the recorded hash is stale) are returned for
// re-analysis.
func (s *Store) Compare(batch []crawl.File, nonce uint32) ([]crawl.File, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "starting verify transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE modules SET nonce=?, code=? WHERE path=? AND hash=?`)
	if err != nil {
		return nil, errors.Wrap(err, "preparing verify statement")
	}
	defer stmt.Close()

	var stale []crawl.File
	for _, m := range batch {
		res, err := stmt.Exec(int64(nonce), m.Code, m.Path, int64(m.Hash))
		if err != nil {
			return nil, errors.Wrapf(err, "verifying %s", m.Path)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "reading verify result")
		}
		if n < 1 {
			stale = append(stale, m)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing verify transaction")
	}
	return stale, nil
}

// UpsertBulk writes a batch of freshly analyzed modules back to the index,
// stamping each row with nonce.
func (s *Store) UpsertBulk(results []analyze.Info, nonce uint32) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "starting upsert transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO modules (path, code, nonce, hash, bins) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET code=excluded.code, nonce=excluded.nonce, hash=excluded.hash, bins=excluded.bins`)
	if err != nil {
		return errors.Wrap(err, "preparing upsert statement")
	}
	defer stmt.Close()

	for _, a := range results {
		bins := strings.Join(a.Bins, binSeparator)
		if _, err := stmt.Exec(a.File.Path, a.File.Code, int64(nonce), int64(a.File.Hash), bins); err != nil {
			return errors.Wrapf(err, "upserting %s", a.File.Path)
		}
	}

	return errors.Wrap(tx.Commit(), "committing upsert transaction")
}

// FlushOrphans deletes every row not stamped with nonce and returns the
// number of rows removed.
func (s *Store) FlushOrphans(nonce uint32) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, errors.Wrap(err, "starting orphan transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM modules WHERE nonce != ?`, int64(nonce))
	if err != nil {
		return 0, errors.Wrap(err, "flushing orphans")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading orphan count")
	}

	return n, errors.Wrap(tx.Commit(), "committing orphan transaction")
}

// Purge deletes every row in the index (used by `build`).
func (s *Store) Purge() error {
	_, err := s.db.Exec(`DELETE FROM modules`)
	return errors.Wrap(err, "purging index")
}

// SearchExact returns one BinResult per row whose bins, once split on ':',
// contain cmd as an exact element.
func (s *Store) SearchExact(cmd string) ([]BinResult, error) {
	rows, err := s.likeQuery(cmd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BinResult
	for rows.Next() {
		code, bins, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		for _, b := range strings.Split(bins, binSeparator) {
			if b == cmd {
				out = append(out, BinResult{Code: code, Command: cmd})
				break
			}
		}
	}
	return out, errors.Wrap(rows.Err(), "reading search results")
}

// SearchFuzzy returns one BinResult per bin element containing cmd as a
// substring.
func (s *Store) SearchFuzzy(cmd string) ([]BinResult, error) {
	rows, err := s.likeQuery(cmd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BinResult
	for rows.Next() {
		code, bins, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		for _, b := range strings.Split(bins, binSeparator) {
			if b != "" && strings.Contains(b, cmd) {
				out = append(out, BinResult{Code: code, Command: b})
			}
		}
	}
	return out, errors.Wrap(rows.Err(), "reading search results")
}

func (s *Store) likeQuery(cmd string) (*sql.Rows, error) {
	rows, err := s.db.Query(`SELECT code, bins FROM modules WHERE bins LIKE ?`, "%"+cmd+"%")
	return rows, errors.Wrap(err, "querying index")
}

func scanRow(rows *sql.Rows) (code, bins string, err error) {
	err = rows.Scan(&code, &bins)
	return code, bins, errors.Wrap(err, "scanning row")
}
