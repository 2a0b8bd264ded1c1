// Command mii answers "which environment module provides this program?" by
// keeping a differentially-synced index of module PATH contributions.
//
// Command dispatch is a small command interface and a flat list of
// commands, with one shared set of global flags; the commands themselves
// register no flags and take only positional arguments.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/codeandkey/mii/internal/engine"
	"github.com/codeandkey/mii/internal/milog"
	"github.com/codeandkey/mii/internal/store"
)

// command is implemented by each of mii's subcommands.
type command interface {
	Name() string
	Aliases() []string
	ShortHelp() string
	Run(e *engine.Engine, log *milog.Loggers, args []string) error
}

func commands() []command {
	return []command{
		&syncCommand{},
		&buildCommand{},
		&exactCommand{},
		&globCommand{},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("mii", flag.ContinueOnError)
	fs.SetOutput(stderr)

	debug := fs.BoolP("debug", "d", false, "enable verbose logging to stderr")
	datadir := fs.StringP("datadir", "s", "", "override the data directory")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := milog.New(stdout, stderr)
	log.Verbose = *debug

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 1
	}

	dir, err := dataDir(*datadir)
	if err != nil {
		fmt.Fprintf(stderr, "mii: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "mii: creating data directory %s: %v\n", dir, err)
		return 1
	}

	dbPath := filepath.Join(dir, "index.db")
	if err := store.Init(dbPath); err != nil {
		fmt.Fprintf(stderr, "mii: %v\n", err)
		return 1
	}

	e := engine.New(dbPath, os.Getenv("MODULEPATH"), log)

	name := rest[0]
	for _, c := range commands() {
		if matches(c, name) {
			if err := c.Run(e, log, rest[1:]); err != nil {
				fmt.Fprintf(stderr, "mii: %v\n", err)
				return 1
			}
			return 0
		}
	}

	fmt.Fprintf(stderr, "mii: unknown command %q\n", name)
	usage(stderr)
	return 1
}

func matches(c command, name string) bool {
	if c.Name() == name {
		return true
	}
	for _, a := range c.Aliases() {
		if a == name {
			return true
		}
	}
	return false
}

func usage(w *os.File) {
	fmt.Fprintln(w, "Usage: mii [-d|--debug] [-s|--datadir <path>] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-10s %s\n", c.Name(), c.ShortHelp())
	}
}

// dataDir resolves the index database's containing directory: the
// -s/--datadir override if given, otherwise the per-user cache directory
// reported by os.UserCacheDir joined with "mii". The platform's per-user
// local data directory is not used.
func dataDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving default data directory")
	}
	return filepath.Join(base, "mii"), nil
}
