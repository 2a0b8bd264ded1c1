package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/codeandkey/mii/internal/engine"
	"github.com/codeandkey/mii/internal/milog"
	"github.com/codeandkey/mii/internal/store"
)

// exactCommand prints modules whose bins contain the given command exactly.
type exactCommand struct{}

func (c *exactCommand) Name() string      { return "exact" }
func (c *exactCommand) Aliases() []string { return nil }
func (c *exactCommand) ShortHelp() string { return "print modules whose bins contain <command> exactly" }

func (c *exactCommand) Run(e *engine.Engine, log *milog.Loggers, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mii exact <command>")
	}
	results, err := e.SearchExact(args[0])
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

// globCommand prints modules whose bins contain the given command as a
// substring.
type globCommand struct{}

func (c *globCommand) Name() string      { return "glob" }
func (c *globCommand) Aliases() []string { return nil }
func (c *globCommand) ShortHelp() string { return "print modules whose bins contain <command> as a substring" }

func (c *globCommand) Run(e *engine.Engine, log *milog.Loggers, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mii glob <command>")
	}
	results, err := e.SearchFuzzy(args[0])
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

// printResults prints results in mii's legacy listing format: a
// JSON-array-like structure with a trailing comma after every entry and an
// unquoted closing bracket. This is emitted literally, byte for byte, for
// compatibility with existing consumers, and is deliberately not valid
// JSON.
func printResults(results []store.BinResult) {
	fmt.Fprintln(os.Stdout, "[")
	for _, r := range results {
		fmt.Fprintf(os.Stdout, "    {%q:%q},\n", r.Code, r.Command)
	}
	fmt.Fprintln(os.Stdout, "]")
}
