package main

import (
	"github.com/codeandkey/mii/internal/engine"
	"github.com/codeandkey/mii/internal/milog"
)

// buildCommand purges the index and runs a fresh sync.
type buildCommand struct{}

func (c *buildCommand) Name() string      { return "build" }
func (c *buildCommand) Aliases() []string { return nil }
func (c *buildCommand) ShortHelp() string { return "purge the index, then sync" }

func (c *buildCommand) Run(e *engine.Engine, log *milog.Loggers, args []string) error {
	if err := e.Rebuild(); err != nil {
		return err
	}
	log.Logf("build complete")
	return nil
}
