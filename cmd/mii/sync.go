package main

import (
	"github.com/codeandkey/mii/internal/engine"
	"github.com/codeandkey/mii/internal/milog"
)

// syncCommand runs the four-phase differential sync.
type syncCommand struct{}

func (c *syncCommand) Name() string        { return "sync" }
func (c *syncCommand) Aliases() []string   { return []string{"verify"} }
func (c *syncCommand) ShortHelp() string   { return "run the differential sync against the live filesystem" }

func (c *syncCommand) Run(e *engine.Engine, log *milog.Loggers, args []string) error {
	if err := e.Sync(); err != nil {
		return err
	}
	log.Logf("sync complete")
	return nil
}
