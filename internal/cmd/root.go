package cmd

import (
	"fmt"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Color   string `help:"Color output: auto, always, never." enum:"auto,always,never" default:"auto"`
	JSON    bool   `help:"JSON output to stdout; disables colors."`
	Plain   bool   `help:"TSV output to stdout; disables colors."`
	Verbose bool   `help:"Enable debug logging."`

	VersionFlag kong.VersionFlag `help:"Print version."`

	Version  VersionCmd  `cmd:"" help:"Print version."`
	Config   ConfigCmd   `cmd:"" help:"Manage configuration."`
	Sources  SourcesCmd  `cmd:"" help:"Manage tracked career pages."`
	Refresh  RefreshCmd  `cmd:"" help:"Refresh one source or all of them."`
	Jobs     JobsCmd     `cmd:"" help:"List and exclude tracked jobs."`
	Parse    ParseCmd    `cmd:"" help:"Extract jobs from a URL without storing them."`
	Schedule ScheduleCmd `cmd:"" help:"Run the daily refresh until interrupted."`
	Proxies  ProxiesCmd  `cmd:"" help:"Proxy utilities."`
}

func NewCLI() *CLI {
	return &CLI{}
}

type VersionCmd struct{}

func (v *VersionCmd) Run(ctx *Context) error {
	_, err := fmt.Fprintln(ctx.Out, ctx.Version)
	return err
}
