package cmd

import (
	"context"
	"io"

	"github.com/jimezsa/jobwatch/internal/config"
	"github.com/jimezsa/jobwatch/internal/ui"
	"github.com/rs/zerolog"
)

type Context struct {
	Out        io.Writer
	Err        io.Writer
	UI         *ui.UI
	Config     config.Config
	ConfigDir  string
	Logger     zerolog.Logger
	Verbose    bool
	JSONOutput bool
	PlainText  bool
	Version    string
	ColorMode  ui.ColorMode

	// Base is the parent context of every command; nil means Background.
	Base context.Context
	// NewRuntime replaces the default wiring, mainly in tests.
	NewRuntime func(ctx context.Context, c *Context, opts RuntimeOptions) (*Runtime, error)
}

func (c *Context) ctx() context.Context {
	if c.Base != nil {
		return c.Base
	}
	return context.Background()
}

func (c *Context) runtime(opts RuntimeOptions) (*Runtime, error) {
	if c.NewRuntime != nil {
		return c.NewRuntime(c.ctx(), c, opts)
	}
	return BuildRuntime(c.ctx(), c, opts)
}
