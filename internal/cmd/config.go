package cmd

import (
	"fmt"
	"strings"

	"github.com/jimezsa/jobwatch/internal/config"
)

type ConfigCmd struct {
	Init InitConfigCmd `cmd:"" help:"Write default config and proxies files."`
	Path PathConfigCmd `cmd:"" help:"Print config directory."`
	Show ShowConfigCmd `cmd:"" help:"Print the effective configuration with secrets masked."`
}

type InitConfigCmd struct{}

type PathConfigCmd struct{}

type ShowConfigCmd struct{}

func (c *InitConfigCmd) Run(ctx *Context) error {
	paths, err := config.InitDir(ctx.ConfigDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		ctx.UI.Infof("Config already initialized at %s", ctx.ConfigDir)
		return nil
	}
	ctx.UI.Infof("Created: %s", strings.Join(paths, ", "))
	return nil
}

func (c *PathConfigCmd) Run(ctx *Context) error {
	_, err := fmt.Fprintln(ctx.Out, ctx.ConfigDir)
	return err
}

func (c *ShowConfigCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	cfg.Zyte.APIKey = mask(cfg.Zyte.APIKey)
	cfg.ScrapingBee.APIKey = mask(cfg.ScrapingBee.APIKey)
	cfg.Store.DSN = mask(cfg.Store.DSN)

	return writeJSON(ctx.Out, cfg)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
