package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jimezsa/jobwatch/internal/export"
)

type ParseCmd struct {
	URL     string `arg:"" help:"Career page URL."`
	Proxies string `help:"Comma-separated proxy URLs."`
	OutputOptions
}

func (c *ParseCmd) Run(ctx *Context) error {
	rt, err := ctx.runtime(RuntimeOptions{Proxies: c.Proxies})
	if err != nil {
		return err
	}
	defer rt.Close()

	stop := startIndicator(ctx, "Fetching")
	result, err := rt.Parser.Parse(ctx.ctx(), c.URL)
	stop()
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		ctx.UI.Warnf("%s", warning)
	}
	if err := writeOutput(ctx, c.OutputOptions, func(w io.Writer, format export.Format, opts export.WriteOptions) error {
		return export.WriteCandidates(w, result.Jobs, format, opts)
	}); err != nil {
		return err
	}

	_, err = fmt.Fprintf(ctx.Err, "summary: jobs=%d adapter=%s provider=%s company=%s plan=%s\n",
		len(result.Jobs), result.Adapter, result.Provider, result.Company, strings.Join(rt.Plan, ","))
	return err
}
