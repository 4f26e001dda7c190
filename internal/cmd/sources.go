package cmd

import (
	"fmt"
	"io"

	"github.com/jimezsa/jobwatch/internal/export"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/seen"
)

type SourcesCmd struct {
	Add    SourcesAddCmd    `cmd:"" help:"Track a career page URL."`
	List   SourcesListCmd   `cmd:"" help:"List tracked sources, newest first."`
	Rm     SourcesRmCmd     `cmd:"" help:"Delete a source with its jobs, runs and exclusions."`
	Seen   SourcesSeenCmd   `cmd:"" help:"Mark every job of a source as seen."`
	Runs   SourcesRunsCmd   `cmd:"" help:"Show the refresh history of a source."`
	Import SourcesImportCmd `cmd:"" help:"Add every URL from a JSON file."`
	Export SourcesExportCmd `cmd:"" help:"Write tracked source URLs to a JSON file."`
}

type SourcesAddCmd struct {
	URL string `arg:"" help:"Career page URL (http or https)."`
}

type SourcesListCmd struct {
	OutputOptions
}

type SourcesRmCmd struct {
	ID int64 `arg:"" help:"Source id."`
}

type SourcesSeenCmd struct {
	ID int64 `arg:"" help:"Source id."`
}

type SourcesRunsCmd struct {
	ID    int64 `arg:"" help:"Source id."`
	Limit int   `help:"Maximum runs to show." default:"20"`
	OutputOptions
}

type SourcesImportCmd struct {
	Path string `arg:"" help:"JSON array of URLs or {\"url\": ...} objects."`
}

type SourcesExportCmd struct {
	Path string `arg:"" help:"Destination JSON file."`
}

// withEngine opens the store for the duration of fn.
func withEngine(ctx *Context, fn func(engine *seen.Engine) error) error {
	rt, err := ctx.runtime(RuntimeOptions{Store: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.Engine)
}

func (c *SourcesAddCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		src, err := engine.AddSource(ctx.ctx(), c.URL)
		if err != nil {
			return err
		}
		if ctx.JSONOutput {
			return export.WriteSources(ctx.Out, []models.Source{src}, export.FormatJSON, export.WriteOptions{})
		}
		ctx.UI.Successf("Source %d: %s", src.ID, src.URL)
		return nil
	})
}

func (c *SourcesListCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		sources, err := engine.ListSources(ctx.ctx())
		if err != nil {
			return err
		}
		return writeOutput(ctx, c.OutputOptions, func(w io.Writer, format export.Format, opts export.WriteOptions) error {
			return export.WriteSources(w, sources, format, opts)
		})
	})
}

func (c *SourcesRmCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		if err := engine.DeleteSource(ctx.ctx(), c.ID); err != nil {
			return err
		}
		ctx.UI.Successf("Deleted source %d", c.ID)
		return nil
	})
}

func (c *SourcesSeenCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		cleared, err := engine.MarkSeen(ctx.ctx(), c.ID)
		if err != nil {
			return err
		}
		ctx.UI.Infof("Marked %d jobs seen", cleared)
		return nil
	})
}

func (c *SourcesRunsCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		runs, err := engine.ListRuns(ctx.ctx(), c.ID, c.Limit)
		if err != nil {
			return err
		}
		return writeOutput(ctx, c.OutputOptions, func(w io.Writer, format export.Format, opts export.WriteOptions) error {
			return export.WriteRuns(w, runs, format, opts)
		})
	})
}

func (c *SourcesImportCmd) Run(ctx *Context) error {
	urls, err := seen.ReadSourceList(c.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.Path, err)
	}
	return withEngine(ctx, func(engine *seen.Engine) error {
		added, err := engine.ImportSources(ctx.ctx(), urls)
		ctx.UI.Infof("Imported %d of %d sources", added, len(urls))
		return err
	})
}

func (c *SourcesExportCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		sources, err := engine.ListSources(ctx.ctx())
		if err != nil {
			return err
		}
		if err := seen.WriteSourceList(c.Path, sources); err != nil {
			return fmt.Errorf("write %s: %w", c.Path, err)
		}
		ctx.UI.Infof("Exported %d sources to %s", len(sources), c.Path)
		return nil
	})
}
