package cmd

import (
	"io"

	"github.com/jimezsa/jobwatch/internal/export"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/seen"
)

type JobsCmd struct {
	List    JobsListCmd    `cmd:"" help:"List tracked jobs, newest first."`
	Exclude JobsExcludeCmd `cmd:"" help:"Delete a job and keep it from coming back."`
}

type JobsListCmd struct {
	Source  int64 `help:"Only jobs of this source id."`
	NewOnly bool  `help:"Only jobs not yet marked seen."`
	OutputOptions
}

type JobsExcludeCmd struct {
	ID int64 `arg:"" help:"Job id."`
}

func (c *JobsListCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		jobs, err := engine.ListJobs(ctx.ctx(), models.JobFilter{SourceID: c.Source, NewOnly: c.NewOnly})
		if err != nil {
			return err
		}
		return writeOutput(ctx, c.OutputOptions, func(w io.Writer, format export.Format, opts export.WriteOptions) error {
			return export.WriteJobs(w, jobs, format, opts)
		})
	})
}

func (c *JobsExcludeCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		exclusion, err := engine.ExcludeJob(ctx.ctx(), c.ID)
		if err != nil {
			return err
		}
		ctx.UI.Successf("Excluded %s", exclusion.JobURL)
		return nil
	})
}
