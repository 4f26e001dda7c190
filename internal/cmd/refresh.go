package cmd

import (
	"errors"
	"io"

	"github.com/jimezsa/jobwatch/internal/export"
	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/jimezsa/jobwatch/internal/seen"
)

type RefreshCmd struct {
	Source int64 `help:"Refresh only this source id."`
}

func (c *RefreshCmd) Run(ctx *Context) error {
	return withEngine(ctx, func(engine *seen.Engine) error {
		stop := startIndicator(ctx, "Refreshing")

		var (
			outcomes []models.RunOutcome
			err      error
		)
		if c.Source > 0 {
			var outcome models.RunOutcome
			outcome, err = engine.RefreshSource(ctx.ctx(), c.Source)
			if outcome.SourceID != 0 {
				outcomes = append(outcomes, outcome)
			}
		} else {
			outcomes, err = engine.RefreshAll(ctx.ctx())
		}
		stop()

		if writeErr := writeOutcomes(ctx, outcomes); writeErr != nil {
			return errors.Join(err, writeErr)
		}
		return err
	})
}

func writeOutcomes(ctx *Context, outcomes []models.RunOutcome) error {
	if ctx.JSONOutput || ctx.PlainText {
		return writeOutput(ctx, OutputOptions{}, func(w io.Writer, format export.Format, opts export.WriteOptions) error {
			return export.WriteOutcomes(w, outcomes, format, opts)
		})
	}
	for _, outcome := range outcomes {
		ctx.UI.Outcome(outcome)
	}
	if len(outcomes) > 1 {
		ctx.UI.Summary(outcomes)
	}
	return nil
}
