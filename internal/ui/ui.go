// Package ui prints human-facing status lines. Machine output goes through
// the export package instead.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/muesli/termenv"
)

type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

const LinkColor = "#87CEEB"

// ANSI palette indexes.
const (
	colorRed    = "1"
	colorGreen  = "2"
	colorYellow = "3"
	colorBlue   = "4"
)

type UI struct {
	Out          io.Writer
	Err          io.Writer
	Output       *termenv.Output
	ErrOutput    *termenv.Output
	ColorEnabled bool
}

func New(out io.Writer, err io.Writer, mode ColorMode, disableColor bool) *UI {
	output := termenv.NewOutput(out)
	return &UI{
		Out:          out,
		Err:          err,
		Output:       output,
		ErrOutput:    termenv.NewOutput(err),
		ColorEnabled: colorEnabled(output, mode, disableColor),
	}
}

func colorEnabled(output *termenv.Output, mode ColorMode, disabled bool) bool {
	if disabled {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	return output.ColorProfile() != termenv.Ascii
}

func (u *UI) Errorf(format string, args ...any) {
	u.line(u.Err, u.ErrOutput, colorRed, format, args...)
}

func (u *UI) Warnf(format string, args ...any) {
	u.line(u.Err, u.ErrOutput, colorYellow, format, args...)
}

func (u *UI) Infof(format string, args ...any) {
	u.line(u.Out, u.Output, colorBlue, format, args...)
}

func (u *UI) Successf(format string, args ...any) {
	u.line(u.Out, u.Output, colorGreen, format, args...)
}

func (u *UI) line(w io.Writer, output *termenv.Output, color, format string, args ...any) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintln(w, u.paint(output, color, msg))
}

func (u *UI) paint(output *termenv.Output, color, text string) string {
	if !u.ColorEnabled || output == nil {
		return text
	}
	return output.String(text).Foreground(output.Color(color)).String()
}

// StatusText colours a source status: ok green, error red, pending yellow.
func (u *UI) StatusText(status models.SourceStatus) string {
	switch status {
	case models.StatusOK:
		return u.paint(u.Output, colorGreen, string(status))
	case models.StatusError:
		return u.paint(u.Output, colorRed, string(status))
	}
	return u.paint(u.Output, colorYellow, string(status))
}

// Outcome prints one refresh result line, followed by its warnings.
func (u *UI) Outcome(outcome models.RunOutcome) {
	if outcome.Status == models.StatusError {
		u.Errorf("source %d %s: %s", outcome.SourceID, outcome.URL, outcome.Error)
		return
	}
	line := fmt.Sprintf("source %d %s: %d new of %d", outcome.SourceID, outcome.URL, outcome.NewCount, outcome.TotalCount)
	if outcome.NewCount > 0 {
		u.Successf("%s", line)
	} else {
		u.Infof("%s", line)
	}
	for _, warning := range outcome.Warnings {
		u.Warnf("  %s", warning)
	}
}

// Summary prints the totals of a batch: sources refreshed, new listings and
// failures. Nothing is printed for an empty batch.
func (u *UI) Summary(outcomes []models.RunOutcome) {
	if len(outcomes) == 0 {
		return
	}
	fresh, failed := 0, 0
	for _, outcome := range outcomes {
		if outcome.Status == models.StatusError {
			failed++
			continue
		}
		fresh += outcome.NewCount
	}
	msg := fmt.Sprintf("%d %s refreshed, %d new %s", len(outcomes), plural(len(outcomes), "source", "sources"), fresh, plural(fresh, "job", "jobs"))
	if failed > 0 {
		u.Warnf("%s, %d failed", msg, failed)
		return
	}
	u.Successf("%s", msg)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func ColorizeLink(output *termenv.Output, enabled bool, text string) string {
	if !enabled || output == nil {
		return text
	}
	return output.String(text).Foreground(output.Color(LinkColor)).String()
}

func (u *UI) LinkText(text string) string {
	return ColorizeLink(u.Output, u.ColorEnabled, text)
}

func NormalizeColorMode(value string) ColorMode {
	switch mode := ColorMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case ColorAlways, ColorNever:
		return mode
	}
	return ColorAuto
}
