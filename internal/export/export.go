package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jimezsa/jobwatch/internal/models"
	"github.com/muesli/termenv"
)

type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatTSV      Format = "tsv"
)

type WriteOptions struct {
	ColorEnabled bool
	Hyperlinks   bool
	LinkStyle    LinkStyle
}

type LinkStyle string

const (
	LinkStyleShort LinkStyle = "short"
	LinkStyleFull  LinkStyle = "full"
)

// ParseFormat maps a flag value to a Format, defaulting to table.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatCSV, FormatJSON, FormatMarkdown, FormatTSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q", value)
}

// table is the flat form every record kind is rendered through. urlColumn
// is the index of the column holding a link, or -1.
type table struct {
	header    []string
	rows      [][]string
	urlColumn int
	// compact lists the columns shown in table format; nil shows all.
	compact []int
}

func WriteJobs(w io.Writer, jobs []models.Job, format Format, opts WriteOptions) error {
	t := table{
		header:    []string{"id", "source_id", "title", "company", "location", "url", "first_seen_at", "last_seen_at", "new"},
		urlColumn: 5,
		compact:   []int{0, 8, 2, 3, 4, 5},
	}
	for _, job := range jobs {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(job.ID, 10),
			strconv.FormatInt(job.SourceID, 10),
			job.Title,
			job.Company,
			job.Location,
			job.URL,
			formatTime(job.FirstSeenAt),
			formatTime(job.LastSeenAt),
			boolString(job.IsNew),
		})
	}
	return write(w, jobs, t, format, opts)
}

func WriteCandidates(w io.Writer, jobs []models.JobCandidate, format Format, opts WriteOptions) error {
	t := table{
		header:    []string{"title", "company", "location", "url", "posted_at", "tags"},
		urlColumn: 3,
		compact:   []int{0, 1, 2, 3},
	}
	for _, job := range jobs {
		t.rows = append(t.rows, []string{
			job.Title,
			job.Company,
			job.Location,
			job.URL,
			job.PostedAt,
			strings.Join(job.Tags, ", "),
		})
	}
	return write(w, jobs, t, format, opts)
}

func WriteSources(w io.Writer, sources []models.Source, format Format, opts WriteOptions) error {
	t := table{
		header:    []string{"id", "url", "status", "last_checked_at", "last_error", "created_at"},
		urlColumn: 1,
		compact:   []int{0, 2, 1, 3, 4},
	}
	for _, src := range sources {
		checked := ""
		if src.LastCheckedAt != nil {
			checked = formatTime(*src.LastCheckedAt)
		}
		t.rows = append(t.rows, []string{
			strconv.FormatInt(src.ID, 10),
			src.URL,
			string(src.LastStatus),
			checked,
			src.LastError,
			formatTime(src.CreatedAt),
		})
	}
	return write(w, sources, t, format, opts)
}

func WriteRuns(w io.Writer, runs []models.JobRun, format Format, opts WriteOptions) error {
	t := table{
		header:    []string{"id", "source_id", "ran_at", "status", "new", "total", "error"},
		urlColumn: -1,
	}
	for _, run := range runs {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(run.ID, 10),
			strconv.FormatInt(run.SourceID, 10),
			formatTime(run.RanAt),
			string(run.Status),
			strconv.Itoa(run.NewCount),
			strconv.Itoa(run.TotalCount),
			run.Error,
		})
	}
	return write(w, runs, t, format, opts)
}

func WriteOutcomes(w io.Writer, outcomes []models.RunOutcome, format Format, opts WriteOptions) error {
	t := table{
		header:    []string{"source_id", "url", "status", "new", "total", "error", "warnings"},
		urlColumn: 1,
	}
	for _, outcome := range outcomes {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(outcome.SourceID, 10),
			outcome.URL,
			string(outcome.Status),
			strconv.Itoa(outcome.NewCount),
			strconv.Itoa(outcome.TotalCount),
			outcome.Error,
			strings.Join(outcome.Warnings, " "),
		})
	}
	return write(w, outcomes, t, format, opts)
}

func write(w io.Writer, records any, t table, format Format, opts WriteOptions) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, records)
	case FormatCSV:
		return writeCSV(w, t, ',')
	case FormatTSV:
		return writeCSV(w, t, '\t')
	case FormatMarkdown:
		return writeMarkdown(w, t)
	default:
		return writeTable(w, t, opts)
	}
}

func writeJSON(w io.Writer, records any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeCSV(w io.Writer, t table, delim rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delim
	if err := writer.Write(t.header); err != nil {
		return err
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTable(w io.Writer, t table, opts WriteOptions) error {
	columns := t.compact
	if columns == nil {
		columns = make([]int, len(t.header))
		for i := range columns {
			columns[i] = i
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(pick(t.header, columns), "\t"))
	output := termenv.NewOutput(w)
	for _, row := range t.rows {
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			cell := safe(row[col])
			if col == t.urlColumn {
				cell = linkCell(cell, output, opts)
			} else if cell == "" {
				cell = "-"
			}
			cells = append(cells, cell)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// writeMarkdown renders one bullet per record, headed by its first
// non-empty text column.
func writeMarkdown(w io.Writer, t table) error {
	if len(t.rows) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	for _, row := range t.rows {
		lines := []string{fmt.Sprintf("- **%s**", safe(row[0]))}
		for i := 1; i < len(row); i++ {
			value := safe(row[i])
			if value == "" {
				continue
			}
			if i == t.urlColumn {
				value = fmt.Sprintf("[Open](<%s>)", value)
			}
			lines = append(lines, fmt.Sprintf("  %s: %s", label(t.header[i]), value))
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func pick(values []string, columns []int) []string {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		out = append(out, values[col])
	}
	return out
}

func label(header string) string {
	header = strings.ReplaceAll(header, "_", " ")
	if header == "" {
		return header
	}
	return strings.ToUpper(header[:1]) + header[1:]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func boolString(value bool) string {
	if value {
		return "true"
	}
	return "false"
}

func safe(value string) string {
	return strings.TrimSpace(value)
}

func linkCell(raw string, output *termenv.Output, opts WriteOptions) string {
	const linkColor = "#87CEEB"

	if raw == "" {
		return "-"
	}
	display := raw
	if opts.LinkStyle == LinkStyleShort && opts.Hyperlinks {
		display = shortURLLabel(raw)
	}
	if opts.ColorEnabled {
		display = output.String(display).Foreground(output.Color(linkColor)).String()
	}
	if opts.Hyperlinks {
		display = hyperlink(raw, display)
	}
	return display
}

func hyperlink(url string, text string) string {
	const esc = "\x1b"
	return esc + "]8;;" + url + esc + "\\" + text + esc + "]8;;" + esc + "\\"
}

func shortURLLabel(raw string) string {
	const maxLen = 60
	label := strings.TrimSpace(raw)
	if parsed, err := url.Parse(raw); err == nil {
		host := strings.TrimPrefix(parsed.Host, "www.")
		if host != "" {
			label = host + parsed.Path
		}
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = raw
	}
	if len(label) > maxLen {
		label = label[:maxLen-3] + "..."
	}
	return label
}
