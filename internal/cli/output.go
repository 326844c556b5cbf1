package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/supertypeai/sectors-corporate-actions/internal/pipeline"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

func statusColor(s pipeline.Status) *color.Color {
	switch s {
	case pipeline.StatusSuccess:
		return successColor
	case pipeline.StatusPartial:
		return warnColor
	default:
		return errorColor
	}
}

func renderSummary(w io.Writer, summary *pipeline.RunSummary, format string) error {
	switch format {
	case "json":
		return writeJSON(w, summary)
	case "yaml":
		return writeYAML(w, summary)
	case "table", "":
		renderSummaryTable(w, summary)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through JSON so the YAML keys match the JSON field names.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func renderSummaryTable(w io.Writer, summary *pipeline.RunSummary) {
	fmt.Fprintf(w, "Run %s: %s\n", summary.RunID, statusColor(summary.Status).Sprint(summary.Status))
	if summary.Error != "" {
		fmt.Fprintf(w, "  %s\n", summary.Error)
	}
	fmt.Fprintln(w)

	t := newTable("TYPE", "STATUS", "PAGES", "PARSED", "REJECTED", "INSERTED", "UPDATED", "UNCHANGED", "SUPERSEDED", "DUPLICATES", "STORAGE ERR", "FLAGS")
	for _, ts := range summary.Ordered() {
		t.addRow(statusColor(ts.Status),
			string(ts.ActionType),
			string(ts.Status),
			strconv.Itoa(ts.PagesFetched),
			strconv.Itoa(ts.RowsParsed),
			strconv.Itoa(ts.RowsRejected),
			strconv.Itoa(ts.Inserted),
			strconv.Itoa(ts.Updated),
			strconv.Itoa(ts.Unchanged),
			strconv.Itoa(ts.Superseded),
			strconv.Itoa(ts.Duplicates),
			strconv.Itoa(ts.StorageErrors),
			strings.Join(ts.Flags, ","),
		)
	}
	t.render(w)

	for _, ts := range summary.Ordered() {
		if ts.Error != "" {
			fmt.Fprintf(w, "\n%s: %s\n", ts.ActionType, ts.Error)
		}
	}
}

type table struct {
	headers []string
	rows    [][]string
	colors  []*color.Color
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

// addRow adds a row; c colors the second cell, which holds the status.
func (t *table) addRow(c *color.Color, cells ...string) {
	t.rows = append(t.rows, cells)
	t.colors = append(t.colors, c)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range t.headers {
		fmt.Fprint(w, headerColor.Sprintf("%-*s", widths[i], h), "  ")
	}
	fmt.Fprintln(w)
	for i := range t.headers {
		fmt.Fprint(w, strings.Repeat("-", widths[i]), "  ")
	}
	fmt.Fprintln(w)

	for r, row := range t.rows {
		for i, cell := range row {
			padded := fmt.Sprintf("%-*s", widths[i], cell)
			if i == 1 && t.colors[r] != nil {
				padded = t.colors[r].Sprint(padded)
			}
			fmt.Fprint(w, padded, "  ")
		}
		fmt.Fprintln(w)
	}
}
