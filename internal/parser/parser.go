package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Parser turns one raw listing page into field mappings, one variant per action type.
type Parser interface {
	ActionType() models.ActionType
	Parse(page *models.RawPage) (*Result, error)
}

// Result holds the rows of a page in source order plus the rows that had to be skipped.
type Result struct {
	Rows     []models.RawFieldMapping
	Rejected []*UnparseableRowError
}

// Seen is the number of data rows encountered, accepted or not.
func (r *Result) Seen() int {
	return len(r.Rows) + len(r.Rejected)
}

// TableParser extracts rows from an HTML table according to a Layout.
type TableParser struct {
	layout   Layout
	selector string
}

// NewTableParser builds a parser for layout reading the first table matching selector.
func NewTableParser(layout Layout, selector string) *TableParser {
	if selector == "" {
		selector = "table"
	}
	return &TableParser{layout: layout, selector: selector}
}

func (p *TableParser) ActionType() models.ActionType {
	return p.layout.ActionType
}

// Parse never coerces values; dates and numbers stay as served.
func (p *TableParser) Parse(page *models.RawPage) (*Result, error) {
	pageErr := func(reason string) error {
		return &UnparseablePageError{ActionType: p.layout.ActionType, Page: page.Number, URL: page.URL, Reason: reason}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, pageErr(fmt.Sprintf("invalid html: %v", err))
	}
	table := doc.Find(p.selector).First()
	if table.Length() == 0 {
		return nil, pageErr("data table not found")
	}

	// Only rows of this table, not of tables nested inside its cells.
	rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})
	if rows.Length() == 0 {
		return nil, pageErr("data table has no rows")
	}
	if got, need := rows.First().ChildrenFiltered("th, td").Length(), p.layout.MinColumns(); got < need {
		return nil, pageErr(fmt.Sprintf("header has %d columns, expected at least %d", got, need))
	}

	res := &Result{}
	dataRow := 0
	rows.Slice(1, rows.Length()).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		// Separator and group-heading rows carry at most two cells.
		if cells.Length() <= 2 {
			return
		}
		dataRow++
		ref := fmt.Sprintf("%s#row=%d", page.URL, dataRow)

		texts := make([]string, cells.Length())
		cells.Each(func(i int, td *goquery.Selection) {
			texts[i] = cleanText(td.Text())
		})

		fields := make(map[string]string, len(p.layout.Columns))
		var missing []string
		for _, col := range p.layout.Columns {
			v := p.cellValue(cells, col)
			if col.Required && models.IsBlank(v) {
				missing = append(missing, col.Field)
				continue
			}
			if !models.IsBlank(v) {
				fields[col.Field] = v
			}
		}
		if len(missing) > 0 {
			res.Rejected = append(res.Rejected, &UnparseableRowError{
				ActionType: p.layout.ActionType,
				Page:       page.Number,
				Row:        dataRow,
				Reason:     missingReason(missing),
				Cells:      texts,
				SourceRef:  ref,
			})
			return
		}
		res.Rows = append(res.Rows, models.RawFieldMapping{Fields: fields, SourceRef: ref})
	})
	return res, nil
}

func (p *TableParser) cellValue(cells *goquery.Selection, col Column) string {
	n := cells.Length()
	idx := col.Index
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return ""
	}
	cell := cells.Eq(idx)
	if col.Anchor {
		if a := cell.Find("a").First(); a.Length() > 0 {
			return cleanText(a.Text())
		}
	}
	return cleanText(cell.Text())
}

// cleanText trims and collapses internal whitespace, including non-breaking spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}
