package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

const selector = "table.tbl_border_gray"

func htmlTable(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table class="tbl_border_gray"><tr>`)
	for _, h := range header {
		fmt.Fprintf(&b, "<th>%s</th>", h)
	}
	b.WriteString("</tr>")
	for _, r := range rows {
		b.WriteString("<tr>")
		for i, c := range r {
			if i == 1 {
				fmt.Fprintf(&b, `<td><a href="/stock/%s">%s</a></td>`, c, c)
				continue
			}
			fmt.Fprintf(&b, "<td>%s</td>", c)
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func rawPage(at models.ActionType, body string) *models.RawPage {
	return &models.RawPage{ActionType: at, Number: 1, URL: "https://source.test/?page=1", Body: []byte(body)}
}

var rightsHeader = []string{"No", "Code", "Name", "Old", "New", "Price", "Cum", "Ex", "Recording", "Trading Start", "Trading End", "Subscription", ""}

func TestRightsIssueParse(t *testing.T) {
	body := htmlTable(rightsHeader, [][]string{
		{"1", "BBRI", "Bank Rakyat", "10", "3", "3,400", "12-Mar-2024", "13-Mar-2024", "14-Mar-2024", "15-Mar-2024", "21-Mar-2024", "21-Mar-2024", ""},
		{"", "March 2024"},
		{"2", "ADRO", "Adaro", "5", "1", "-", "01-Mar-2024", "04-Mar-2024", "05-Mar-2024", "06-Mar-2024", "12-Mar-2024", "12-Mar-2024", ""},
		{"3", "TLKM", "Telkom", "20", "1", "1,000", "02-Feb-2024", "05-Feb-2024", "06-Feb-2024", "07-Feb-2024", "14-Feb-2024", "14-Feb-2024", ""},
	})

	p, err := NewRegistry(selector).For(models.RightsIssue)
	require.NoError(t, err)
	res, err := p.Parse(rawPage(models.RightsIssue, body))
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 3, res.Seen(), "separator rows are not data rows")

	first := res.Rows[0]
	assert.Equal(t, "BBRI", first.Get(models.FieldSymbol))
	assert.Equal(t, "3,400", first.Get(models.FieldPrice), "values are not coerced")
	assert.Equal(t, "12-Mar-2024", first.Get(models.FieldCumDate))
	assert.Equal(t, "14-Mar-2024", first.Get(models.FieldRecordingDate))
	assert.Equal(t, "21-Mar-2024", first.Get(models.FieldSubscriptionDate))
	assert.Equal(t, "https://source.test/?page=1#row=1", first.SourceRef)
	assert.Equal(t, "TLKM", res.Rows[1].Get(models.FieldSymbol), "row order is preserved")

	rej := res.Rejected[0]
	assert.Equal(t, 2, rej.Row)
	assert.Contains(t, rej.Reason, models.FieldPrice)
	assert.Equal(t, "ADRO", rej.Cells[1])
	assert.Equal(t, "ADRO", rej.Raw()["col_1"])
}

func TestBuybackMissingVolumeIsRowRejection(t *testing.T) {
	header := []string{"No", "Code", "Name", "Start", "End", "Volume", "Price", "Low", "High", "Budget", ""}
	body := htmlTable(header, [][]string{
		{"1", "BBCA", "BCA", "01-Apr-2024", "30-Sep-2024", "1,000,000", "9,500", "", "", "10,000,000,000", ""},
		{"2", "UNVR", "Unilever", "01-Apr-2024", "30-Sep-2024", "", "", "2,500", "3,000", "", ""},
	})
	p, err := NewRegistry(selector).For(models.Buyback)
	require.NoError(t, err)
	res, err := p.Parse(rawPage(models.Buyback, body))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "missing required volume", res.Rejected[0].Reason)
	assert.False(t, res.Rows[0].Has(models.FieldPriceLow))
}

func TestUnparseablePage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no table", `<html><body><p>Maintenance</p></body></html>`},
		{"wrong table class", `<html><body><table class="other"><tr><td>1</td></tr></table></body></html>`},
		{"header too narrow", htmlTable([]string{"No", "Code"}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewRegistry(selector).For(models.RightsIssue)
			require.NoError(t, err)
			_, err = p.Parse(rawPage(models.RightsIssue, tt.body))
			var pageErr *UnparseablePageError
			require.ErrorAs(t, err, &pageErr)
			assert.Equal(t, models.RightsIssue, pageErr.ActionType)
		})
	}
}

func TestNestedTablesIgnored(t *testing.T) {
	body := `<html><body><table class="tbl_border_gray">
<tr><th>No</th><th>Code</th><th>Name</th><th>Date</th><th>Place</th><th>Recording</th><th></th></tr>
<tr><td>1</td><td><a href="#">GOTO</a></td><td>GoTo <table><tr><td>x</td><td>y</td><td>z</td></tr></table></td>
<td>20-Jun-2024</td><td>Jakarta</td><td>28-May-2024</td><td></td></tr>
</table></body></html>`
	p, err := NewRegistry(selector).For(models.ShareholderMeeting)
	require.NoError(t, err)
	res, err := p.Parse(rawPage(models.ShareholderMeeting, body))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Empty(t, res.Rejected)
	row := res.Rows[0]
	assert.Equal(t, "GOTO", row.Get(models.FieldSymbol))
	assert.Equal(t, "20-Jun-2024", row.Get(models.FieldMeetingDate))
	assert.Equal(t, "Jakarta", row.Get(models.FieldPlace))
	assert.Equal(t, "28-May-2024", row.Get(models.FieldRecordingDate))
}

func TestShortRowMissesRequiredColumn(t *testing.T) {
	header := []string{"No", "Code", "Name", "Currency", "Amount", "Cum", "Ex", "Recording", "Payment", ""}
	body := htmlTable(header, [][]string{
		{"1", "TLKM", "Telkom", "IDR"},
	})
	p, err := NewRegistry(selector).For(models.Dividend)
	require.NoError(t, err)
	res, err := p.Parse(rawPage(models.Dividend, body))
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Reason, models.FieldAmount)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "PT Bank Central Asia", cleanText("  PT Bank \n Central\tAsia "))
}

func TestRegistryCoversEveryActionType(t *testing.T) {
	r := NewRegistry(selector)
	for _, at := range models.AllActionTypes() {
		p, err := r.For(at)
		require.NoError(t, err, at)
		assert.Equal(t, at, p.ActionType())
		l, ok := LayoutFor(at)
		require.True(t, ok)
		assert.Positive(t, l.MinColumns())
	}
	_, err := r.For("merger")
	assert.ErrorIs(t, err, models.ErrUnknownActionType)
}
