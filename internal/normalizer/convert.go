package normalizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Accepted date layouts. Numeric day/month orders such as 02/01/2006 are ambiguous and rejected.
var dateLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"2006-01-02",
	time.RFC3339,
}

var (
	tickerPattern   = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

func parseDate(s string) (models.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), nil
		}
	}
	return models.Date{}, fmt.Errorf("unrecognised date %q", s)
}

// parseDecimal strips thousands separators and spaces. Negative values are rejected.
func parseDecimal(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(cleaned, "Rp")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative value %q", s)
	}
	return d, nil
}

// CanonicalSymbol upper-cases a ticker, drops any exchange suffix and appends suffix.
func CanonicalSymbol(raw, suffix string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if base, _, ok := strings.Cut(s, "."); ok {
		s = base
	}
	if !tickerPattern.MatchString(s) {
		return "", fmt.Errorf("invalid ticker %q", raw)
	}
	return s + strings.ToUpper(suffix), nil
}

// fieldReader converts fields of one row and keeps the first failure, in the style of bufio.Scanner.
type fieldReader struct {
	raw models.RawFieldMapping
	err error
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *fieldReader) text(field string, required bool) string {
	if !r.raw.Has(field) {
		if required {
			r.fail("missing %s", field)
		}
		return ""
	}
	return r.raw.Get(field)
}

func (r *fieldReader) date(field string, required bool) *models.Date {
	v := r.text(field, required)
	if v == "" {
		return nil
	}
	d, err := parseDate(v)
	if err != nil {
		r.fail("invalid %s: %v", field, err)
		return nil
	}
	return &d
}

func (r *fieldReader) decimal(field string, required bool) *decimal.Decimal {
	v := r.text(field, required)
	if v == "" {
		return nil
	}
	d, err := parseDecimal(v)
	if err != nil {
		r.fail("invalid %s: %v", field, err)
		return nil
	}
	return &d
}

// positive reads a required value that must be strictly greater than zero.
func (r *fieldReader) positive(field string) decimal.Decimal {
	d := r.decimal(field, true)
	if d == nil {
		return decimal.Zero
	}
	if !d.IsPositive() {
		r.fail("%s must be positive, got %s", field, d)
	}
	return *d
}

// ratio reads a new-per-old ratio either from the ratio field ("old:new" or a number)
// or from the old_ratio/new_ratio pair.
func (r *fieldReader) ratio() (ratio decimal.Decimal, oldShares, newShares *decimal.Decimal) {
	if r.raw.Has(models.FieldRatio) {
		v := r.raw.Get(models.FieldRatio)
		if oldPart, newPart, ok := strings.Cut(v, ":"); ok {
			o, errO := parseDecimal(oldPart)
			n, errN := parseDecimal(newPart)
			if errO != nil || errN != nil || o.IsZero() {
				r.fail("invalid ratio %q", v)
				return decimal.Zero, nil, nil
			}
			return n.Div(o), &o, &n
		}
		d, err := parseDecimal(v)
		if err != nil {
			r.fail("invalid ratio: %v", err)
			return decimal.Zero, nil, nil
		}
		return d, nil, nil
	}
	o := r.decimal(models.FieldOldRatio, true)
	n := r.decimal(models.FieldNewRatio, true)
	if o == nil || n == nil {
		return decimal.Zero, nil, nil
	}
	if o.IsZero() {
		r.fail("old_ratio must be positive")
		return decimal.Zero, nil, nil
	}
	return n.Div(*o), o, n
}

func (r *fieldReader) transactions() []models.BuybackTransaction {
	v := r.text(models.FieldTransactions, false)
	if v == "" {
		return nil
	}
	var txs []models.BuybackTransaction
	if err := json.Unmarshal([]byte(v), &txs); err != nil {
		r.fail("invalid transactions: %v", err)
		return nil
	}
	return txs
}

var ratioOne = decimal.NewFromInt(1)
