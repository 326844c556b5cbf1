package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/supertypeai/sectors-corporate-actions/internal/models"
)

// Normalizer maps raw rows of one action type into canonical records.
type Normalizer interface {
	ActionType() models.ActionType
	Normalize(raw models.RawFieldMapping, source models.Source) (*models.Record, error)
}

// Options tune validation shared by every action type.
type Options struct {
	// ExchangeSuffix is appended to every ticker, e.g. ".JK".
	ExchangeSuffix string
	// Listed, when non-nil, restricts records to known securities (canonical ids).
	Listed map[string]bool
	// RejectFuture drops rows announced after Now.
	RejectFuture bool
	Now          func() time.Time
}

// fields is what a type-specific mapping contributes to the envelope.
type fields struct {
	announcement *models.Date
	effective    *models.Date
	payload      models.Payload
}

type mapFunc func(r *fieldReader) fields

var mappers = map[models.ActionType]mapFunc{
	models.Dividend:           mapDividend,
	models.StockSplit:         mapStockSplit,
	models.ReverseStockSplit:  mapReverseSplit,
	models.RightsIssue:        mapRightsIssue,
	models.Buyback:            mapBuyback,
	models.Bonus:              mapBonus,
	models.Warrant:            mapWarrant,
	models.ShareholderMeeting: mapShareholderMeeting,
}

type typeNormalizer struct {
	actionType models.ActionType
	mapFn      mapFunc
	opts       *Options
}

func (n *typeNormalizer) ActionType() models.ActionType {
	return n.actionType
}

func (n *typeNormalizer) Normalize(raw models.RawFieldMapping, source models.Source) (*models.Record, error) {
	reject := func(format string, args ...any) error {
		return &NormalizationError{ActionType: n.actionType, Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	security, err := CanonicalSymbol(raw.Get(models.FieldSymbol), n.opts.ExchangeSuffix)
	if err != nil {
		return nil, reject("%v", err)
	}
	if n.opts.Listed != nil && !n.opts.Listed[security] {
		return nil, reject("unlisted security %s", security)
	}

	r := &fieldReader{raw: raw}
	f := n.mapFn(r)
	if r.err != nil {
		return nil, reject("%v", r.err)
	}
	if f.announcement == nil {
		return nil, reject("missing announcement date")
	}
	if n.opts.RejectFuture && n.opts.Now != nil {
		if today := models.DateOf(n.opts.Now()); f.announcement.After(today) {
			return nil, reject("announcement in the future: %s", f.announcement)
		}
	}

	rec := &models.Record{
		SecurityID:       security,
		ActionType:       n.actionType,
		AnnouncementDate: *f.announcement,
		EffectiveDate:    f.effective,
		Payload:          f.payload,
		Source:           source,
	}
	if raw.SourceRef != "" {
		ref := raw.SourceRef
		rec.SourceRef = &ref
	}
	if err := rec.Validate(); err != nil {
		return nil, reject("%v", err)
	}
	return rec, nil
}

// Registry dispatches rows to the normalizer of their action type.
type Registry struct {
	items map[models.ActionType]Normalizer
}

// NewRegistry builds a normalizer for every action type. It panics when a type has no
// mapping, so the enum and the normalizers cannot drift apart.
func NewRegistry(opts Options) *Registry {
	shared := opts
	r := &Registry{items: make(map[models.ActionType]Normalizer, len(mappers))}
	for _, at := range models.AllActionTypes() {
		fn, ok := mappers[at]
		if !ok {
			panic(fmt.Sprintf("normalizer: no mapping for action type %s", at))
		}
		r.items[at] = &typeNormalizer{actionType: at, mapFn: fn, opts: &shared}
	}
	return r
}

// For returns the normalizer for at.
func (r *Registry) For(at models.ActionType) (Normalizer, error) {
	n, ok := r.items[at]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownActionType, at)
	}
	return n, nil
}

// Normalize converts one scraped row of type at.
func (r *Registry) Normalize(raw models.RawFieldMapping, at models.ActionType) (*models.Record, error) {
	n, err := r.For(at)
	if err != nil {
		return nil, err
	}
	return n.Normalize(raw, models.SourceScraped)
}

func mapDividend(r *fieldReader) fields {
	amount := r.positive(models.FieldAmount)
	currency := strings.ToUpper(r.text(models.FieldCurrency, true))
	if currency != "" && !currencyPattern.MatchString(currency) {
		r.fail("invalid currency %q", currency)
	}
	p := models.DividendPayload{
		Amount:        amount,
		Currency:      currency,
		ExDate:        r.date(models.FieldExDate, false),
		RecordingDate: r.date(models.FieldRecordingDate, false),
		PaymentDate:   r.date(models.FieldPaymentDate, false),
	}
	return fields{
		announcement: r.date(models.FieldCumDate, true),
		effective:    p.PaymentDate,
		payload:      p,
	}
}

func splitTerms(r *fieldReader) models.SplitTerms {
	ratio, oldShares, newShares := r.ratio()
	if r.err == nil && (!ratio.IsPositive() || ratio.Equal(ratioOne)) {
		r.fail("split ratio must be greater than 0 and not 1, got %s", ratio)
	}
	return models.SplitTerms{
		Ratio:         ratio,
		OldShares:     oldShares,
		NewShares:     newShares,
		ExDate:        r.date(models.FieldExDate, false),
		RecordingDate: r.date(models.FieldRecordingDate, false),
	}
}

func mapStockSplit(r *fieldReader) fields {
	terms := splitTerms(r)
	return fields{
		announcement: r.date(models.FieldCumDate, true),
		effective:    terms.ExDate,
		payload:      models.StockSplitPayload{SplitTerms: terms},
	}
}

func mapReverseSplit(r *fieldReader) fields {
	terms := splitTerms(r)
	if r.err == nil && terms.Ratio.GreaterThanOrEqual(ratioOne) {
		r.fail("reverse split ratio must be below 1, got %s", terms.Ratio)
	}
	return fields{
		announcement: r.date(models.FieldCumDate, true),
		effective:    terms.ExDate,
		payload:      models.ReverseSplitPayload{SplitTerms: terms},
	}
}

func mapRightsIssue(r *fieldReader) fields {
	p := models.RightsIssuePayload{
		OldRatio:           r.positive(models.FieldOldRatio),
		NewRatio:           r.positive(models.FieldNewRatio),
		Price:              r.positive(models.FieldPrice),
		Factor:             r.decimal(models.FieldFactor, false),
		ExDate:             r.date(models.FieldExDate, false),
		RecordingDate:      r.date(models.FieldRecordingDate, false),
		TradingPeriodStart: r.date(models.FieldTradingPeriodStart, false),
		TradingPeriodEnd:   r.date(models.FieldTradingPeriodEnd, false),
	}
	return fields{
		announcement: r.date(models.FieldCumDate, true),
		effective:    r.date(models.FieldSubscriptionDate, false),
		payload:      p,
	}
}

func mapBuyback(r *fieldReader) fields {
	p := models.BuybackPayload{
		Volume:       r.positive(models.FieldVolume),
		Price:        r.decimal(models.FieldPrice, false),
		PriceLow:     r.decimal(models.FieldPriceLow, false),
		PriceHigh:    r.decimal(models.FieldPriceHigh, false),
		Budget:       r.decimal(models.FieldBudget, false),
		Transactions: r.transactions(),
	}
	hasRange := p.PriceLow != nil && p.PriceHigh != nil
	switch {
	case r.err != nil:
	case p.Price == nil && !hasRange:
		r.fail("buyback needs a price or a price range")
	case hasRange && p.PriceLow.GreaterThan(*p.PriceHigh):
		r.fail("price range is inverted: %s > %s", p.PriceLow, p.PriceHigh)
	}
	return fields{
		announcement: r.date(models.FieldStartDate, true),
		effective:    r.date(models.FieldEndDate, false),
		payload:      p,
	}
}

func mapBonus(r *fieldReader) fields {
	p := models.BonusPayload{
		OldRatio:      r.positive(models.FieldOldRatio),
		NewRatio:      r.positive(models.FieldNewRatio),
		ExDate:        r.date(models.FieldExDate, false),
		RecordingDate: r.date(models.FieldRecordingDate, false),
	}
	return fields{
		announcement: r.date(models.FieldCumDate, true),
		effective:    r.date(models.FieldPaymentDate, false),
		payload:      p,
	}
}

func mapWarrant(r *fieldReader) fields {
	price := r.decimal(models.FieldPrice, true)
	p := models.WarrantPayload{
		OldRatio:         r.positive(models.FieldOldRatio),
		NewRatio:         r.positive(models.FieldNewRatio),
		TradingPeriodEnd: r.date(models.FieldTradingPeriodEnd, false),
		ExDateCash:       r.date(models.FieldExDateCash, false),
		ExerciseStart:    r.date(models.FieldExerciseStart, false),
		ExerciseEnd:      r.date(models.FieldExerciseEnd, false),
	}
	if price != nil {
		p.ExercisePrice = *price
	}
	return fields{
		announcement: r.date(models.FieldTradingPeriodStart, true),
		effective:    r.date(models.FieldMaturityDate, false),
		payload:      p,
	}
}

func mapShareholderMeeting(r *fieldReader) fields {
	place := r.text(models.FieldPlace, false)
	lower := strings.ToLower(place)
	p := models.ShareholderMeetingPayload{
		Place:     place,
		Cancelled: strings.Contains(lower, "dibatalkan") || strings.Contains(lower, "cancel"),
	}
	return fields{
		announcement: r.date(models.FieldRecordingDate, true),
		effective:    r.date(models.FieldMeetingDate, true),
		payload:      p,
	}
}
