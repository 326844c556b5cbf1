package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Payload is the type-specific part of a corporate-action record.
type Payload interface {
	// ActionType names the variant.
	ActionType() ActionType
	// IdentityFields are the payload values that belong to the record identity key.
	IdentityFields() []string
}

// DividendPayload describes a cash dividend.
type DividendPayload struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExDate        *Date           `json:"ex_date,omitempty"`
	RecordingDate *Date           `json:"recording_date,omitempty"`
	PaymentDate   *Date           `json:"payment_date,omitempty"`
}

func (DividendPayload) ActionType() ActionType { return Dividend }

// A company can declare the same-day dividend in two currencies, so currency is part of identity.
func (p DividendPayload) IdentityFields() []string { return []string{p.Currency} }

// SplitTerms is shared by forward and reverse splits. Ratio is new shares per old share.
type SplitTerms struct {
	Ratio         decimal.Decimal  `json:"ratio"`
	OldShares     *decimal.Decimal `json:"old_shares,omitempty"`
	NewShares     *decimal.Decimal `json:"new_shares,omitempty"`
	ExDate        *Date            `json:"ex_date,omitempty"`
	RecordingDate *Date            `json:"recording_date,omitempty"`
}

type StockSplitPayload struct {
	SplitTerms
}

func (StockSplitPayload) ActionType() ActionType   { return StockSplit }
func (StockSplitPayload) IdentityFields() []string { return nil }

type ReverseSplitPayload struct {
	SplitTerms
}

func (ReverseSplitPayload) ActionType() ActionType   { return ReverseStockSplit }
func (ReverseSplitPayload) IdentityFields() []string { return nil }

// RightsIssuePayload holds subscription terms. OldRatio existing shares entitle NewRatio rights.
type RightsIssuePayload struct {
	OldRatio           decimal.Decimal  `json:"old_ratio"`
	NewRatio           decimal.Decimal  `json:"new_ratio"`
	Price              decimal.Decimal  `json:"price"`
	Factor             *decimal.Decimal `json:"factor,omitempty"`
	ExDate             *Date            `json:"ex_date,omitempty"`
	RecordingDate      *Date            `json:"recording_date,omitempty"`
	TradingPeriodStart *Date            `json:"trading_period_start,omitempty"`
	TradingPeriodEnd   *Date            `json:"trading_period_end,omitempty"`
}

func (RightsIssuePayload) ActionType() ActionType   { return RightsIssue }
func (RightsIssuePayload) IdentityFields() []string { return nil }

// BuybackTransaction is one reported execution under a buyback mandate.
type BuybackTransaction struct {
	Date         Date             `json:"date"`
	Shares       decimal.Decimal  `json:"shares"`
	AveragePrice *decimal.Decimal `json:"average_price,omitempty"`
}

// BuybackPayload requires a volume and either Price or both PriceLow and PriceHigh.
type BuybackPayload struct {
	Volume       decimal.Decimal      `json:"volume"`
	Price        *decimal.Decimal     `json:"price,omitempty"`
	PriceLow     *decimal.Decimal     `json:"price_low,omitempty"`
	PriceHigh    *decimal.Decimal     `json:"price_high,omitempty"`
	Budget       *decimal.Decimal     `json:"budget,omitempty"`
	Transactions []BuybackTransaction `json:"transactions,omitempty"`
}

func (BuybackPayload) ActionType() ActionType   { return Buyback }
func (BuybackPayload) IdentityFields() []string { return nil }

type BonusPayload struct {
	OldRatio      decimal.Decimal `json:"old_ratio"`
	NewRatio      decimal.Decimal `json:"new_ratio"`
	ExDate        *Date           `json:"ex_date,omitempty"`
	RecordingDate *Date           `json:"recording_date,omitempty"`
}

func (BonusPayload) ActionType() ActionType   { return Bonus }
func (BonusPayload) IdentityFields() []string { return nil }

type WarrantPayload struct {
	OldRatio         decimal.Decimal `json:"old_ratio"`
	NewRatio         decimal.Decimal `json:"new_ratio"`
	ExercisePrice    decimal.Decimal `json:"exercise_price"`
	TradingPeriodEnd *Date           `json:"trading_period_end,omitempty"`
	ExDateCash       *Date           `json:"ex_date_cash,omitempty"`
	ExerciseStart    *Date           `json:"exercise_start,omitempty"`
	ExerciseEnd      *Date           `json:"exercise_end,omitempty"`
}

func (WarrantPayload) ActionType() ActionType   { return Warrant }
func (WarrantPayload) IdentityFields() []string { return nil }

type ShareholderMeetingPayload struct {
	Place     string `json:"place,omitempty"`
	Cancelled bool   `json:"cancelled"`
}

func (ShareholderMeetingPayload) ActionType() ActionType   { return ShareholderMeeting }
func (ShareholderMeetingPayload) IdentityFields() []string { return nil }

// EncodePayload renders p in its canonical JSON form.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil payload")
	}
	return json.Marshal(p)
}

// DecodePayload parses stored JSON into the variant belonging to t.
func DecodePayload(t ActionType, data []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case Dividend:
		var v DividendPayload
		err = json.Unmarshal(data, &v)
		p = v
	case StockSplit:
		var v StockSplitPayload
		err = json.Unmarshal(data, &v)
		p = v
	case ReverseStockSplit:
		var v ReverseSplitPayload
		err = json.Unmarshal(data, &v)
		p = v
	case RightsIssue:
		var v RightsIssuePayload
		err = json.Unmarshal(data, &v)
		p = v
	case Buyback:
		var v BuybackPayload
		err = json.Unmarshal(data, &v)
		p = v
	case Bonus:
		var v BonusPayload
		err = json.Unmarshal(data, &v)
		p = v
	case Warrant:
		var v WarrantPayload
		err = json.Unmarshal(data, &v)
		p = v
	case ShareholderMeeting:
		var v ShareholderMeetingPayload
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
