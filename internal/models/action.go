package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ActionType is the closed set of corporate-action kinds the pipeline understands.
type ActionType string

const (
	Dividend           ActionType = "dividend"
	StockSplit         ActionType = "stock_split"
	ReverseStockSplit  ActionType = "reverse_stock_split"
	RightsIssue        ActionType = "rights_issue"
	Buyback            ActionType = "buyback"
	Bonus              ActionType = "bonus"
	Warrant            ActionType = "warrant"
	ShareholderMeeting ActionType = "shareholder_meeting"
)

// ErrUnknownActionType is returned when a string does not name a supported action type.
var ErrUnknownActionType = errors.New("unknown action type")

var allActionTypes = []ActionType{
	Dividend,
	StockSplit,
	ReverseStockSplit,
	RightsIssue,
	Buyback,
	Bonus,
	Warrant,
	ShareholderMeeting,
}

// AllActionTypes returns every supported action type in declaration order.
func AllActionTypes() []ActionType {
	out := make([]ActionType, len(allActionTypes))
	copy(out, allActionTypes)
	return out
}

// Valid reports whether a is a member of the enum.
func (a ActionType) Valid() bool {
	for _, t := range allActionTypes {
		if t == a {
			return true
		}
	}
	return false
}

// IsException reports whether the type must be reconciled against manual entries.
func (a ActionType) IsException() bool {
	switch a {
	case RightsIssue, ReverseStockSplit, Buyback:
		return true
	default:
		return false
	}
}

// Table is the storage table holding records of this type.
func (a ActionType) Table() string {
	return "ca_" + string(a)
}

func (a ActionType) String() string {
	return string(a)
}

// ParseActionType accepts the canonical name as well as hyphenated or upper-case spellings.
func ParseActionType(s string) (ActionType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "split":
		norm = string(StockSplit)
	case "reverse_split":
		norm = string(ReverseStockSplit)
	case "rights", "right_issue":
		norm = string(RightsIssue)
	case "rups", "meeting":
		norm = string(ShareholderMeeting)
	}
	at := ActionType(norm)
	if !at.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownActionType, s)
	}
	return at, nil
}

// ParseActionTypes parses a list of names into a de-duplicated set ordered as AllActionTypes.
// An empty list selects every type.
func ParseActionTypes(names []string) ([]ActionType, error) {
	if len(names) == 0 {
		return AllActionTypes(), nil
	}
	seen := make(map[ActionType]bool, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		at, err := ParseActionType(n)
		if err != nil {
			return nil, err
		}
		seen[at] = true
	}
	if len(seen) == 0 {
		return AllActionTypes(), nil
	}
	out := make([]ActionType, 0, len(seen))
	for at := range seen {
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return ordinal(out[i]) < ordinal(out[j]) })
	return out, nil
}

func ordinal(a ActionType) int {
	for i, t := range allActionTypes {
		if t == a {
			return i
		}
	}
	return len(allActionTypes)
}
