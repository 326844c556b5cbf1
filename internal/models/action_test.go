package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionType(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionType
		wantErr bool
	}{
		{"dividend", Dividend, false},
		{"Stock-Split", StockSplit, false},
		{"reverse_split", ReverseStockSplit, false},
		{"rights", RightsIssue, false},
		{"RUPS", ShareholderMeeting, false},
		{" buyback ", Buyback, false},
		{"merger", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseActionType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownActionType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionTypesOrdersAndDeduplicates(t *testing.T) {
	got, err := ParseActionTypes([]string{"buyback", "dividend", "buyback", ""})
	require.NoError(t, err)
	assert.Equal(t, []ActionType{Dividend, Buyback}, got)

	all, err := ParseActionTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, AllActionTypes(), all)
}

func TestIsException(t *testing.T) {
	exceptions := map[ActionType]bool{RightsIssue: true, ReverseStockSplit: true, Buyback: true}
	for _, at := range AllActionTypes() {
		assert.Equal(t, exceptions[at], at.IsException(), at)
	}
}

func TestTableNamesAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, at := range AllActionTypes() {
		assert.False(t, seen[at.Table()], at.Table())
		seen[at.Table()] = true
	}
	assert.Equal(t, "ca_buyback", Buyback.Table())
}
