package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOddsTableDecodeNested(t *testing.T) {
	raw := `{
		"home": {"id": "a1", "odd": "1.80"},
		"result": {
			"draw": {"id": "b2", "odd": 3.1},
			"exact": {"two_one": {"id": "c3", "odd": "9.50"}}
		}
	}`

	var tbl OddsTable
	require.NoError(t, json.Unmarshal([]byte(raw), &tbl))

	assert.Equal(t, []string{"home", "result.draw", "result.exact.two_one"}, tbl.Paths())
	assert.True(t, decimal.RequireFromString("3.1").Equal(tbl["result.draw"].Odd))

	idx := tbl.Index()
	require.Len(t, idx, 3)
	assert.Equal(t, "result.exact.two_one", idx["c3"].Path)
	assert.Equal(t, "two_one", idx["c3"].Category)
	assert.Equal(t, "home", idx["a1"].Category)
}

func TestOddsTableRejectsDuplicateIDs(t *testing.T) {
	raw := `{"home": {"id": "x", "odd": "1.5"}, "nested": {"away": {"id": "x", "odd": "2.5"}}}`

	var tbl OddsTable
	err := json.Unmarshal([]byte(raw), &tbl)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateOddsID)
}

func TestOddsTableRejectsDottedKeys(t *testing.T) {
	var tbl OddsTable
	err := json.Unmarshal([]byte(`{"a.b": {"id": "x", "odd": "1.5"}}`), &tbl)
	assert.ErrorIs(t, err, ErrInvalidOddsPath)
}

func TestOddsTableEncodesNested(t *testing.T) {
	tbl := OddsTable{
		"home":        {ID: "h", Odd: decimal.RequireFromString("1.25")},
		"result.away": {ID: "a", Odd: decimal.RequireFromString("4.00")},
	}

	b, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"home":{"id":"h","odd":"1.25"},"result":{"away":{"id":"a","odd":"4"}}}`, string(b))

	var back OddsTable
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, tbl.Index()["a"].Path, back.Index()["a"].Path)
}

func TestOddsTableLeafAndBranchConflict(t *testing.T) {
	tbl := OddsTable{
		"result":      {ID: "r", Odd: decimal.NewFromInt(2)},
		"result.home": {ID: "h", Odd: decimal.NewFromInt(2)},
	}
	_, err := json.Marshal(tbl)
	assert.Error(t, err)
}

func TestEventsUntil(t *testing.T) {
	evs := []Event{{At: 0, Type: EventKickoff}, {At: 10, Type: EventMove}, {At: 20, Type: EventGoal, Side: SideHome}}

	assert.Len(t, EventsUntil(evs, 0), 1)
	assert.Len(t, EventsUntil(evs, 19), 2)
	assert.Len(t, EventsUntil(evs, 500), 3)
	assert.Equal(t, Score{Home: 1}, GoalsFrom(evs))
}

func TestAmountFromDecimalTruncates(t *testing.T) {
	a := AmountFromDecimal(decimal.RequireFromString("18.009"), 2)
	assert.Equal(t, Amount{Value: 1800, Scale: 2}, a)
	assert.Equal(t, "18.00", a.String())
}
