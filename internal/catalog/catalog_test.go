package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceOrDash_RoundTrip(t *testing.T) {
	for _, p := range []PriceOrDash{Dash, Price(0), Price(1999)} {
		data, err := json.Marshal(p)
		require.NoError(t, err)

		var out PriceOrDash
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, p, out)
	}
}

func TestPriceOrDash_DecodesDash(t *testing.T) {
	var p PriceOrDash
	require.NoError(t, json.Unmarshal([]byte(`"-"`), &p))
	assert.False(t, p.Known)
}

func TestValidate_RejectsDuplicateIDs(t *testing.T) {
	env := Envelope{
		Meta:  Meta{RecordCount: 2},
		Games: []GameRecord{{ID: "1"}, {ID: "1"}},
	}
	err := Validate(env)
	assert.ErrorContains(t, err, "duplicate id")
}

func TestValidate_RejectsTooManyTags(t *testing.T) {
	env := NewEnvelope([]GameRecord{{ID: "1", Tags: []string{"a", "b", "c", "d"}}}, "test", time.Now())
	err := Validate(env)
	assert.ErrorContains(t, err, "max 3")
}

func TestValidate_RejectsCutMismatch(t *testing.T) {
	env := NewEnvelope([]GameRecord{{
		ID:   "1",
		Deal: map[string]DealQuote{"USD": {Price: Price(100), Regular: Price(100), Cut: 10}},
	}}, "test", time.Now())
	err := Validate(env)
	assert.ErrorContains(t, err, "cut=10")
}

func TestValidate_AcceptsNoITADDataRecord(t *testing.T) {
	env := NewEnvelope([]GameRecord{{
		ID:   "1",
		Deal: map[string]DealQuote{"USD": {Price: Price(100), Regular: Price(100), Cut: 0, StoreLow: Dash, NoITADData: true}},
	}}, "test", time.Now())
	assert.NoError(t, Validate(env))
}

func TestComputeCut(t *testing.T) {
	assert.Equal(t, 0, ComputeCut(100, 100))
	assert.Equal(t, 50, ComputeCut(100, 50))
	assert.Equal(t, 0, ComputeCut(0, 0))
}
