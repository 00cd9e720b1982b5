package money

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQuantity(t *testing.T) {
	tests := []struct {
		n     int
		valid bool
	}{
		{1, true},
		{3, true},
		{MaxQuantity, true},
		{0, false},
		{-1, false},
		{MaxQuantity + 1, false},
		{math.MaxInt, false},
	}
	for _, tt := range tests {
		q, err := NewQuantity(tt.n)
		if tt.valid {
			require.NoError(t, err)
			assert.Equal(t, tt.n, q.Int())
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidQuantity, "n=%d", tt.n)
	}
}

func TestCentsArithmetic(t *testing.T) {
	assert.Equal(t, Cents(600), Cents(300).Mul(2))
	assert.Equal(t, Cents(400), Cents(200).Times(2))
	assert.Equal(t, Cents(0), Cents(-150).ClampZero())
	assert.Equal(t, Cents(150), Cents(150).ClampZero())
}

func TestCentsDecimalBoundary(t *testing.T) {
	assert.Equal(t, "6.00", Cents(600).String())
	assert.Equal(t, "1.50", Cents(150).String())
	assert.Equal(t, "0.05", Cents(5).String())

	c, err := ParseCents("3.50")
	require.NoError(t, err)
	assert.Equal(t, Cents(350), c)

	// 0.1 + 0.2 drifts in binary floats but not here.
	sum := FromDecimal(decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2")))
	assert.Equal(t, Cents(30), sum)

	_, err = ParseCents("abc")
	assert.Error(t, err)
}

func TestCentsJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Total Cents `json:"total"`
	}{Total: 400})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 4.00}`, string(out))

	var in struct {
		Price Cents `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price": "2.25"}`), &in))
	assert.Equal(t, Cents(225), in.Price)

	require.NoError(t, json.Unmarshal([]byte(`{"price": 1.5}`), &in))
	assert.Equal(t, Cents(150), in.Price)
}
