package snapshot

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ctnfastfood/cart/pkg/errors"

	"github.com/ctnfastfood/cart/internal/domain"
	"github.com/ctnfastfood/cart/internal/idgen"
)

func sampleItems() []domain.LineItem {
	return []domain.LineItem{
		{ID: "a", Name: "Burger", Category: "Burgers", UnitPrice: decimal.RequireFromString("5.50"), ImageRef: "img1", Quantity: 2},
		{ID: "b", Name: "Fries", Category: "Sides", UnitPrice: decimal.RequireFromString("2"), ImageRef: "img2", Quantity: 1},
	}
}

// ---------------------------------------------------------------------------
// Encode
// ---------------------------------------------------------------------------

func TestEncode_WritesNumericPrice(t *testing.T) {
	data, err := Encode(sampleItems())
	require.NoError(t, err)

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	require.Len(t, generic, 2)
	assert.Equal(t, 5.5, generic[0]["price"])
	assert.Equal(t, "img1", generic[0]["image"])
	assert.Equal(t, float64(2), generic[0]["quantity"])
	assert.Equal(t, "a", generic[0]["id"])
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestEncodeIndent_TwoSpaces(t *testing.T) {
	data, err := EncodeIndent(sampleItems()[:1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"a\"")
}

func TestRoundTrip(t *testing.T) {
	items := sampleItems()
	data, err := EncodeIndent(items)
	require.NoError(t, err)

	got, err := Decode(data, idgen.NewSequence("new-"))
	require.NoError(t, err)
	require.Len(t, got, len(items))
	for i := range items {
		assert.Equal(t, items[i].ID, got[i].ID)
		assert.Equal(t, items[i].Name, got[i].Name)
		assert.Equal(t, items[i].Category, got[i].Category)
		assert.True(t, items[i].UnitPrice.Equal(got[i].UnitPrice))
		assert.Equal(t, items[i].ImageRef, got[i].ImageRef)
		assert.Equal(t, items[i].Quantity, got[i].Quantity)
	}
}

// ---------------------------------------------------------------------------
// Decode
// ---------------------------------------------------------------------------

func TestDecode_NotAList(t *testing.T) {
	for _, payload := range []string{`"not an array"`, `{"items":[]}`, `42`, ``, `   `, `not json`} {
		t.Run(payload, func(t *testing.T) {
			got, err := Decode([]byte(payload), idgen.NewSequence(""))
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotList))
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestDecode_TruncatedArray(t *testing.T) {
	_, err := Decode([]byte(`[{"name":"Burger"`), idgen.NewSequence(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotList))
}

func TestDecode_EmptyArray(t *testing.T) {
	got, err := Decode([]byte(`[]`), idgen.NewSequence(""))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDecode_CoercesStrings(t *testing.T) {
	payload := `[{"id":"x","name":"Burger","category":"Burgers","price":"5.50","image":"i","quantity":"3"}]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, decimal.RequireFromString("5.5").Equal(got[0].UnitPrice))
	assert.Equal(t, 3, got[0].Quantity)
}

func TestDecode_TruncatesFractionalQuantity(t *testing.T) {
	payload := `[{"id":"x","name":"Burger","category":"Burgers","price":1,"quantity":2.9}]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)
}

func TestDecode_NumericIDKeptAsText(t *testing.T) {
	payload := `[{"id":1718000000000.123,"name":"Burger","category":"Burgers","price":5.5,"quantity":1}]`
	got, err := Decode([]byte(payload), idgen.NewSequence("gen-"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1718000000000.123", got[0].ID)
}

func TestDecode_AssignsMissingIDs(t *testing.T) {
	payload := `[
		{"name":"A","category":"c","price":1,"quantity":1},
		{"id":null,"name":"B","category":"c","price":1,"quantity":1},
		{"id":"","name":"C","category":"c","price":1,"quantity":1},
		{"id":0,"name":"D","category":"c","price":1,"quantity":1}
	]`
	got, err := Decode([]byte(payload), idgen.NewSequence("gen-"))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "gen-1", got[0].ID)
	assert.Equal(t, "gen-2", got[1].ID)
	assert.Equal(t, "gen-3", got[2].ID)
	assert.Equal(t, "gen-4", got[3].ID)
}

func TestDecode_DuplicateIDReissued(t *testing.T) {
	payload := `[
		{"id":"same","name":"A","category":"c","price":1,"quantity":1},
		{"id":"same","name":"B","category":"c","price":1,"quantity":1}
	]`
	got, err := Decode([]byte(payload), idgen.NewSequence("gen-"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "same", got[0].ID)
	assert.Equal(t, "gen-1", got[1].ID)
}

func TestDecode_MergesDuplicatePairs(t *testing.T) {
	payload := `[
		{"id":"1","name":"Burger","category":"Burgers","price":5.5,"quantity":1},
		{"id":"2","name":"Fries","category":"Sides","price":2,"quantity":1},
		{"id":"3","name":"Burger","category":"Burgers","price":5.5,"quantity":2}
	]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, 3, got[0].Quantity)
	assert.Equal(t, "Fries", got[1].Name)
}

func TestDecode_DropsNonPositiveQuantity(t *testing.T) {
	payload := `[
		{"id":"1","name":"A","category":"c","price":1,"quantity":0},
		{"id":"2","name":"B","category":"c","price":1,"quantity":-4},
		{"id":"3","name":"C","category":"c","price":1,"quantity":"0.5"},
		{"id":"4","name":"D","category":"c","price":1,"quantity":1}
	]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "D", got[0].Name)
}

func TestDecode_RejectsBadPrice(t *testing.T) {
	cases := map[string]string{
		"negative":    `[{"name":"A","category":"c","price":-1,"quantity":1}]`,
		"non-numeric": `[{"name":"A","category":"c","price":"abc","quantity":1}]`,
		"missing":     `[{"name":"A","category":"c","quantity":1}]`,
		"null":        `[{"name":"A","category":"c","price":null,"quantity":1}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(payload), idgen.NewSequence(""))
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedItem))
			assert.Equal(t, 400, apperrors.HTTPStatus(err))
		})
	}
}

func TestDecode_RejectsMissingQuantity(t *testing.T) {
	_, err := Decode([]byte(`[{"name":"A","category":"c","price":1}]`), idgen.NewSequence(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedItem))
}

func TestDecode_RejectsNonObjectElement(t *testing.T) {
	_, err := Decode([]byte(`[1, 2]`), idgen.NewSequence(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedItem))
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	payload := `[{"id":"1","name":"A","category":"c","price":1,"quantity":1,"note":"extra cheese"}]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDecode_GeneratedIDsAvoidLiteralIDs(t *testing.T) {
	payload := `[
		{"id":"item-1","name":"Burger","category":"Burgers","price":5.5,"quantity":1},
		{"name":"Fries","category":"Sides","price":2,"quantity":1},
		{"id":"item-2","name":"Cola","category":"Drinks","price":1,"quantity":1}
	]`
	got, err := Decode([]byte(payload), idgen.NewSequence("item-"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "item-1", got[0].ID)
	assert.Equal(t, "item-2", got[1].ID)
	assert.Equal(t, "item-3", got[2].ID, "a literal id taken by an earlier generated id is reissued")
}

func TestDecode_RejectsOutOfRangeQuantity(t *testing.T) {
	cases := map[string]string{
		"above max":       `[{"name":"A","category":"c","price":1,"quantity":1000}]`,
		"exponent":        `[{"name":"A","category":"c","price":1,"quantity":"1e19"}]`,
		"max int64":       `[{"name":"A","category":"c","price":1,"quantity":9223372036854775807}]`,
		"tiny exponent":   `[{"name":"A","category":"c","price":1,"quantity":"1e-50000000"}]`,
		"merged overflow": `[{"name":"B","category":"c","price":1,"quantity":600},{"name":"B","category":"c","price":1,"quantity":600}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(payload), idgen.NewSequence(""))
			assert.Nil(t, got)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedItem)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestDecode_MergedQuantityAtMax(t *testing.T) {
	payload := `[{"name":"B","category":"c","price":1,"quantity":500},{"name":"B","category":"c","price":1,"quantity":499}]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.MaxQuantity, got[0].Quantity)
}

func TestDecode_RejectsOutOfRangePrice(t *testing.T) {
	cases := map[string]string{
		"above max":      `[{"name":"A","category":"c","price":100000.01,"quantity":1}]`,
		"huge exponent":  `[{"name":"A","category":"c","price":"1e50000000","quantity":1}]`,
		"tiny exponent":  `[{"name":"A","category":"c","price":"1e-50000000","quantity":1}]`,
		"number literal": `[{"name":"A","category":"c","price":1e400,"quantity":1}]`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Decode([]byte(payload), idgen.NewSequence(""))
			assert.Nil(t, got)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedItem)
		})
	}
}

func TestDecode_ZeroWithHugeExponentEncodesCompactly(t *testing.T) {
	payload := `[{"id":"x","name":"Water","category":"Drinks","price":"0e50000000","quantity":1}]`
	got, err := Decode([]byte(payload), idgen.NewSequence(""))
	require.NoError(t, err)
	require.Len(t, got, 1)

	data, err := Encode(got)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"price":0,`)
}
