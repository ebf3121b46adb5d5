package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemStruct struct {
	Name     string          `validate:"required,max=200"`
	Category string          `validate:"required"`
	Price    decimal.Decimal `validate:"gte=0,lte=100000"`
	Quantity int             `validate:"gte=0,lte=999"`
}

func TestValidate_Success(t *testing.T) {
	s := addItemStruct{Name: "Burger", Category: "Burgers", Price: decimal.RequireFromString("5.50"), Quantity: 1}
	err := Validate(s)
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	s := addItemStruct{Category: "Burgers", Price: decimal.NewFromInt(5)}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Name")
	assert.Equal(t, "is required", fields["Name"])
}

func TestValidate_NegativeDecimal(t *testing.T) {
	s := addItemStruct{Name: "Burger", Category: "Burgers", Price: decimal.RequireFromString("-0.01")}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be greater than or equal to 0", valErr.Fields()["Price"])
}

func TestValidate_DecimalUpperBound(t *testing.T) {
	s := addItemStruct{Name: "Burger", Category: "Burgers", Price: decimal.RequireFromString("100000.01")}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["Price"], "100000")
}

func TestValidate_DecimalExtremeExponents(t *testing.T) {
	huge := addItemStruct{Name: "Burger", Category: "Burgers", Price: decimal.RequireFromString("1e50000000")}
	var valErr *ValidationError
	require.ErrorAs(t, Validate(huge), &valErr)
	assert.Contains(t, valErr.Fields()["Price"], "100000")

	tiny := addItemStruct{Name: "Burger", Category: "Burgers", Price: decimal.RequireFromString("1e-50000000")}
	assert.NoError(t, Validate(tiny))
}

func TestValidate_OutOfRange(t *testing.T) {
	s := addItemStruct{Name: "Burger", Category: "Burgers", Quantity: 1000}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["Quantity"], "999")
}

func TestValidate_MultipleErrors(t *testing.T) {
	s := addItemStruct{}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Name")
	assert.Contains(t, fields, "Category")
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(addItemStruct{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Name'")
	assert.Contains(t, err.Error(), "is required")
}

type minMaxStruct struct {
	Short string `validate:"min=3"`
	Long  string `validate:"max=5"`
}

func TestValidate_MinMax(t *testing.T) {
	s := minMaxStruct{Short: "ab", Long: "toolongstring"}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields["Short"], "at least 3")
	assert.Contains(t, fields["Long"], "at most 5")
}

type oneofStruct struct {
	Driver string `validate:"oneof=memory redis postgres"`
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(oneofStruct{Driver: "mongo"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["Driver"], "one of")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"Name":"Fries","Category":"Sides","Price":"2.00","Quantity":3}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s addItemStruct
	err := DecodeAndValidate(req, &s)

	require.NoError(t, err)
	assert.Equal(t, "Fries", s.Name)
	assert.True(t, s.Price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 3, s.Quantity)
}

func TestDecodeAndValidate_NumericPrice(t *testing.T) {
	body := `{"Name":"Fries","Category":"Sides","Price":2.5}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s addItemStruct
	require.NoError(t, DecodeAndValidate(req, &s))
	assert.True(t, s.Price.Equal(decimal.RequireFromString("2.5")))
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var s addItemStruct
	err := DecodeAndValidate(req, &s)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	body := `{"Name":"","Category":"Sides","Price":1}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var s addItemStruct
	err := DecodeAndValidate(req, &s)

	require.Error(t, err)
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}
