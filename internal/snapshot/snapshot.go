// Package snapshot converts a cart's line items to and from the serialized
// array stored under the cart's storage key and handed out by export.
//
// The wire record is {id, name, category, price, image, quantity}. Prices are
// written as JSON numbers; on the way in, numbers and numeric strings are both
// accepted for price and quantity, and ids may be strings or numbers.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/ctnfastfood/cart/pkg/errors"

	"github.com/ctnfastfood/cart/internal/domain"
	"github.com/ctnfastfood/cart/internal/idgen"
)

var (
	// ErrNotList is reported when the payload is not a JSON array.
	ErrNotList = errors.New("snapshot is not a list")
	// ErrMalformedItem is reported when an element cannot be coerced into a line item.
	ErrMalformedItem = errors.New("malformed snapshot item")
)

// maxIntegerDigits bounds the magnitude of any number in a snapshot. It is
// far above every legitimate price or quantity and keeps arithmetic on
// hostile exponents such as 1e50000000 cheap.
const maxIntegerDigits = 15

type record struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    json.RawMessage `json:"price"`
	Image    string          `json:"image"`
	Quantity json.RawMessage `json:"quantity"`
}

type outRecord struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Price    json.Number `json:"price"`
	Image    string      `json:"image"`
	Quantity int         `json:"quantity"`
}

func toRecords(items []domain.LineItem) []outRecord {
	out := make([]outRecord, len(items))
	for i, item := range items {
		out[i] = outRecord{
			ID:       item.ID,
			Name:     item.Name,
			Category: item.Category,
			Price:    json.Number(item.UnitPrice.String()),
			Image:    item.ImageRef,
			Quantity: item.Quantity,
		}
	}
	return out
}

// Encode serializes items into the compact form written to storage.
func Encode(items []domain.LineItem) ([]byte, error) {
	data, err := json.Marshal(toRecords(items))
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// EncodeIndent serializes items with two-space indentation for export.
func EncodeIndent(items []domain.LineItem) ([]byte, error) {
	data, err := json.MarshalIndent(toRecords(items), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot into line items.
//
// Items lacking an id (missing, null, "" or 0) or repeating an id already in
// the result get a fresh one from ids that is also unused. Records sharing a
// (name, category) pair are merged by summing quantities into the first
// occurrence. Records whose quantity truncates to zero or less are dropped.
// A record whose price is not a number within domain.ValidateUnitPrice, or
// whose quantity (alone or merged) exceeds domain.MaxQuantity, rejects the
// whole payload.
func Decode(data []byte, ids idgen.Generator) ([]domain.LineItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, invalid("snapshot must be a JSON array of items", ErrNotList)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, invalid("snapshot must be a JSON array of items", errors.Join(ErrNotList, err))
	}

	cart := domain.Cart{Items: make([]domain.LineItem, 0, len(raw))}
	seenIDs := make(map[string]struct{}, len(raw))

	idTaken := func(id string) bool {
		_, ok := seenIDs[id]
		return ok
	}

	for i, elem := range raw {
		item, keep, err := decodeItem(elem)
		if err != nil {
			return nil, malformed(i, err)
		}
		if !keep {
			continue
		}

		if idx := cart.FindItemIndex(item.Name, item.Category); idx >= 0 {
			merged := cart.Items[idx].Quantity + item.Quantity
			if err := domain.ValidateQuantity(merged); err != nil {
				return nil, malformed(i, fmt.Errorf("merged %s: %w", item.Name, err))
			}
			cart.Items[idx].Quantity = merged
			continue
		}

		if item.ID == "" || idTaken(item.ID) {
			item.ID = idgen.Unique(ids, idTaken)
		}
		seenIDs[item.ID] = struct{}{}
		cart.Items = append(cart.Items, item)
	}

	return cart.Items, nil
}

func decodeItem(elem json.RawMessage) (domain.LineItem, bool, error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.LineItem{}, false, errors.New("not an object")
	}

	var rec record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return domain.LineItem{}, false, err
	}

	price, err := parseNumber(rec.Price)
	if err != nil {
		return domain.LineItem{}, false, fmt.Errorf("price: %w", err)
	}
	if err := domain.ValidateUnitPrice(price); err != nil {
		return domain.LineItem{}, false, err
	}

	qty, err := parseNumber(rec.Quantity)
	if err != nil {
		return domain.LineItem{}, false, fmt.Errorf("quantity: %w", err)
	}
	qty = qty.Truncate(0)
	if !qty.IsPositive() {
		return domain.LineItem{}, false, nil
	}
	if qty.GreaterThan(decimal.NewFromInt(domain.MaxQuantity)) {
		return domain.LineItem{}, false, fmt.Errorf("quantity must not exceed %d", domain.MaxQuantity)
	}
	quantity := qty.IntPart()

	return domain.LineItem{
		ID:        parseID(rec.ID),
		Name:      rec.Name,
		Category:  rec.Category,
		UnitPrice: price,
		ImageRef:  rec.Image,
		Quantity:  int(quantity),
	}, true, nil
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Zero, errors.New("missing")
	}

	text := string(trimmed)
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return decimal.Zero, err
		}
		text = string(bytes.TrimSpace([]byte(text)))
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", text)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	if d.Exponent() < -domain.MaxPriceScale || domain.IntegerDigits(d) > maxIntegerDigits {
		return decimal.Zero, fmt.Errorf("number out of range: %q", text)
	}
	return d, nil
}

// parseID returns the id as text, or "" when it is absent or falsy.
func parseID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}

	switch c := trimmed[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case c == '-' || (c >= '0' && c <= '9'):
		d, err := decimal.NewFromString(string(trimmed))
		if err != nil || d.IsZero() {
			return ""
		}
		return string(trimmed)
	default:
		return ""
	}
}

func malformed(i int, err error) error {
	return invalid(fmt.Sprintf("item %d: %s", i, err.Error()), errors.Join(ErrMalformedItem, err))
}

func invalid(message string, cause error) error {
	return apperrors.New(apperrors.ErrInvalidInput, message, cause)
}
