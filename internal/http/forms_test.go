package http

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household/internal/core"
)

func TestCartFormValidation(t *testing.T) {
	v := newValidator()
	valid := cartForm{
		Category: "Dairy Products",
		Item:     "Milk",
		Quantity: core.NumberFromInt(1),
		Price:    core.NumberFromInt(60),
	}
	require.NoError(t, v.Struct(valid))

	tests := []struct {
		name    string
		mutate  func(*cartForm)
		message string
	}{
		{"empty item", func(f *cartForm) { f.Item = "" }, "Enter item"},
		{"quantity below minimum", func(f *cartForm) { f.Quantity = core.NewNumber(0.05) }, "Quantity must be at least 0.1"},
		{"price below minimum", func(f *cartForm) { f.Price = core.NewNumber(0.5) }, "Price must be at least 1"},
		{"unknown category", func(f *cartForm) { f.Category = "Toys" }, "Unknown category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			err := v.Struct(f)
			require.Error(t, err)
			assert.Equal(t, tt.message, validationMessage(err))
		})
	}
}

func TestCartFormBoundaries(t *testing.T) {
	v := newValidator()
	f := cartForm{
		Category: "Spices",
		Item:     "Cumin",
		Quantity: core.NewNumber(0.1),
		Price:    core.NumberFromInt(1),
	}
	assert.NoError(t, v.Struct(f))
	assert.Equal(t, "0.1", f.Amount().String())
}

func TestDecodeCartForm(t *testing.T) {
	f, err := decodeCartForm(url.Values{
		"category": {"Vegetables"},
		"item":     {"  Onions "},
		"price":    {"40"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Onions", f.Item)
	assert.Equal(t, "1", f.Quantity.String(), "quantity defaults to 1")
	assert.Equal(t, "40", f.Amount().String())

	f, err = decodeCartForm(url.Values{"quantity": {"1.5"}, "price": {"80"}})
	require.NoError(t, err)
	assert.Equal(t, "120", f.Amount().String())

	_, err = decodeCartForm(url.Values{"quantity": {"lots"}, "price": {"80"}})
	assert.EqualError(t, err, "Quantity must be a number")

	_, err = decodeCartForm(url.Values{"quantity": {"1"}})
	assert.EqualError(t, err, "Price must be a number")
}

func TestBalanceFormValidation(t *testing.T) {
	v := newValidator()

	f, err := decodeBalanceForm(url.Values{"month": {"2026-03"}, "balance": {"5000"}})
	require.NoError(t, err)
	assert.NoError(t, v.Struct(f))

	f.Balance = core.NumberFromInt(-1)
	assert.Equal(t, "Balance must be at least 0", validationMessage(v.Struct(f)))

	f.Balance = core.Zero
	f.Month = "2026-3"
	assert.Equal(t, "Month must be in YYYY-MM form", validationMessage(v.Struct(f)))

	_, err = decodeBalanceForm(url.Values{"month": {"2026-03"}})
	assert.Error(t, err)
}

func TestEditFormValidation(t *testing.T) {
	v := newValidator()

	f, err := decodeEditForm(url.Values{"month": {"2026-01"}, "quantity": {"2"}, "amount": {"240.50"}})
	require.NoError(t, err)
	require.NoError(t, v.Struct(f))
	assert.Equal(t, "240.5", f.Amount.String())

	f.Amount = core.NumberFromInt(-5)
	assert.Error(t, v.Struct(f))

	_, err = decodeEditForm(url.Values{"month": {"2026-01"}, "quantity": {"2"}})
	assert.EqualError(t, err, "Amount must be a number")
}

func TestLoginFormValidation(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Struct(decodeLoginForm(url.Values{"username": {"demo"}, "password": {"demo123"}})))
	assert.Error(t, v.Struct(decodeLoginForm(url.Values{"username": {"demo"}})))
	assert.Error(t, v.Struct(decodeLoginForm(url.Values{"password": {"x"}})))
}
