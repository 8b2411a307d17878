package http

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"household/internal/core"
)

// Categories are the groups offered on the Add Expenses page.
var Categories = []string{
	"Dairy Products",
	"Vegetables",
	"Meat",
	"Spices",
	"Snacks",
	"Other Items",
}

type loginForm struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=128"`
}

type balanceForm struct {
	Month   string      `validate:"required,monthkey"`
	Balance core.Number `validate:"gte=0"`
}

type cartForm struct {
	Category string      `validate:"required,category"`
	Item     string      `validate:"required,max=100"`
	Quantity core.Number `validate:"gte=0.1"`
	Price    core.Number `validate:"gte=1"`
}

// Amount is quantity times unit price.
func (f cartForm) Amount() core.Number {
	return f.Quantity.Mul(f.Price)
}

type editForm struct {
	Month    string      `validate:"required,monthkey"`
	Quantity core.Number `validate:"gte=0"`
	Amount   core.Number `validate:"gte=0"`
}

// newValidator returns a validator that compares core.Number fields as
// floats and knows the ledger specific tags.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if n, ok := field.Interface().(core.Number); ok {
			return n.InexactFloat64()
		}
		return nil
	}, core.Number{})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return slices.Contains(Categories, fl.Field().String())
	})
	_ = v.RegisterValidation("monthkey", func(fl validator.FieldLevel) bool {
		_, err := core.ParseMonthKey(fl.Field().String())
		return err == nil
	})
	return v
}

func decodeLoginForm(values url.Values) loginForm {
	return loginForm{
		Username: sanitizeInput(values.Get("username")),
		Password: values.Get("password"),
	}
}

func decodeBalanceForm(values url.Values) (balanceForm, error) {
	bal, err := ParseNumberField(values, "balance")
	if err != nil {
		return balanceForm{}, errors.New("Enter a valid balance")
	}
	return balanceForm{Month: sanitizeInput(values.Get("month")), Balance: bal}, nil
}

func decodeCartForm(values url.Values) (cartForm, error) {
	qty, err := ParseNumberFieldOr(values, "quantity", core.NumberFromInt(1))
	if err != nil {
		return cartForm{}, errors.New("Quantity must be a number")
	}
	price, err := ParseNumberField(values, "price")
	if err != nil {
		return cartForm{}, errors.New("Price must be a number")
	}
	return cartForm{
		Category: sanitizeInput(values.Get("category")),
		Item:     sanitizeInput(values.Get("item")),
		Quantity: qty,
		Price:    price,
	}, nil
}

func decodeEditForm(values url.Values) (editForm, error) {
	qty, err := ParseNumberField(values, "quantity")
	if err != nil {
		return editForm{}, errors.New("Quantity must be a number")
	}
	amount, err := ParseNumberField(values, "amount")
	if err != nil {
		return editForm{}, errors.New("Amount must be a number")
	}
	return editForm{Month: sanitizeInput(values.Get("month")), Quantity: qty, Amount: amount}, nil
}

// validationMessage turns a validator error into one line for the user.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if field == "Item" {
			return "Enter item"
		}
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "category":
		return "Unknown category"
	case "monthkey":
		return "Month must be in YYYY-MM form"
	default:
		return field + " is invalid"
	}
}
