package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type contact struct {
	Phone string `validate:"omitempty,phone"`
	Qty   int    `validate:"gt=0"`
}

func TestNewValidatorPhone(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Struct(contact{Phone: "+62812345678", Qty: 1}))
	require.NoError(t, v.Struct(contact{Qty: 1}))
	require.Error(t, v.Struct(contact{Phone: "call me", Qty: 1}))
}

func TestValidationMessage(t *testing.T) {
	err := NewValidator().Struct(contact{Phone: "x", Qty: 0})
	msg := ValidationMessage(err)
	require.Contains(t, msg, "contact.Phone: phone")
	require.Contains(t, msg, "contact.Qty: gt=0")

	require.Equal(t, "plain", ValidationMessage(errors.New("plain")))
}
