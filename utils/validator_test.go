package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStructJoinsMessages(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		Email string `validate:"email"`
	}

	err := ValidateStruct(input{Email: "not-an-email"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "email must be a valid email")

	assert.NoError(t, ValidateStruct(input{Name: "Sam", Email: "sam@example.com"}))
}

func TestValidateStructKeepsPercentLiterals(t *testing.T) {
	type input struct {
		Discount string `validate:"oneof=10% 20%"`
	}

	err := ValidateStruct(input{Discount: "30%"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discount must be one of: 10% 20%")
}
