package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gatekeeper/pkg/domain-errors"
)

type contactBody struct {
	Name    string `json:"name" validate:"required,notblank,max=10"`
	Email   string `json:"email" validate:"required,email"`
	Vehicle string `json:"vehicle_type" validate:"omitempty,oneof=van truck"`
}

type listQuery struct {
	Page   int    `query:"page" validate:"gte=1"`
	Status string `query:"status" json:"ignored" validate:"omitempty,oneof=new closed"`
}

func TestValidate(t *testing.T) {
	t.Run("valid payload passes", func(t *testing.T) {
		err := Validate(&contactBody{Name: "Ana", Email: "ana@example.com", Vehicle: "van"})
		assert.NoError(t, err)
	})

	t.Run("collects every failing field by wire name", func(t *testing.T) {
		err := Validate(&contactBody{Name: "  ", Email: "nope", Vehicle: "bike"})
		require.Error(t, err)

		fields := FieldErrors(err)
		require.Len(t, fields, 3)
		assert.Equal(t, FieldError{Field: "name", Message: "name must not be blank"}, fields[0])
		assert.Equal(t, FieldError{Field: "email", Message: "email must be a valid email"}, fields[1])
		assert.Equal(t, FieldError{Field: "vehicle_type", Message: "vehicle_type must be one of [van truck]"}, fields[2])
	})

	t.Run("query tag wins over json tag", func(t *testing.T) {
		err := Validate(&listQuery{Page: 0, Status: "archived"})
		fields := FieldErrors(err)
		require.Len(t, fields, 2)
		assert.Equal(t, "page", fields[0].Field)
		assert.Equal(t, "status", fields[1].Field)
	})

	t.Run("failure carries the validation code", func(t *testing.T) {
		err := Validate(&contactBody{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, err.Error(), "name is required")
	})
}

func TestFieldErrors_NonValidationError(t *testing.T) {
	assert.Nil(t, FieldErrors(dErrors.New(dErrors.CodeInternal, "boom")))
}
