package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nested struct {
	Min int `json:"min" validate:"gte=18"`
	Max int `json:"max" validate:"gtefield=Min"`
}

type sample struct {
	Name   string  `json:"name" validate:"required"`
	Kind   string  `yaml:"kind" validate:"oneof=a b"`
	Email  string  `json:"email,omitempty" validate:"omitempty,email"`
	Range  nested  `json:"range"`
	Hidden string  `json:"-" validate:"max=1"`
	Ptr    *nested `json:"ptr,omitempty"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(&sample{Name: "x", Kind: "a", Range: nested{Min: 18, Max: 20}}))

	err := Struct(&sample{Kind: "c", Email: "nope", Range: nested{Min: 10, Max: 5}})
	var verr *Error
	require.ErrorAs(t, err, &verr)

	byField := make(map[string]FieldError)
	for _, f := range verr.Fields {
		byField[f.Field] = f
	}

	assert.Equal(t, "name is required", byField["name"].Message)
	assert.Equal(t, "kind must be one of: a b", byField["kind"].Message)
	assert.Equal(t, "email must be a valid email address", byField["email"].Message)
	assert.Equal(t, "range.min must be greater than or equal to 18", byField["range.min"].Message)
	assert.Equal(t, "gtefield", byField["range.max"].Tag)
	assert.Contains(t, err.Error(), "name is required")
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "age_range.min", fieldPath("Profile.age_range.min"))
	assert.Equal(t, "name", fieldPath("name"))
}
