package core

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Midterm":                "midterm",
		" Form One - Biology ":   "form-one-biology",
		"Term 1/2: Maths (2024)": "term-1-2-maths-2024",
		"---":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := map[string]string{
		`{"a": 1}`:                                  `{"a": 1}`,
		"```json\n{\"a\": {\"b\": 2}}\n```":         `{"a": {"b": 2}}`,
		"Sure! Here it is: {\"a\": 1} Hope it helps": `{"a": 1}`,
		"  no json here  ":                          "no json here",
		"} backwards {":                             "} backwards {",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractJSON(in), in)
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Amani Juma", CleanString("  Amani Juma\n"))
	assert.Equal(t, "amani@test.tz", CleanString(" AMANI@test.tz ", true))
	assert.True(t, ContainsFold("Amani Juma", "JUMA"))
	assert.False(t, ContainsFold("Amani", "baraka"))
}

func TestErrors(t *testing.T) {
	notFound := NewNotFoundError("test not found")
	assert.True(t, IsNotFound(errors.Wrap(notFound, "getting test")))
	assert.False(t, IsNotFound(errors.New("test not found")))

	assert.EqualError(t, NewValidationError(errors.New("bad")), "bad")
	assert.EqualError(t, NewFieldError("name", "this field is required"), "this field is required")
	assert.EqualError(t, &ValidationError{Fields: []FieldError{{Field: "name", Error: "taken"}}}, "name: taken")

	assert.True(t, IsShutdown(errors.Wrap(NewShutdownError("stop"), "serving")))
}
