package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewInput struct {
	ProductID   string `json:"productId" validate:"required,uuid"`
	Rating      int    `json:"rating" validate:"min=1,max=5"`
	Title       string `json:"title" validate:"notblank,max=200"`
	Description string `json:"description" validate:"notblank"`
}

func validInput() reviewInput {
	return reviewInput{
		ProductID:   "0b9f0c4e-1f7a-4c1c-9a43-0f8f4c1a2b3c",
		Rating:      4,
		Title:       "Great shirt",
		Description: "Fits well and washes nicely",
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr.Fields()
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validInput()))
}

func TestValidate_RatingBounds(t *testing.T) {
	in := validInput()
	in.Rating = 0
	assert.Equal(t, "must be at least 1", fieldsOf(t, Validate(in))["rating"])

	in.Rating = 6
	assert.Equal(t, "must be at most 5", fieldsOf(t, Validate(in))["rating"])
}

func TestValidate_BlankStrings(t *testing.T) {
	in := validInput()
	in.Title = "   "
	in.Description = ""

	fields := fieldsOf(t, Validate(in))
	assert.Equal(t, "is required", fields["title"])
	assert.Equal(t, "is required", fields["description"])
}

func TestValidate_StringLengthMessage(t *testing.T) {
	in := validInput()
	in.Title = strings.Repeat("x", 201)
	assert.Equal(t, "must be at most 200 characters", fieldsOf(t, Validate(in))["title"])
}

func TestValidate_UUID(t *testing.T) {
	in := validInput()
	in.ProductID = "prod-1"
	assert.Equal(t, "must be a valid UUID", fieldsOf(t, Validate(in))["productId"])
}

func TestValidationError_ErrorString(t *testing.T) {
	in := validInput()
	in.Rating = 9
	err := Validate(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'rating' must be at most 5")
}

func TestDecodeAndValidate(t *testing.T) {
	body := `{"productId":"0b9f0c4e-1f7a-4c1c-9a43-0f8f4c1a2b3c","rating":5,"title":"Nice","description":"Very nice"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var in reviewInput
	require.NoError(t, DecodeAndValidate(r, &in))
	assert.Equal(t, 5, in.Rating)
}

func TestDecodeAndValidate_Malformed(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rating":`))

	var in reviewInput
	err := DecodeAndValidate(r, &in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
