package validators

import (
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
)

type cartRequest struct {
	Lines []struct {
		VariantID uuid.UUID `json:"variant_id" validate:"required"`
		Quantity  int       `json:"quantity"`
	} `json:"lines" validate:"required,min=1,dive"`
	Notes *string `json:"notes,omitempty"`
}

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	atLimit := strings.Repeat("a", 999) + "é"
	got := SanitizeString(atLimit, 1000)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, atLimit, got, "1000 characters fit a 1000 character limit")

	over := strings.Repeat("a", 999) + "éé"
	got = SanitizeString(over, 1000)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 1000, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é"))

	assert.Equal(t, "日本", SanitizeString("  日本語  ", 2))
	assert.Equal(t, "gift wrap", SanitizeString("  gift wrap \n", 0))
	assert.Equal(t, "", SanitizeString("   ", 10))
}

func TestDecodeJSONBody(t *testing.T) {
	id := uuid.New()
	var req cartRequest
	err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(`{"lines":[{"variant_id":"`+id.String()+`","quantity":2}]}`)), &req)
	require.NoError(t, err)
	require.Len(t, req.Lines, 1)
	assert.Equal(t, id, req.Lines[0].VariantID)

	for name, body := range map[string]string{
		"unknown field": `{"lines":[],"coupon":"x"}`,
		"empty cart":    `{"lines":[]}`,
		"missing id":    `{"lines":[{"quantity":1}]}`,
		"not json":      `lines=1`,
		"too large":     `{"notes":"` + strings.Repeat("x", MaxBodyBytes) + `"}`,
	} {
		var dest cartRequest
		err := DecodeJSONBody(httptest.NewRequest("POST", "/", strings.NewReader(body)), &dest)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: %v", name, err)
	}
}

func TestParseQueryInt(t *testing.T) {
	n, err := ParseQueryInt(httptest.NewRequest("GET", "/?limit=5", nil), "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = ParseQueryInt(httptest.NewRequest("GET", "/", nil), "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	for _, q := range []string{"limit=abc", "limit=0", "limit=101"} {
		_, err := ParseQueryInt(httptest.NewRequest("GET", "/?"+q, nil), "limit", 20, 1, 100)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), q)
	}
}
