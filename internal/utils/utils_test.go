// internal/utils/utils_test.go
package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/substance-compliance/internal/compliance"
)

type lineRequest struct {
	SubstanceCode string          `validate:"required"`
	Quantity      decimal.Decimal `validate:"gt=0"`
	Country       string          `validate:"required,country_code"`
}

func TestValidateStruct_DecimalAndCountry(t *testing.T) {
	ok := lineRequest{SubstanceCode: "MORPH", Quantity: decimal.NewFromFloat(0.5), Country: "NL"}
	assert.NoError(t, ValidateStruct(ok))

	bad := lineRequest{SubstanceCode: "MORPH", Quantity: decimal.Zero, Country: "NLD"}
	err := ValidateStruct(bad)
	require.Error(t, err)

	fields := GetValidationErrors(compliance.NewValidationFailed("invalid request", err))
	require.Len(t, fields, 2)
	assert.Equal(t, "quantity", fields[0].Field)
	assert.Equal(t, "gt", fields[0].Tag)
	assert.Equal(t, "country", fields[1].Field)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ConfigureTokens("test-secret", "")
	id := uuid.New()

	token, err := IssueAccessToken(id, "officer", "compliance_officer", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token)
	require.NoError(t, err)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, userID)
	assert.Equal(t, "compliance_officer", claims.Role)
	assert.Equal(t, DefaultTokenIssuer, claims.Issuer)

	ConfigureTokens("rotated", "")
	_, err = ParseAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokensOnlyServeTheirUse(t *testing.T) {
	ConfigureTokens("test-secret", "")
	id := uuid.New()

	refresh, err := IssueRefreshToken(id, time.Hour)
	require.NoError(t, err)
	access, err := IssueAccessToken(id, "officer", "admin", time.Hour)
	require.NoError(t, err)

	_, err = ParseAccessToken(refresh)
	assert.ErrorIs(t, err, ErrTokenWrongUse)
	_, err = ParseRefreshToken(access)
	assert.ErrorIs(t, err, ErrTokenWrongUse)

	userID, err := ParseRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, id, userID)
}

func TestTokenExpiryAndIssuer(t *testing.T) {
	ConfigureTokens("test-secret", "desk-a")
	expired, err := IssueAccessToken(uuid.New(), "officer", "admin", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	foreign, err := IssueAccessToken(uuid.New(), "officer", "admin", time.Hour)
	require.NoError(t, err)
	ConfigureTokens("test-secret", "desk-b")
	_, err = ParseAccessToken(foreign)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPageRequestFromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	read := func(query string) PageRequest {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/customers?"+query, nil)
		return PageRequestFrom(c)
	}

	assert.Equal(t, PageRequest{Page: 1, Limit: DefaultPageSize, Desc: true}, read(""))
	assert.Equal(t, PageRequest{Page: 3, Limit: 50, Sort: "name"}, read("page=3&limit=50&sort=name"))
	assert.Equal(t, PageRequest{Page: 1, Limit: DefaultPageSize, Sort: "transaction_date", Desc: true}, read("sort=-transaction_date&limit=500"))
	assert.Equal(t, PageRequest{Page: 1, Limit: DefaultPageSize, Sort: "name", Search: "noord"}, read("sort=-name&order=asc&page=-2&search=+noord+"))
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a"}, 41, PageRequest{Page: 3, Limit: 20})
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 40, PageRequest{Page: 3, Limit: 20}.Offset())

	empty := NewPage([]string{}, 0, PageRequest{})
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, DefaultPageSize, empty.Limit)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestDomainErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{compliance.NewNotFound("licence", "x"), http.StatusNotFound, "NOT_FOUND"},
		{compliance.NewInvalidOperation("no override pending"), http.StatusUnprocessableEntity, "INVALID_OPERATION"},
		{compliance.NewConcurrencyConflict("stale"), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{compliance.NewExternalUnavailable("customer", fmt.Errorf("timeout")), http.StatusServiceUnavailable, "EXTERNAL_SYSTEM_UNAVAILABLE"},
		{fmt.Errorf("wrapped: %w", compliance.NewValidationFailed("bad", nil)), http.StatusBadRequest, "VALIDATION_FAILED"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		DomainErrorResponse(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		var body APIResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		require.NotNil(t, body.Error)
		assert.Equal(t, tc.code, body.Error.Code)
		assert.Equal(t, tc.status, HTTPStatusFor(tc.err))
	}
}

func TestDomainErrorResponseWithExtraDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	DomainErrorResponseWith(c, compliance.NewExternalUnavailable("customer", fmt.Errorf("timeout")), gin.H{
		"transaction_id": "6f1c9a52-0d5e-4a43-9a55-2b1f0c2b8d11",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	details, ok := body.Error.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "6f1c9a52-0d5e-4a43-9a55-2b1f0c2b8d11", details["transaction_id"])
	assert.Equal(t, "customer lookup failed", details["reason"])
}

func TestHashBytes(t *testing.T) {
	data := []byte("licence certificate")
	sum := HashBytes(data)
	assert.Len(t, sum, 64)
	assert.True(t, ValidateFileHash(data, sum))
	assert.False(t, ValidateFileHash([]byte("tampered"), sum))
}
