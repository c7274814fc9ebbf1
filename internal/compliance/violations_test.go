package compliance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolationCodeNamesAreStable(t *testing.T) {
	want := []string{
		"LICENCE_EXPIRED", "LICENCE_MISSING", "LICENCE_SUSPENDED", "LICENCE_REVOKED",
		"LICENCE_SCOPE_INSUFFICIENT", "SUBSTANCE_NOT_AUTHORIZED", "THRESHOLD_EXCEEDED",
		"MISSING_PERMIT", "CUSTOMER_SUSPENDED", "CUSTOMER_NOT_APPROVED", "GDP_NOT_QUALIFIED",
		"THRESHOLD_WARNING", "CUSTOMER_CONDITIONALLY_APPROVED",
	}
	var got []string
	for _, c := range AllViolationCodes() {
		got = append(got, c.String())
		parsed, err := ParseViolationCode(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	assert.Equal(t, want, got)
}

func TestViolationCodeCatalog(t *testing.T) {
	assert.Equal(t, SeverityCritical, CodeLicenceExpired.Severity())
	assert.True(t, CodeLicenceExpired.Overridable())
	assert.Equal(t, SeverityCritical, CodeCustomerSuspended.Severity())
	assert.False(t, CodeCustomerSuspended.Overridable())
	assert.False(t, CodeCustomerNotApproved.Overridable())
	assert.Equal(t, SeverityWarning, CodeGdpNotQualified.Severity())
	assert.Equal(t, SeverityInfo, CodeCustomerConditionallyApproved.Severity())

	_, err := ParseViolationCode("NOT_A_CODE")
	assert.Error(t, err)
	_, err = ViolationCode(0).MarshalText()
	assert.Error(t, err)
}

func TestViolationJSON(t *testing.T) {
	v := newViolation(CodeMissingPermit, "export permit required")
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"code":"MISSING_PERMIT"`)
	assert.Contains(t, string(b), `"severity":"critical"`)

	var back Violation
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, v, back)
}

func TestDomainErrorMatching(t *testing.T) {
	err := NewInvalidOperation("approve on %s", "SO-1")
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ErrCodeInvalidOperation, CodeOf(err))

	wrapped := NewExternalUnavailable("customer", assert.AnError)
	assert.ErrorIs(t, wrapped, ErrExternalUnavailable)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}
