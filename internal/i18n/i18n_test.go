// internal/i18n/i18n_test.go
package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations(t *testing.T) {
	require.NoError(t, Initialize("./does-not-exist", "en"))

	assert.True(t, IsSupported("en"))
	assert.True(t, IsSupported("nl"))
	assert.False(t, IsSupported("fr"))

	assert.Equal(t, "Licence not found", T("en", KeyLicenceNotFound))
	assert.Equal(t, "Vergunning niet gevonden", T("nl", KeyLicenceNotFound))
	assert.Equal(t, "Licence not found", T("fr", KeyLicenceNotFound))
	assert.Equal(t, "Invalid request", T("en", KeyValidationInvalid, "request"))
	assert.Equal(t, "missing.key", T("nl", "missing.key"))
}
