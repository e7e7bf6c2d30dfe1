package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

func TestAPIKeyLifecycle(t *testing.T) {
	keyring.MockInit()

	_, err := APIKey()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SetAPIKey("  sk-test-1234  "))
	key, err := APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234", key)

	require.NoError(t, DeleteAPIKey())
	require.NoError(t, DeleteAPIKey(), "deleting twice")
	_, err = APIKey()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetAPIKeyRejectsBlank(t *testing.T) {
	keyring.MockInit()
	err := SetAPIKey("   ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestResolve(t *testing.T) {
	keyring.MockInit()

	_, _, err := Resolve("")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, SetAPIKey("sk-from-keyring"))
	key, source, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", key)
	assert.Equal(t, SourceKeyring, source)

	key, source, err = Resolve(" sk-from-env ")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", key)
	assert.Equal(t, SourceConfig, source)
}

func TestKeyringFailure(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)
	_, err := APIKey()
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable), "got %v", err)
	assert.Error(t, SetAPIKey("sk"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********1234", Mask("sk-abcd-1234"))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "", Mask(""))
}
