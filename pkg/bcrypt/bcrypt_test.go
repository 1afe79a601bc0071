package bcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndComparePIN(t *testing.T) {
	hash, err := HashPIN("1234")
	require.NoError(t, err)
	assert.True(t, VerifyHash(hash))

	assert.NoError(t, ComparePIN(hash, "1234"))
	assert.Error(t, ComparePIN(hash, "4321"))
	assert.False(t, VerifyHash("1234"))
}
