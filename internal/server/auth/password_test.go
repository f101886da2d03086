package auth

import (
	"testing"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("s3cret!"), hash)

	require.NoError(t, CheckPassword(hash, "s3cret!"))
	require.ErrorIs(t, CheckPassword(hash, "wrong"), common.ErrorUnauthorized)
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	err := CheckPassword([]byte("nope"), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorUnauthorized)
}
