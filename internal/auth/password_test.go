package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-Pass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-Pass", hash)

	assert.True(t, VerifyPassword(hash, "s3cret-Pass"))
	assert.False(t, VerifyPassword(hash, "wrong"))
	assert.False(t, VerifyPassword("", "s3cret-Pass"))
}

func TestGenerateRandomPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw, err := GenerateRandomPassword()
		require.NoError(t, err)
		require.Len(t, pw, passwordLength)

		assert.True(t, strings.ContainsAny(pw, lowerChars), "missing lowercase: %q", pw)
		assert.True(t, strings.ContainsAny(pw, upperChars), "missing uppercase: %q", pw)
		assert.True(t, strings.ContainsAny(pw, digitChars), "missing digit: %q", pw)
		assert.False(t, strings.ContainsAny(pw, "lIO01"), "ambiguous glyph in %q", pw)

		assert.False(t, seen[pw], "duplicate password generated")
		seen[pw] = true
	}
}
