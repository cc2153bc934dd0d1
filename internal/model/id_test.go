package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionToken(t *testing.T) {
	token, err := GenerateSessionToken()
	require.NoError(t, err)
	assert.True(t, ValidateSessionToken(token), "generated token %q should validate", token)

	ts, err := ParseSessionTimestamp(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestGenerateSessionToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateSessionToken()
		require.NoError(t, err)
		assert.False(t, seen[token], "duplicate token %q", token)
		seen[token] = true
	}
}

func TestValidateSessionToken(t *testing.T) {
	assert.True(t, ValidateSessionToken("ses_1700000000_deadbeef"))
	assert.False(t, ValidateSessionToken("ses_1700000000_DEADBEEF"))
	assert.False(t, ValidateSessionToken("run_1700000000_deadbeef"))
	assert.False(t, ValidateSessionToken("ses_170_deadbeef"))
	assert.False(t, ValidateSessionToken(""))
}
