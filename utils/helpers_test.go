package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorintel/api/models"
	"visitorintel/api/utils"
)

func TestParseClientTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	for _, raw := range []string{
		"2025-03-14T09:26:53Z",
		"2025-03-14T14:56:53+05:30",
		"2025-03-14T09:26:53",
		"2025-03-14 09:26:53",
		" 2025-03-14T09:26:53.000Z ",
	} {
		got, err := utils.ParseClientTimestamp(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
	}

	for _, raw := range []string{"", "yesterday", "14/03/2025", "1710408413"} {
		_, err := utils.ParseClientTimestamp(raw)
		assert.Error(t, err, raw)
	}
}

func TestIsValidInterval(t *testing.T) {
	t.Parallel()

	assert.True(t, utils.IsValidInterval("Day"))
	assert.False(t, utils.IsValidInterval("day"))
	assert.False(t, utils.IsValidInterval("Day); DROP TABLE visit_facts"))
}

func TestJWTRoundTrip(t *testing.T) {
	t.Parallel()

	m := utils.NewJWTManager("test-secret", time.Hour)
	token, err := m.GenerateJWT(&models.User{ID: 7, Email: "ops@example.com"})
	require.NoError(t, err)

	claims, err := m.ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)

	_, err = utils.NewJWTManager("other-secret", time.Hour).ValidateJWT(token)
	assert.Error(t, err)
}
