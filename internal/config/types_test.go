package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	secret := Secret("super-secret-key")

	t.Run("String redacts", func(t *testing.T) {
		assert.Equal(t, "[REDACTED]", secret.String())
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
		assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	})

	t.Run("GoString redacts", func(t *testing.T) {
		assert.NotContains(t, fmt.Sprintf("%#v", secret), "super-secret-key")
	})

	t.Run("JSON redacts", func(t *testing.T) {
		data, err := json.Marshal(secret)
		require.NoError(t, err)
		assert.Equal(t, `"[REDACTED]"`, string(data))
	})

	t.Run("Value exposes the raw secret", func(t *testing.T) {
		assert.Equal(t, "super-secret-key", secret.Value())
	})

	t.Run("empty secret stays empty", func(t *testing.T) {
		var empty Secret
		assert.Equal(t, "", empty.String())
		assert.False(t, empty.IsSet())

		data, err := json.Marshal(empty)
		require.NoError(t, err)
		assert.Equal(t, `""`, string(data))
	})

	t.Run("unmarshal accepts raw values", func(t *testing.T) {
		var s Secret
		require.NoError(t, s.UnmarshalText([]byte("raw-key")))
		assert.Equal(t, "raw-key", s.Value())
		assert.True(t, s.IsSet())
	})
}
