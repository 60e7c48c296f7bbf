package sessionx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", time.Hour)

	token, err := codec.Sign("alice@example.edu", "Alice", "https://example.edu/alice.png")
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(token, ".")+1, "expected payload and signature joined by dots")

	sess, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "alice@example.edu", sess.Email)
	require.Equal(t, "Alice", sess.Name)
	require.Equal(t, "https://example.edu/alice.png", sess.Picture)
	require.WithinDuration(t, time.Now().Add(time.Hour), sess.Expiry, 5*time.Second)
}

func TestCodecRejectsExpired(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", -time.Minute)

	token, err := codec.Sign("alice@example.edu", "Alice", "")
	require.NoError(t, err)

	_, err = codec.Verify(token)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestCodecRejectsTampering(t *testing.T) {
	t.Parallel()

	codec := NewCodec("test-secret", time.Hour)

	token, err := codec.Sign("alice@example.edu", "Alice", "")
	require.NoError(t, err)

	t.Run("any single character mutation invalidates", func(t *testing.T) {
		for i := 0; i < len(token); i += 7 {
			mutated := []byte(token)
			if mutated[i] == 'A' {
				mutated[i] = 'B'
			} else {
				mutated[i] = 'A'
			}
			if string(mutated) == token {
				continue
			}
			_, err := codec.Verify(string(mutated))
			require.ErrorIs(t, err, ErrInvalidSession, "mutation at offset %d accepted", i)
		}
	})

	t.Run("wrong secret invalidates", func(t *testing.T) {
		other := NewCodec("other-secret", time.Hour)
		_, err := other.Verify(token)
		require.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("garbage fails closed", func(t *testing.T) {
		for _, raw := range []string{"", ".", "..", "not-a-token", "a.b", "a.b.c.d"} {
			_, err := codec.Verify(raw)
			require.ErrorIs(t, err, ErrInvalidSession)
		}
	})
}
