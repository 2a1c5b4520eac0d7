package suuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFromUUID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		first := FromUUID(u)
		second := FromUUID(u)
		require.Equal(t, first, second)
	})

	t.Run("format", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			s := FromUUID(New())
			require.Len(t, s, RenderedLength)
			require.NoError(t, Validate(s))
		}
	})

	t.Run("no ambiguous characters", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			s := FromUUID(New())
			require.NotContains(t, s, "0")
			require.NotContains(t, s, "O")
			require.NotContains(t, s, "I")
			require.NotContains(t, s, "l")
		}
	})

	t.Run("distinct uuids yield distinct suuids", func(t *testing.T) {
		seen := make(map[string]struct{})
		for i := 0; i < 1000; i++ {
			s := FromUUID(New())
			_, dup := seen[s]
			require.False(t, dup, "collision on %s", s)
			seen[s] = struct{}{}
		}
	})
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("4bWw-pQQY-LNL3-MfRM"))
	require.Error(t, Validate("4bWwpQQYLNL3MfRM"))
	require.Error(t, Validate("4bWw-pQQY-LNL3"))
	require.Error(t, Validate("0000-0000-0000-0000"))
	require.Error(t, Validate(""))
}
