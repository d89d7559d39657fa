package secrets

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewFromString(k)
	require.NoError(t, err)

	sealed, err := s.Seal("dtdc-token-123")
	require.NoError(t, err)
	require.NotContains(t, sealed, "dtdc-token-123")

	again, err := s.Seal("dtdc-token-123")
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce must differ")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "dtdc-token-123", plain)
}

func TestOpen_WrongKey(t *testing.T) {
	k1, _ := GenerateKey()
	k2, _ := GenerateKey()
	s1, _ := NewFromString(k1)
	s2, _ := NewFromString(k2)

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = s1.Open("%%%")
	require.Error(t, err)
	_, err = s1.Open(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("")
	require.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = ParseKey("abcd")
	require.Error(t, err)

	_, err = ParseKey(strings.Repeat("ab", KeySize))
	require.NoError(t, err)

	_, err = ParseKey(base64.StdEncoding.EncodeToString(make([]byte, KeySize)))
	require.NoError(t, err)
}
