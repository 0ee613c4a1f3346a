package app

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i * 7)
	}

	cases := []struct {
		name  string
		input string
		want  []byte
	}{
		{
			name:  "hex",
			input: hex.EncodeToString(raw),
			want:  raw,
		},
		{
			name:  "hex with surrounding whitespace",
			input: "  " + hex.EncodeToString(raw) + "\n",
			want:  raw,
		},
		{
			name:  "base64 standard",
			input: base64.StdEncoding.EncodeToString(raw),
			want:  raw,
		},
		{
			name:  "base64 without padding",
			input: base64.RawStdEncoding.EncodeToString(raw),
			want:  raw,
		},
		{
			name:  "passphrase taken literally",
			input: "atelier session signing passphrase",
			want:  []byte("atelier session signing passphrase"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeKey(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, decoded)
		})
	}
}

// A value that parses as both hex and base64 must decode as hex, since
// generated runtime defaults are hex-encoded.
func TestDecodeKeyPrefersHex(t *testing.T) {
	decoded, err := DecodeKey("deadbeef")
	require.NoError(t, err)

	asHex, _ := hex.DecodeString("deadbeef")
	require.Equal(t, asHex, decoded)
}

func TestDecodeKeyRejectsEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		_, err := DecodeKey(input)
		require.Error(t, err)
	}
}
