package pqsig

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pqdag/model"
)

func TestPublicKey_TextRoundTrip(t *testing.T) {
	pk := PublicKey{0xde, 0xad, 0xbe, 0xef, 0x01}
	s := pk.String()
	assert.Equal(t, "3q2+7wE=", s)

	got, err := ParsePublicKey(s)
	require.NoError(t, err)
	assert.Equal(t, pk, got)
}

func TestParsePublicKey_RejectsNonCanonical(t *testing.T) {
	for _, in := range []string{
		"",
		"3q2+7wE",    // missing padding
		"3q2+\n7wE=", // embedded newline
		"3q2-7wE=",   // url alphabet
		"3q2+7wF=",   // non-zero trailing bits
	} {
		_, err := ParsePublicKey(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, model.IsKind(err, model.KindKeyDecode), "input %q", in)
	}
}

func TestParseSignature(t *testing.T) {
	sig := []byte{1, 2, 3}
	got, err := ParseSignature(EncodeSignature(sig))
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	_, err = ParseSignature("!!")
	assert.True(t, model.IsKind(err, model.KindSignatureDecode))
}

func TestSecretKey_Redacted(t *testing.T) {
	sk := SecretKey{1, 2, 3}
	assert.NotContains(t, fmt.Sprintf("%v", sk), "AQID")
	assert.Equal(t, "AQID", sk.Base64())

	got, err := ParseSecretKey(sk.Base64())
	require.NoError(t, err)
	assert.Equal(t, sk, got)
}
