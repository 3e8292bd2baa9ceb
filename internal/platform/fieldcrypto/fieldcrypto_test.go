package fieldcrypto

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestXChaCha_RoundTrip(t *testing.T) {
	c, err := NewXChaCha(testKey())
	require.NoError(t, err)

	enc, err := c.Encrypt("260971234567")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, Prefix))
	assert.NotContains(t, enc, "260971234567")

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "260971234567", dec)
}

func TestXChaCha_NonceIsRandom(t *testing.T) {
	c, err := NewXChaCha(testKey())
	require.NoError(t, err)

	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestXChaCha_PlainValuePassesThrough(t *testing.T) {
	c, err := NewXChaCha(testKey())
	require.NoError(t, err)

	dec, err := c.Decrypt("260971234567")
	require.NoError(t, err)
	assert.Equal(t, "260971234567", dec)
}

func TestXChaCha_TamperedValue(t *testing.T) {
	c, err := NewXChaCha(testKey())
	require.NoError(t, err)

	enc, _ := c.Encrypt("secret")
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(enc, Prefix))
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(Prefix + base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestFromBase64Key(t *testing.T) {
	c, err := FromBase64Key("")
	require.NoError(t, err)
	assert.IsType(t, Nop{}, c)

	_, err = FromBase64Key(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidKey)

	c, err = FromBase64Key(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	assert.IsType(t, &XChaCha{}, c)
}
