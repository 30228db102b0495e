package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestCipher_SealOpen(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Seal("dear diary")
	require.NoError(t, err)
	assert.NotEqual(t, "dear diary", sealed)

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "dear diary", plain)
}

func TestCipher_NoncesDiffer(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)
	a, _ := c.Seal("same")
	b, _ := c.Seal("same")
	assert.NotEqual(t, a, b)
}

func TestCipher_Empty(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)
	s, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, s)
	p, err := c.Open("")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestCipher_Errors(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.Error(t, err)

	c, err := NewCipher(testKey())
	require.NoError(t, err)
	_, err = c.Open("AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
	_, err = c.Open("!!not base64!!")
	assert.Error(t, err)

	other, _ := NewCipher(bytes.Repeat([]byte{9}, 32))
	sealed, _ := other.Seal("secret")
	_, err = c.Open(sealed)
	assert.Error(t, err)
}
