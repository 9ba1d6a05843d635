package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute([]byte("hello"))
	b := Compute([]byte("hello"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Compute([]byte("hello!")))
}

func TestCompute_KnownValue(t *testing.T) {
	// SHA-256 of the empty string.
	want := Checksum(Prefix + "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	assert.Equal(t, want, Compute(nil))
}

func TestVerify(t *testing.T) {
	data := []byte("payload")
	require.NoError(t, Verify(data, Compute(data)))
	assert.ErrorIs(t, Verify([]byte("tampered"), Compute(data)), ErrMismatch)
	assert.ErrorIs(t, Verify(data, "md5:abc"), ErrInvalid)
}

func TestParse(t *testing.T) {
	c := Compute([]byte("x"))
	hexStr, err := Parse(c)
	require.NoError(t, err)
	assert.Len(t, hexStr, 64)

	_, err = Parse("sha256:zz")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestShort(t *testing.T) {
	c := Compute(nil)
	assert.Equal(t, "e3b0c442", c.Short(8))
	assert.Len(t, c.Short(1000), 64)
}
