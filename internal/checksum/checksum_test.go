package checksum

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesAndVerify(t *testing.T) {
	data := []byte("hello extension store")
	d := Bytes(data)

	require.True(t, strings.HasPrefix(string(d), "blake3:"))
	require.NoError(t, d.Validate())

	require.NoError(t, Verify(bytes.NewReader(data), d))
	assert.Error(t, Verify(bytes.NewReader([]byte("different")), d))
}

func TestBytesIsDeterministic(t *testing.T) {
	data := []byte("deterministic")
	assert.Equal(t, Bytes(data), Bytes(data))
}

func TestReaderReportsSize(t *testing.T) {
	data := []byte("0123456789")
	d, size, err := Reader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Equal(t, Bytes(data), d)
}

func TestDigestValidateRejectsMalformed(t *testing.T) {
	cases := []Digest{"", "blake3:", "sha256:abcd", "blake3:not-hex"}
	for _, d := range cases {
		assert.Error(t, d.Validate(), "expected %q to be invalid", d)
	}
}

func TestHasherStreaming(t *testing.T) {
	h := NewHasher()
	_, err := h.Write([]byte("part one "))
	require.NoError(t, err)
	_, err = h.Write([]byte("part two"))
	require.NoError(t, err)

	assert.Equal(t, Bytes([]byte("part one part two")), h.Digest())
	assert.Equal(t, int64(len("part one part two")), h.Size())
}
