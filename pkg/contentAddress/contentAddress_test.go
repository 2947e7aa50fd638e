package contentAddress

import (
	"crypto/sha256"
	"testing"

	cid "github.com/ipfs/go-cid"
	multihash "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

func TestSum(t *testing.T) {
	data := []byte("hello world")
	assert.Equal(t, types.Hash(sha256.Sum256(data)), Sum(data))

	// no padding: a short chunk and its zero padded version differ
	padded := make([]byte, types.ChunkSize)
	copy(padded, data)
	assert.NotEqual(t, Sum(data), Sum(padded))
}

func TestSumNode(t *testing.T) {
	left := Sum([]byte("left"))
	right := Sum([]byte("right"))

	concat := append(left.Bytes(), right.Bytes()...)
	assert.Equal(t, types.Hash(sha256.Sum256(concat)), SumNode(left, right))
	assert.NotEqual(t, SumNode(left, right), SumNode(right, left))
}

func TestIdentifier_KnownVector(t *testing.T) {
	h := Sum([]byte("hello world"))
	assert.Equal(t, "QmaozNR7DZHQK1ZcU9p7QdrshMvXqWK6gpu5rmrkPdT3L4", Identifier(h))
}

func TestParseIdentifier(t *testing.T) {
	h := Sum([]byte("ouroboros"))

	t.Run("cid v0", func(t *testing.T) {
		got, err := ParseIdentifier(Identifier(h))
		require.NoError(t, err)
		assert.Equal(t, h, got)
	})

	t.Run("cid v1", func(t *testing.T) {
		mh, err := multihash.Encode(h[:], multihash.SHA2_256)
		require.NoError(t, err)
		v1 := cid.NewCidV1(cid.Raw, mh).String()

		got, err := ParseIdentifier(v1)
		require.NoError(t, err)
		assert.Equal(t, h, got)
	})

	t.Run("hex", func(t *testing.T) {
		got, err := ParseIdentifier(h.String())
		require.NoError(t, err)
		assert.Equal(t, h, got)

		got, err = ParseIdentifier("0x" + h.String())
		require.NoError(t, err)
		assert.Equal(t, h, got)
	})

	t.Run("rejects", func(t *testing.T) {
		sha512mh, err := multihash.Sum([]byte("x"), multihash.SHA2_512, -1)
		require.NoError(t, err)

		for _, bad := range []string{
			"",
			"!!!not a cid",
			cid.NewCidV1(cid.Raw, sha512mh).String(),
		} {
			_, err := ParseIdentifier(bad)
			assert.Error(t, err, "input %q", bad)
		}
	})
}
