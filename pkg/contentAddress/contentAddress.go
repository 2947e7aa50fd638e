// Package contentAddress turns chunk bytes into content hashes and content
// hashes into the CIDv0 identifiers shown to clients.
//
// Tree hashing always works on the raw 32 byte digests. Identifiers only exist
// at the system boundary.
package contentAddress

import (
	"crypto/sha256"
	"fmt"
	"strings"

	cid "github.com/ipfs/go-cid"
	multihash "github.com/multiformats/go-multihash"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// Sum hashes exactly the given bytes, no length prefix and no padding.
func Sum(data []byte) types.Hash {
	return types.Hash(sha256.Sum256(data))
}

// SumNode hashes the concatenation left || right.
func SumNode(left, right types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:types.HashSize], left[:])
	copy(buf[types.HashSize:], right[:])
	return types.Hash(sha256.Sum256(buf[:]))
}

// Identifier encodes the digest as sha2-256 multihash (0x12 0x20 || digest)
// and returns it base58btc encoded, which is the CIDv0 "Qm..." form.
func Identifier(h types.Hash) string {
	mh, err := multihash.Encode(h[:], multihash.SHA2_256)
	if err != nil {
		// Encode only fails for unknown codes or wrong digest lengths,
		// both are fixed here.
		panic(fmt.Sprintf("multihash encode of sha2-256 digest: %v", err))
	}
	return cid.NewCidV0(mh).String()
}

// ParseIdentifier accepts any CID carrying a sha2-256 multihash, and plain
// 64 character hex digests as used by older ledger tooling.
func ParseIdentifier(s string) (types.Hash, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Hash{}, fmt.Errorf("empty content identifier")
	}

	if hexDigest := strings.TrimPrefix(s, "0x"); len(hexDigest) == 2*types.HashSize {
		return types.HashHexadecimal(hexDigest)
	}

	c, err := cid.Decode(s)
	if err != nil {
		return types.Hash{}, fmt.Errorf("decode content identifier %q: %w", s, err)
	}

	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return types.Hash{}, fmt.Errorf("decode multihash of %q: %w", s, err)
	}
	if decoded.Code != multihash.SHA2_256 {
		return types.Hash{}, fmt.Errorf("content identifier %q uses %s, want sha2-256", s, decoded.Name)
	}

	var h types.Hash
	if err := h.HashFromBytes(decoded.Digest); err != nil {
		return types.Hash{}, err
	}
	return h, nil
}
