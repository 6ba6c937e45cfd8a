package merkle

import (
	"bytes"
	"crypto/sha256"
	"slices"

	"github.com/papercomputeco/frames/pkg/identity"
)

const (
	setLeafPrefix     = 0x00
	setInteriorPrefix = 0x01

	// DomainFrameSet separates frame set roots from every other digest.
	DomainFrameSet = "frames/frameset/v1"
)

// EmptyFrameSetRoot is the root of a node that has no frames.
var EmptyFrameSetRoot = func() identity.Digest {
	h := sha256.New()
	h.Write([]byte(DomainFrameSet))
	h.Write([]byte{0x00})
	var d identity.Digest
	copy(d[:], h.Sum(nil))
	return d
}()

// FrameSetRoot computes the Merkle root over a set of frame identifiers.
//
// Membership is a set: the input is sorted and deduplicated first, so the
// root depends only on which frames are present, never on insertion order.
// Leaves are H(0x00 ∥ id) and interior nodes H(0x01 ∥ left ∥ right); an odd
// node at the end of a level is promoted unchanged.
func FrameSetRoot(members []identity.FrameID) identity.Digest {
	if len(members) == 0 {
		return EmptyFrameSetRoot
	}

	ids := slices.Clone(members)
	slices.SortFunc(ids, func(a, b identity.FrameID) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	level := make([]identity.Digest, len(ids))
	for i, id := range ids {
		level[i] = hashPair(setLeafPrefix, id[:], nil)
	}

	for len(level) > 1 {
		next := make([]identity.Digest, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(setInteriorPrefix, level[i][:], level[i+1][:]))
		}
		level = next
	}

	return level[0]
}

func hashPair(prefix byte, left, right []byte) identity.Digest {
	h := sha256.New()
	h.Write([]byte{prefix})
	h.Write(left)
	h.Write(right)
	var d identity.Digest
	copy(d[:], h.Sum(nil))
	return d
}
