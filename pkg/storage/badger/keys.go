package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/papercomputeco/frames/pkg/identity"
)

// Key layout. Every key starts with a one byte table tag and ':'.
//
//	n:<node>                      node record
//	f:<frame>                     frame
//	m:<node><frame>               frame set member
//	s:<node><seq:8><frame>        member recency index
//	r:<node>                      frame set root
//	h:<node><agent>               head
//	H:<node><agent>\x00<type>     retired head scheme
//	meta:seq                      last commit sequence
var (
	prefixNode       = []byte("n:")
	prefixFrame      = []byte("f:")
	prefixMember     = []byte("m:")
	prefixRecency    = []byte("s:")
	prefixRoot       = []byte("r:")
	prefixHead       = []byte("h:")
	prefixLegacyHead = []byte("H:")
	keySeq           = []byte("meta:seq")
)

func key(prefix []byte, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func nodeKey(id identity.NodeID) []byte   { return key(prefixNode, id[:]) }
func frameKey(id identity.FrameID) []byte { return key(prefixFrame, id[:]) }
func rootKey(id identity.NodeID) []byte   { return key(prefixRoot, id[:]) }

func memberKey(node identity.NodeID, id identity.FrameID) []byte {
	return key(prefixMember, node[:], id[:])
}

func recencyKey(node identity.NodeID, seq uint64, id identity.FrameID) []byte {
	return key(prefixRecency, node[:], encodeSeq(seq), id[:])
}

func headKey(node identity.NodeID, agentID string) []byte {
	return key(prefixHead, node[:], []byte(agentID))
}

func legacyHeadKey(node identity.NodeID, agentID, frameType string) []byte {
	return key(prefixLegacyHead, node[:], []byte(agentID), []byte{0x00}, []byte(frameType))
}

// parseLegacyHeadKey splits a retired head key into its components.
func parseLegacyHeadKey(k []byte) (node identity.NodeID, agentID, frameType string, ok bool) {
	rest := k[len(prefixLegacyHead):]
	if len(rest) < identity.Size+1 {
		return node, "", "", false
	}
	copy(node[:], rest[:identity.Size])
	rest = rest[identity.Size:]
	sep := bytes.LastIndexByte(rest, 0x00)
	if sep < 0 {
		return node, "", "", false
	}
	return node, string(rest[:sep]), string(rest[sep+1:]), true
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// seekLast returns a key that sorts after every key with prefix p.
func seekLast(p []byte) []byte {
	return append(bytes.Clone(p), bytes.Repeat([]byte{0xff}, 64)...)
}
