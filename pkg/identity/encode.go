package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
)

// encoder writes the canonical identity encoding into a running hash.
//
// Layout: domain ∥ 0x00 ∥ fields..., where each variable length field is a
// big-endian uint64 length followed by its bytes. A frame's owning NodeID is
// length-prefixed the same way; digests and child NodeIDs inside a node are
// written raw.
type encoder struct {
	h   hash.Hash
	buf [8]byte
}

func newEncoder(domain string) *encoder {
	e := &encoder{h: sha256.New()}
	e.h.Write([]byte(domain))
	e.h.Write([]byte{0x00})
	return e
}

func (e *encoder) uint64(v uint64) {
	binary.BigEndian.PutUint64(e.buf[:], v)
	e.h.Write(e.buf[:])
}

func (e *encoder) bytes(b []byte) {
	e.uint64(uint64(len(b)))
	e.h.Write(b)
}

func (e *encoder) string(s string) {
	e.uint64(uint64(len(s)))
	e.h.Write([]byte(s))
}

func (e *encoder) flag(set bool) {
	if set {
		e.h.Write([]byte{0x01})
		return
	}
	e.h.Write([]byte{0x00})
}

func (e *encoder) raw(b []byte) {
	e.h.Write(b)
}

func (e *encoder) sum(dst []byte) {
	copy(dst, e.h.Sum(nil))
}
